package auth

import (
	"log"
	"net/http"
)

// CodeHeader is the HTTP header operators supply their current TOTP
// passcode in when calling a protected control endpoint.
const CodeHeader = "X-TOTP-Code"

// RequireTOTP wraps an http.HandlerFunc so it only runs when the request
// carries a valid passcode for the given secret. An empty secret disables
// the check (used when no operator secret has been configured yet).
func RequireTOTP(secret string, next http.HandlerFunc) http.HandlerFunc {
	if secret == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get(CodeHeader)
		if !Verify(secret, code) {
			log.Printf("[auth] rejected control request from %s: bad or missing TOTP code", r.RemoteAddr)
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
