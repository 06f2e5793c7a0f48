// Package auth protects the structure-engine gateway's control endpoints
// (setting the active indicator config, operator enrollment) with TOTP-based
// operator authentication,
// the same one-time-passcode mechanism the teacher used for broker login.
package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Issuer is the TOTP issuer name shown in operator authenticator apps.
const Issuer = "chanstruct-gateway"

// Enrollment holds a freshly generated operator secret and its QR
// provisioning image, returned once at enrollment time. Enroll stores
// nothing: the secret must be persisted by the caller (e.g. in config).
// The QR image and URL both encode the otpauth URL, which contains the
// secret.
type Enrollment struct {
	Secret    string
	QRCodePNG []byte
	URL       string
}

// Enroll generates a new random TOTP secret for the given operator account
// and renders its QR provisioning code as a PNG.
func Enroll(accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      Issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}

	img, err := key.Image(256, 256)
	if err != nil {
		return nil, fmt.Errorf("render QR code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode QR png: %w", err)
	}

	return &Enrollment{
		Secret:    key.Secret(),
		QRCodePNG: buf.Bytes(),
		URL:       key.String(),
	}, nil
}

// GenerateSecret returns a fresh random base32 TOTP secret without going
// through the QR enrollment flow (used in tests and scripted setup).
func GenerateSecret() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// Verify checks a 6-digit passcode against the operator's secret at the
// current time, per RFC 6238.
func Verify(secret, passcode string) bool {
	if secret == "" || passcode == "" {
		return false
	}
	ok, err := totp.ValidateCustom(passcode, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
