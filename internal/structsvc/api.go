package structsvc

import (
	"context"
	"fmt"
	"log"
	"net/http"
)

// startHTTP launches the HTTP server for the /healthz endpoint. There is
// no /reload here: structure detection has no per-token indicator config
// to hot-swap, only the fixed set of enabled timeframes set at startup.
func (svc *Service) startHTTP(ctx context.Context) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "ok")
		})
		log.Printf("[structsvc] HTTP server on %s (/healthz)", svc.cfg.HTTPAddr)
		if err := http.ListenAndServe(svc.cfg.HTTPAddr, mux); err != nil {
			log.Printf("[structsvc] HTTP server error: %v", err)
		}
	}()
}
