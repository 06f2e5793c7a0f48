package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chanstruct/internal/auth"
	"chanstruct/internal/gateway"

	goredis "github.com/go-redis/redis/v8"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[api_gateway] starting...")

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	listenAddr := getEnv("GATEWAY_ADDR", ":9090")
	enabledTFs := getEnv("ENABLED_TFS", "60,120,180,300")
	subscribeTokens := getEnv("SUBSCRIBE_TOKENS", "1:99926000")
	totpSecret := getEnv("GATEWAY_TOTP_SECRET", "")

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[api_gateway] redis connection failed: %v", err)
	}
	log.Printf("[api_gateway] redis connected at %s", redisAddr)

	tfs := parseTFs(enabledTFs)
	tokenKeys := parseTokenKeys(subscribeTokens)
	indicators := parseIndicatorNames(getEnv("INDICATOR_CONFIGS", ""))

	hub := gateway.NewHub(rdb, tfs, tokenKeys, indicators)
	hub.Latency = gateway.NewLatencyTracker(10000)

	configStore := gateway.NewConfigStore(hub, rdb)
	if configStore.Load(ctx) {
		log.Println("[api_gateway] active indicator config restored from Redis")
	}

	if totpSecret == "" {
		log.Println("[api_gateway] WARNING: GATEWAY_TOTP_SECRET not set, control endpoints are unprotected")
	}

	router := gateway.NewPubSubRouter(hub)
	go router.RunExplicit(ctx)
	go router.RunPattern(ctx)
	go hub.StartMetricsBroadcast(ctx, processStart)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, rdb, ctx, tfs, tokenKeys, indicators, processStart)

	// Control-plane endpoints requiring an operator TOTP passcode.
	mux.HandleFunc("/api/indicators/active", auth.RequireTOTP(totpSecret, func(w http.ResponseWriter, r *http.Request) {
		gateway.SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodPost {
			var req gateway.ActiveConfig
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			configStore.Set(req)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		json.NewEncoder(w).Encode(configStore.Get())
	}))

	mux.HandleFunc("/api/admin/enroll", auth.RequireTOTP(totpSecret, func(w http.ResponseWriter, r *http.Request) {
		gateway.SetCORS(w)
		account := r.URL.Query().Get("account")
		if account == "" {
			account = "operator@chanstruct"
		}
		enr, err := auth.Enroll(account)
		if err != nil {
			http.Error(w, `{"error":"enroll failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(enr.QRCodePNG)
	}))

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[api_gateway] serving at http://localhost%s", listenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[api_gateway] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[api_gateway] shutting down...")
	cancel()
	srv.Shutdown(context.Background())
}

// ---- Helpers ----

func parseTFs(s string) []int {
	var tfs []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n := 0
		for _, c := range p {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs
}

func parseTokenKeys(s string) []string {
	if s == "" {
		return nil
	}
	var keys []string
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		exName := "NSE"
		switch parts[0] {
		case "1":
			exName = "NSE"
		case "2":
			exName = "NFO"
		case "3":
			exName = "BSE"
		}
		keys = append(keys, exName+":"+parts[1])
	}
	return keys
}

func parseIndicatorNames(s string) []string {
	defaults := []string{"SMA_9", "SMA_20", "SMA_50", "SMA_200", "EMA_9", "EMA_21", "RSI_14"}
	if s == "" {
		return defaults
	}

	var names []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		tokens := strings.SplitN(part, ":", 2)
		if len(tokens) != 2 {
			continue
		}
		typ := strings.ToUpper(strings.TrimSpace(tokens[0]))
		period := strings.TrimSpace(tokens[1])
		if typ == "" || period == "" {
			continue
		}
		names = append(names, typ+"_"+period)
	}
	if len(names) == 0 {
		return defaults
	}
	log.Printf("[api_gateway] loaded %d indicators from INDICATOR_CONFIGS", len(names))
	return names
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
