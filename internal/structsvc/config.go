package structsvc

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all env-parsed configuration for the structure engine service.
type Config struct {
	RedisAddr              string
	RedisPassword          string
	SQLitePath             string
	ConsumerGroup          string
	ConsumerName           string
	EnabledTFs             []int
	SnapshotIntervalS      int
	SubscribeTokenKeys     []string // "exchange:token" keys
	SnapshotKey            string
	HTTPAddr               string
	PELIntervalS           int
	PELMinIdleMs           int64
	NotifyWebhookURL       string
	NotifyTelegramBotToken string
	NotifyTelegramChatID   string
}

// LoadConfig reads all environment variables and returns a Config.
func LoadConfig() Config {
	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	sqlitePath := getEnv("SQLITE_PATH", "data/candles.db")
	consumerGroup := getEnv("STRUCT_CONSUMER_GROUP", "structengine")
	consumerName := getEnv("STRUCT_CONSUMER_NAME", "worker-1")
	enabledTFsStr := getEnv("ENABLED_TFS", "60,120,180,300")
	snapshotIntervalStr := getEnv("STRUCT_SNAPSHOT_INTERVAL_SEC", "30")
	subscribeTokens := getEnv("SUBSCRIBE_TOKENS", "")
	snapshotKey := getEnv("STRUCT_SNAPSHOT_KEY", "struct:snapshot:engine")
	httpAddr := getEnv("STRUCTENGINE_HTTP_ADDR", ":9096")
	pelIntervalStr := getEnv("PEL_RECLAIM_INTERVAL_SEC", "30")
	pelMinIdleStr := getEnv("PEL_MIN_IDLE_MS", "60000")
	notifyWebhookURL := getEnv("NOTIFY_WEBHOOK_URL", "")
	notifyTelegramBotToken := getEnv("NOTIFY_TELEGRAM_BOT_TOKEN", "")
	notifyTelegramChatID := getEnv("NOTIFY_TELEGRAM_CHAT_ID", "")

	pelInterval, _ := strconv.Atoi(pelIntervalStr)
	if pelInterval <= 0 {
		pelInterval = 30
	}
	pelMinIdle, _ := strconv.ParseInt(pelMinIdleStr, 10, 64)
	if pelMinIdle <= 0 {
		pelMinIdle = 60000
	}

	snapshotInterval, _ := strconv.Atoi(snapshotIntervalStr)
	if snapshotInterval <= 0 {
		snapshotInterval = 30
	}

	return Config{
		RedisAddr:              redisAddr,
		RedisPassword:          redisPassword,
		SQLitePath:             sqlitePath,
		ConsumerGroup:          consumerGroup,
		ConsumerName:           consumerName,
		EnabledTFs:             parseTFs(enabledTFsStr),
		SnapshotIntervalS:      snapshotInterval,
		SubscribeTokenKeys:     parseTokenKeys(subscribeTokens),
		SnapshotKey:            snapshotKey,
		HTTPAddr:               httpAddr,
		PELIntervalS:           pelInterval,
		PELMinIdleMs:           pelMinIdle,
		NotifyWebhookURL:       notifyWebhookURL,
		NotifyTelegramBotToken: notifyTelegramBotToken,
		NotifyTelegramChatID:   notifyTelegramChatID,
	}
}

func parseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// parseTokenKeys parses "exchangeType:token,..." into "exchange:token" keys.
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

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
