package structsvc

import "testing"

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected default RedisAddr, got %s", cfg.RedisAddr)
	}
	if cfg.ConsumerGroup != "structengine" {
		t.Errorf("expected default ConsumerGroup=structengine, got %s", cfg.ConsumerGroup)
	}
	if cfg.SnapshotKey != "struct:snapshot:engine" {
		t.Errorf("expected default SnapshotKey, got %s", cfg.SnapshotKey)
	}
	if len(cfg.EnabledTFs) != 4 {
		t.Fatalf("expected 4 default TFs, got %d: %v", len(cfg.EnabledTFs), cfg.EnabledTFs)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("ENABLED_TFS", "60,900")
	t.Setenv("SUBSCRIBE_TOKENS", "1:3045,2:99926000")
	t.Setenv("STRUCT_SNAPSHOT_INTERVAL_SEC", "45")
	t.Setenv("PEL_MIN_IDLE_MS", "-1")

	cfg := LoadConfig()

	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("expected overridden RedisAddr, got %s", cfg.RedisAddr)
	}
	if len(cfg.EnabledTFs) != 2 || cfg.EnabledTFs[0] != 60 || cfg.EnabledTFs[1] != 900 {
		t.Fatalf("expected TFs [60 900], got %v", cfg.EnabledTFs)
	}
	if len(cfg.SubscribeTokenKeys) != 2 || cfg.SubscribeTokenKeys[0] != "NSE:3045" || cfg.SubscribeTokenKeys[1] != "NFO:99926000" {
		t.Fatalf("expected token keys [NSE:3045 NFO:99926000], got %v", cfg.SubscribeTokenKeys)
	}
	if cfg.SnapshotIntervalS != 45 {
		t.Errorf("expected SnapshotIntervalS=45, got %d", cfg.SnapshotIntervalS)
	}
	// PEL_MIN_IDLE_MS=-1 is invalid — must fall back to the default.
	if cfg.PELMinIdleMs != 60000 {
		t.Errorf("expected PELMinIdleMs fallback to 60000, got %d", cfg.PELMinIdleMs)
	}
}
