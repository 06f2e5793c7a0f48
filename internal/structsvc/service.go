package structsvc

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"chanstruct/internal/metrics"
	"chanstruct/internal/model"
	"chanstruct/internal/notification"
	redisstore "chanstruct/internal/store/redis"
	sqlitestore "chanstruct/internal/store/sqlite"
	"chanstruct/internal/structengine"
)

// Service is the top-level orchestrator for the structure (Chan-theory)
// engine. It wires all dependencies, manages lifecycle, and coordinates
// goroutines.
type Service struct {
	cfg Config

	engine      *structengine.Engine
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer
	prom        *metrics.Metrics
	notifier    notification.Notifier

	streams    []string
	tfCandleCh chan model.TFCandle
}

// New creates a new Service from the given Config. It connects to Redis
// and SQLite and restores the structure engine.
func New(cfg Config) (*Service, error) {
	svc := &Service{
		cfg:        cfg,
		prom:       metrics.NewMetrics(),
		notifier:   buildNotifier(cfg),
		tfCandleCh: make(chan model.TFCandle, 5000),
	}

	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}

	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Printf("[structsvc] WARNING: sqlite reader init failed: %v (continuing without SQLite backfill)", err)
	}

	os.MkdirAll("data", 0o755)
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Printf("[structsvc] WARNING: sqlite writer init failed: %v", err)
	}

	return svc, nil
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	log.Println("[structsvc] starting Structure Engine microservice...")

	if err := svc.restoreEngine(ctx); err != nil {
		return err
	}

	svc.streams = svc.buildStreams(ctx)
	log.Printf("[structsvc] consuming from %d streams: %v", len(svc.streams), svc.streams)

	svc.backfillFromRedis(ctx)
	svc.replayDelta(ctx)

	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			log.Printf("[structsvc] WARNING: consumer group setup: %v", err)
		}
	}

	if len(svc.streams) > 0 {
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.tfCandleCh); err != nil {
			log.Printf("[structsvc] pending recovery error: %v", err)
		}
	}

	svc.startPELReclaimer(ctx)
	go svc.processLoop(ctx)
	svc.startConsumer(ctx)
	go svc.snapshotLoop(ctx)
	svc.startHTTP(ctx)

	log.Println("[structsvc] ╔════════════════════════════════════════════════════════╗")
	log.Println("[structsvc] ║  Structure Engine Active                              ║")
	log.Println("[structsvc] ║                                                       ║")
	log.Println("[structsvc] ║  [Redis Streams] → [Chan Structures] → [Redis Publish]║")
	log.Printf("[structsvc] ║  Snapshot checkpoint every %ds                      ║", cfg.SnapshotIntervalS)
	log.Printf("[structsvc] ║  TFs: %v                                   ║", cfg.EnabledTFs)
	log.Println("[structsvc] ╚════════════════════════════════════════════════════════╝")
	log.Println("[structsvc] all systems running. Press Ctrl+C to stop.")

	<-ctx.Done()

	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	log.Println("[structsvc] shutdown signal received, saving final snapshot...")

	finalSnap, err := structengine.SnapshotEngine(svc.engine, "shutdown")
	if err == nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutCancel()

		if svc.redisReader != nil {
			svc.redisReader.WriteStructureSnapshot(shutCtx, svc.cfg.SnapshotKey, finalSnap)
		}
		if svc.sqlWriter != nil {
			svc.sqlWriter.SaveStructureSnapshot(finalSnap)
		}
		log.Println("[structsvc] final snapshot saved")
	}

	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	svc.redisWriter.Close()
	svc.redisReader.Close()

	log.Println("[structsvc] shutdown complete.")
}

// restoreEngine restores the structure engine from a Redis or SQLite
// snapshot (Redis first, then SQLite). There is no SQLite backfill warm-up:
// the engine replays its own bounded bar buffer deterministically instead
// of recomputing from full history.
func (svc *Service) restoreEngine(ctx context.Context) error {
	restorer := structengine.NewRestorer(svc.cfg.EnabledTFs)

	snap, err := svc.redisReader.ReadStructureSnapshot(ctx, svc.cfg.SnapshotKey)
	if err != nil {
		log.Printf("[structsvc] redis snapshot read error: %v", err)
	}

	if snap == nil && svc.sqlReader != nil {
		snap, err = svc.sqlReader.ReadLatestStructureSnapshot()
		if err != nil {
			log.Printf("[structsvc] sqlite snapshot read error: %v", err)
		}
	}

	svc.engine, err = restorer.RestoreFromSnap(snap)
	return err
}

// buildStreams discovers or constructs the Redis stream names to consume.
func (svc *Service) buildStreams(ctx context.Context) []string {
	var streams []string
	for _, tf := range svc.cfg.EnabledTFs {
		if len(svc.cfg.SubscribeTokenKeys) > 0 {
			for _, tk := range svc.cfg.SubscribeTokenKeys {
				streams = append(streams, "candle:"+strconv.Itoa(tf)+"s:"+tk)
			}
		} else {
			discovered := svc.redisReader.DiscoverTFStreams(ctx, []int{tf}, svc.cfg.SubscribeTokenKeys)
			streams = append(streams, discovered...)
		}
	}
	return streams
}

// backfillFromRedis replays all historical candles from Redis streams
// through the engine.
func (svc *Service) backfillFromRedis(ctx context.Context) {
	backfillCh := make(chan model.TFCandle, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, "0", backfillCh)
			if err != nil {
				log.Printf("[structsvc] backfill error on %s: %v", stream, err)
			}
		}
		close(backfillCh)
	}()

	backfillCount := 0
	for tfc := range backfillCh {
		if !tfc.Forming {
			events := svc.engine.Process(tfc)
			if len(events) > 0 {
				svc.redisWriter.WriteStructureBatch(ctx, events)
				svc.sqlWrite(events)
			}
			backfillCount++
		}
	}
	if backfillCount > 0 {
		log.Printf("[structsvc] backfilled %d candles from Redis streams (structure events written)", backfillCount)
	} else {
		log.Println("[structsvc] no candles in Redis streams to backfill from")
	}
}

// replayDelta replays candles since the snapshot to catch up on missed data.
func (svc *Service) replayDelta(ctx context.Context) {
	snap, _ := svc.redisReader.ReadStructureSnapshot(ctx, svc.cfg.SnapshotKey)
	if snap == nil || snap.StreamID == "" {
		return
	}

	log.Printf("[structsvc] replaying delta from stream ID: %s", snap.StreamID)
	replayCh := make(chan model.TFCandle, 5000)
	go func() {
		for _, stream := range svc.streams {
			_, err := svc.redisReader.ReplayFromID(ctx, stream, snap.StreamID, replayCh)
			if err != nil {
				log.Printf("[structsvc] replay error on %s: %v", stream, err)
			}
		}
		close(replayCh)
	}()

	deltaCount := 0
	for tfc := range replayCh {
		if !tfc.Forming {
			events := svc.engine.Process(tfc)
			if len(events) > 0 {
				svc.redisWriter.WriteStructureBatch(ctx, events)
				svc.sqlWrite(events)
			}
			deltaCount++
		}
	}
	log.Printf("[structsvc] replayed %d delta candles (structure events written)", deltaCount)
}

// buildNotifier picks an alert channel from configured env vars: webhook
// takes priority over Telegram, and a log notifier is the fallback so
// confirmed structures always surface somewhere.
func buildNotifier(cfg Config) notification.Notifier {
	if cfg.NotifyWebhookURL != "" {
		return notification.NewWebhookNotifier(cfg.NotifyWebhookURL)
	}
	if cfg.NotifyTelegramBotToken != "" && cfg.NotifyTelegramChatID != "" {
		return notification.NewTelegramNotifier(cfg.NotifyTelegramBotToken, cfg.NotifyTelegramChatID)
	}
	return notification.NewLogNotifier()
}

// sqlWrite persists structure events to SQLite if a writer is configured.
func (svc *Service) sqlWrite(events []model.StructureEvent) {
	if svc.sqlWriter == nil {
		return
	}
	svc.sqlWriter.WriteStructureBatch(context.Background(), events)
}
