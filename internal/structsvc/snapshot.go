package structsvc

import (
	"context"
	"log"
	"strconv"
	"time"

	"chanstruct/internal/structengine"
)

// snapshotLoop periodically saves engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := structengine.SnapshotEngine(svc.engine, svc.getLastStreamID(ctx))
			if err != nil {
				log.Printf("[structsvc] snapshot error: %v", err)
				continue
			}

			if err := svc.redisReader.WriteStructureSnapshot(ctx, svc.cfg.SnapshotKey, snap); err != nil {
				log.Printf("[structsvc] redis snapshot write error: %v", err)
			}

			if svc.sqlWriter != nil {
				if err := svc.sqlWriter.SaveStructureSnapshot(snap); err != nil {
					log.Printf("[structsvc] sqlite snapshot write error: %v", err)
				}
			}

			log.Printf("[structsvc] checkpoint saved (%d tokens)", len(snap.Tokens))
		}
	}
}

// getLastStreamID returns a time-based stream ID marker for snapshots.
func (svc *Service) getLastStreamID(ctx context.Context) string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-0"
}
