package structsvc

import (
	"context"
	"fmt"
	"log"
	"time"

	"chanstruct/internal/model"
	"chanstruct/internal/notification"
)

// startConsumer starts the Redis stream XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeTFCandles(ctx, svc.streams, svc.tfCandleCh); err != nil {
			log.Printf("[structsvc] consumer error: %v", err)
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		svc.cfg.ConsumerGroup, svc.cfg.ConsumerName,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.tfCandleCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			log.Printf("[structsvc] reclaimed %d stale PEL messages", count)
		})
	log.Printf("[structsvc] PEL reclaimer started (interval=%ds, minIdle=%dms)",
		svc.cfg.PELIntervalS, svc.cfg.PELMinIdleMs)
}

// processLoop consumes finalized TF candles from the channel and runs them
// through the structure engine. There is no peek/forming
// path: Chan structures (fractals, pens, segments) are only ever confirmed
// against closed candles, so forming candles are simply dropped here.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tfc, ok := <-svc.tfCandleCh:
			if !ok {
				return
			}
			if tfc.Forming {
				continue
			}

			start := time.Now()
			events := svc.engine.Process(tfc)
			elapsed := time.Since(start)
			svc.prom.StructureComputeDur.Observe(elapsed.Seconds())

			if len(events) == 0 {
				continue
			}
			for _, e := range events {
				svc.prom.StructureEventsTotal.WithLabelValues(string(e.Kind)).Inc()
			}
			svc.redisWriter.WriteStructureBatch(ctx, events)
			svc.sqlWrite(events)
			svc.notify(ctx, events)
		}
	}
}

// notify alerts on newly confirmed pens and segments. Only called from the
// live processLoop — backfillFromRedis and replayDelta skip it so startup
// catch-up doesn't spam alerts for history.
func (svc *Service) notify(ctx context.Context, events []model.StructureEvent) {
	for _, e := range events {
		var confirmed bool
		switch e.Kind {
		case model.StructurePen:
			confirmed = e.Sub == "first" || e.Sub == "new"
		case model.StructureSegment:
			confirmed = e.Sub == "new"
		}
		if !confirmed {
			continue
		}
		alert := notification.Alert{
			Level: notification.AlertInfo,
			Title: fmt.Sprintf("%s confirmed: %s:%s", e.Kind, e.Exchange, e.Token),
			Message: fmt.Sprintf("tf=%ds sub=%s price=%.2f direction=%s",
				e.TF, e.Sub, e.Price, e.Direction),
		}
		if err := svc.notifier.Send(ctx, alert); err != nil {
			log.Printf("[structsvc] notify error: %v", err)
		}
	}
}
