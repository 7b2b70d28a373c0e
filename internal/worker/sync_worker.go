package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/schemagate/internal/models"
)

// UnsyncedLister lists persisted artifacts awaiting delivery.
type UnsyncedLister interface {
	ListUnsynced(ctx context.Context, limit int) ([]models.ProductRecord, error)
}

// Deliverer publishes one artifact and records the sync.
type Deliverer interface {
	Deliver(ctx context.Context, rec *models.ProductRecord) error
}

// SyncWorker re-delivers artifacts whose asynchronous hand-off failed.
type SyncWorker struct {
	records     UnsyncedLister
	delivery    Deliverer
	interval    time.Duration
	batchSize   int
	concurrency int
}

// NewSyncWorker constructs a SyncWorker.
func NewSyncWorker(records UnsyncedLister, delivery Deliverer, interval time.Duration, batchSize, concurrency int) *SyncWorker {
	return &SyncWorker{
		records:     records,
		delivery:    delivery,
		interval:    interval,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Start begins the periodic sync loop until context is canceled.
func (w *SyncWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Int("concurrency", w.concurrency).Msg("Starting sync worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(ctx)
		case <-ctx.Done():
			log.Info().Msg("Sync worker stopped")
			return
		}
	}
}

// RunOnce delivers one batch and returns how many records were delivered.
func (w *SyncWorker) RunOnce(ctx context.Context) int {
	records, err := w.records.ListUnsynced(ctx, w.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list unsynced artifacts")
		return 0
	}
	if len(records) == 0 {
		return 0
	}
	log.Info().Int("count", len(records)).Msg("Delivering unsynced artifacts")

	results := make([]bool, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i := range records {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			rec := &records[i]
			if err := w.delivery.Deliver(gctx, rec); err != nil {
				log.Warn().Err(err).Str("product_id", rec.ProductID).Msg("Artifact delivery failed")
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}
