package watcher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/brojonat/daiwatch/service/metrics"
	natspkg "github.com/brojonat/daiwatch/service/nats"
	"github.com/brojonat/daiwatch/service/transfers"
)

// SourceInterface defines the chain operations needed by the watcher.
// This allows for easy mocking in tests.
type SourceInterface interface {
	FetchRecentTransfers(ctx context.Context, window uint64) ([]transfers.Record, error)
	WatchTransfers(ctx context.Context, onTransfer func(transfers.Record), onRemoved func(transfers.Key)) error
}

// PublisherInterface defines the NATS publishing operations needed by the watcher.
type PublisherInterface interface {
	PublishTransfer(ctx context.Context, event *natspkg.TransferEvent) error
	PublishTransferBatch(ctx context.Context, events []*natspkg.TransferEvent) error
}

// ArchiverInterface defines the archive operations needed by the watcher.
type ArchiverInterface interface {
	SaveTransfers(ctx context.Context, records []transfers.Record) (int64, error)
}

// Config holds the watcher's dependencies. Publisher and Archiver are optional.
type Config struct {
	Source      SourceInterface
	Feed        *transfers.Feed
	Publisher   PublisherInterface
	Archiver    ArchiverInterface
	Contract    string
	BlockWindow uint64
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Watcher keeps the feed populated: one historical backfill, then live
// transfers for as long as the subscription lasts.
type Watcher struct {
	source    SourceInterface
	feed      *transfers.Feed
	publisher PublisherInterface
	archiver  ArchiverInterface
	contract  string
	window    uint64
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Watcher with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func New(cfg Config) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.BlockWindow
	if window == 0 {
		window = 100
	}
	return &Watcher{
		source:    cfg.Source,
		feed:      cfg.Feed,
		publisher: cfg.Publisher,
		archiver:  cfg.Archiver,
		contract:  cfg.Contract,
		window:    window,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

// Run backfills the feed and follows live transfers until ctx is cancelled
// or the subscription fails.
//
// The backfill runs alongside the subscription so no transfer mined during
// the historical fetch is missed. A backfill failure is logged and the feed
// stays unloaded; it is not retried. A subscription failure is logged and
// returned, and the feed keeps its last contents.
func (w *Watcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Backfill(ctx)
	}()
	defer wg.Wait()

	err := w.source.WatchTransfers(ctx, w.handleTransfer, w.handleRemoved)
	if err != nil {
		w.logger.ErrorContext(ctx, "live transfer subscription stopped", "error", err)
		return err
	}
	return nil
}

// Backfill loads the recent block window into the feed. It reports whether
// the feed was loaded.
func (w *Watcher) Backfill(ctx context.Context) bool {
	records, err := w.source.FetchRecentTransfers(ctx, w.window)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "failed to fetch recent transfers", "error", err)
		}
		return false
	}

	dups := w.feed.Replace(records)
	w.metrics.RecordDuplicates(string(transfers.SourceHistorical), dups)
	w.metrics.SetFeedSize(w.feed.Len())

	w.logger.InfoContext(ctx, "loaded recent transfers",
		"fetched", len(records),
		"duplicates", dups,
		"feed_size", w.feed.Len(),
	)

	unique, _ := transfers.Merge(records)
	w.publishBatch(ctx, unique)
	w.archive(ctx, unique)
	return true
}

func (w *Watcher) handleTransfer(r transfers.Record) {
	ctx := context.Background()
	if !w.feed.Prepend(r) {
		w.metrics.RecordDuplicates(string(transfers.SourceLive), 1)
		w.logger.Debug("ignoring known transfer", "key", r.Key().String())
		return
	}
	w.metrics.SetFeedSize(w.feed.Len())

	w.logger.Debug("live transfer",
		"tx_hash", r.TxHash,
		"log_index", r.LogIndex,
		"value", r.Value.String(),
	)

	w.publish(ctx, r)
	w.archive(ctx, []transfers.Record{r})
}

func (w *Watcher) handleRemoved(k transfers.Key) {
	if w.feed.Remove(k) {
		w.metrics.RecordTransferRemoved()
		w.metrics.SetFeedSize(w.feed.Len())
	}
}

// publish is best-effort: a failure is logged and the transfer stays in the feed.
func (w *Watcher) publish(ctx context.Context, r transfers.Record) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishTransfer(ctx, natspkg.FromRecord(w.contract, r)); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish transfer to NATS",
			"tx_hash", r.TxHash,
			"log_index", r.LogIndex,
			"error", err,
		)
	}
}

// publishBatch sends the backfilled transfers with source historical. Like
// publish, a failure is only logged.
func (w *Watcher) publishBatch(ctx context.Context, records []transfers.Record) {
	if w.publisher == nil || len(records) == 0 {
		return
	}
	events := make([]*natspkg.TransferEvent, 0, len(records))
	for _, r := range records {
		events = append(events, natspkg.FromRecord(w.contract, r))
	}
	if err := w.publisher.PublishTransferBatch(ctx, events); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish backfilled transfers to NATS",
			"count", len(events),
			"error", err,
		)
	}
}

func (w *Watcher) archive(ctx context.Context, records []transfers.Record) {
	if w.archiver == nil || len(records) == 0 {
		return
	}
	n, err := w.archiver.SaveTransfers(ctx, records)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to archive transfers",
			"count", len(records),
			"error", err,
		)
		return
	}
	w.logger.DebugContext(ctx, "archived transfers",
		"count", len(records),
		"inserted", n,
	)
}
