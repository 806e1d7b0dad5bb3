// Package worker drives each queued submission through the
// download → moderate → stream pipeline. A single worker owns all status
// transitions, so at most one item is in flight across the process.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediajukebox/internal/domain"
	"mediajukebox/internal/metrics"
	"mediajukebox/internal/services/broadcast"
)

// Store is the queue-store surface the worker needs. A failed dequeue is
// logged and followed by the failure backoff before the next poll; failed
// writes abandon the in-flight transition only.
type Store interface {
	Dequeue() (domain.QueueItem, bool, error)
	UpdateStatus(id string, status domain.QueueStatus, errMsg string) error
	UpdateItem(item domain.QueueItem) error
}

type Fetcher interface {
	Fetch(ctx context.Context, item *domain.QueueItem) error
	Cleanup(item domain.QueueItem)
}

type Moderator interface {
	Check(ctx context.Context, filePath string) (approved bool, reason string)
}

type Broadcaster interface {
	StreamFile(ctx context.Context, filePath, title, submittedBy, promoLink string) error
	StreamIdle(ctx context.Context, d time.Duration)
	Skip()
}

type Config struct {
	Store       Store
	Fetcher     Fetcher
	Moderator   Moderator
	Broadcaster Broadcaster
	IdleTime    time.Duration // filler length between queue polls, default 30s
	FailBackoff time.Duration // pause after an unexpected failure, default 5s
	Logger      *slog.Logger
}

type Worker struct {
	store       Store
	fetcher     Fetcher
	moderator   Moderator
	broadcaster Broadcaster
	idleTime    time.Duration
	failBackoff time.Duration
	logger      *slog.Logger
}

func New(cfg Config) *Worker {
	w := &Worker{
		store:       cfg.Store,
		fetcher:     cfg.Fetcher,
		moderator:   cfg.Moderator,
		broadcaster: cfg.Broadcaster,
		idleTime:    cfg.IdleTime,
		failBackoff: cfg.FailBackoff,
		logger:      cfg.Logger,
	}
	if w.idleTime <= 0 {
		w.idleTime = 30 * time.Second
	}
	if w.failBackoff <= 0 {
		w.failBackoff = 5 * time.Second
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Run loops until ctx is cancelled: dequeue, process, or feed idle filler
// when the queue is empty. Returns nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("stream worker started")
	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("stream worker stopped")
			return nil
		}

		item, ok, err := w.store.Dequeue()
		if err != nil {
			w.logger.Error("dequeue failed", slog.String("error", err.Error()))
			w.pause(ctx, w.failBackoff)
			continue
		}
		if !ok {
			w.broadcaster.StreamIdle(ctx, w.idleTime)
			continue
		}

		w.process(ctx, item)
	}
}

// Skip interrupts the clip currently on air. The next queued item is
// unaffected.
func (w *Worker) Skip() {
	w.broadcaster.Skip()
}

func (w *Worker) process(ctx context.Context, item domain.QueueItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("pipeline panic",
				slog.String("itemId", item.ID),
				slog.String("panic", fmt.Sprint(r)),
			)
			w.fail(item, fmt.Sprintf("panic: %v", r))
			w.fetcher.Cleanup(item)
			w.pause(ctx, w.failBackoff)
		}
	}()

	w.logger.Info("processing submission",
		slog.String("itemId", item.ID),
		slog.String("url", item.URL),
		slog.String("submittedBy", item.SubmittedBy),
	)

	// Download.
	if err := w.store.UpdateStatus(item.ID, domain.StatusDownloading, ""); err != nil {
		w.logger.Error("status write failed, abandoning item", slog.String("error", err.Error()))
		w.pause(ctx, w.failBackoff)
		return
	}
	fetchStart := time.Now()
	if err := w.fetcher.Fetch(ctx, &item); err != nil {
		w.fail(item, err.Error())
		w.fetcher.Cleanup(item)
		return
	}
	metrics.DownloadDuration.Observe(time.Since(fetchStart).Seconds())

	// Moderate.
	approved, reason := w.moderator.Check(ctx, item.FilePath)
	metrics.ModerationVerdicts.WithLabelValues(verdictLabel(approved)).Inc()
	if !approved {
		w.fail(item, reason)
		w.fetcher.Cleanup(item)
		return
	}

	// Stream.
	item.Status = domain.StatusPlaying
	if err := w.store.UpdateItem(item); err != nil {
		w.logger.Error("status write failed, abandoning item", slog.String("error", err.Error()))
		w.fetcher.Cleanup(item)
		w.pause(ctx, w.failBackoff)
		return
	}
	metrics.ActiveStream.Set(1)
	streamStart := time.Now()
	err := w.broadcaster.StreamFile(ctx, item.FilePath, item.Title, item.SubmittedBy, item.PromoLink)
	metrics.ActiveStream.Set(0)
	metrics.EncodeDuration.Observe(time.Since(streamStart).Seconds())

	switch {
	case err == nil:
		w.finish(item, domain.StatusDone, "")
	case errors.Is(err, broadcast.ErrSkipped):
		metrics.SkipsTotal.Inc()
		w.finish(item, domain.StatusFailed, domain.ReasonSkipped)
	case ctx.Err() != nil:
		w.finish(item, domain.StatusFailed, domain.ReasonInterrupted)
	default:
		w.finish(item, domain.StatusFailed, domain.Failf(domain.ReasonEncoderFailed, "%v", err).Error())
	}
	w.fetcher.Cleanup(item)
}

func (w *Worker) finish(item domain.QueueItem, status domain.QueueStatus, errMsg string) {
	if err := w.store.UpdateStatus(item.ID, status, errMsg); err != nil {
		w.logger.Error("terminal status write failed",
			slog.String("itemId", item.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if status == domain.StatusDone {
		metrics.ItemsCompleted.Inc()
		w.logger.Info("submission done", slog.String("itemId", item.ID), slog.String("title", item.Title))
		return
	}
	metrics.ItemsFailed.WithLabelValues(reasonLabel(errMsg)).Inc()
	w.logger.Warn("submission failed",
		slog.String("itemId", item.ID),
		slog.String("reason", errMsg),
	)
}

func (w *Worker) fail(item domain.QueueItem, errMsg string) {
	w.finish(item, domain.StatusFailed, errMsg)
}

func (w *Worker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func verdictLabel(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

// reasonLabel extracts the stable prefix from an error message for metric
// labels, keeping cardinality bounded.
func reasonLabel(errMsg string) string {
	for i := 0; i < len(errMsg); i++ {
		if errMsg[i] == ':' {
			return errMsg[:i]
		}
	}
	if errMsg == "" {
		return "unknown"
	}
	return errMsg
}
