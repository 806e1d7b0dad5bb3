package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending     QueueStatus = "pending"
	StatusDownloading QueueStatus = "downloading"
	StatusPlaying     QueueStatus = "playing"
	StatusDone        QueueStatus = "done"
	StatusFailed      QueueStatus = "failed"
)

// Terminal reports whether the status is final. Terminal items are kept for
// history but never reconsidered by the worker.
func (s QueueStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// InFlight reports whether an item is currently owned by the worker.
// At most one item may be in flight across the whole process.
func (s QueueStatus) InFlight() bool {
	return s == StatusDownloading || s == StatusPlaying
}

// QueueItem is a single viewer submission. Rows persist after reaching a
// terminal status; only the downloaded media file is reclaimed.
type QueueItem struct {
	ID              string
	URL             string
	FilePath        string
	Title           string
	DurationSeconds float64
	SubmittedBy     string
	SubmittedAt     time.Time
	Status          QueueStatus
	ErrorMessage    string
	PromoLink       string
	Position        int64
}

// NewQueueItem builds a pending item for a fresh submission.
func NewQueueItem(url, submittedBy, promoLink string, now time.Time) QueueItem {
	return QueueItem{
		ID:          uuid.NewString(),
		URL:         url,
		Title:       "Unknown",
		SubmittedBy: submittedBy,
		SubmittedAt: now.UTC(),
		Status:      StatusPending,
		PromoLink:   promoLink,
	}
}

var (
	ErrNotFound = errors.New("queue item not found")
	ErrClosed   = errors.New("queue store is closed")
)
