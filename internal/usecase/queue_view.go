package usecase

import "mediajukebox/internal/domain"

const defaultQueueLimit = 5

type QueueReader interface {
	GetQueue(limit int) ([]domain.QueueItem, error)
	GetNowPlaying() (domain.QueueItem, bool, error)
}

// QueueEntry is the viewer-facing slice of a pending item.
type QueueEntry struct {
	Position    int64
	Title       string
	SubmittedBy string
}

// QueueView lists the head of the pending queue.
type QueueView struct {
	Store QueueReader
}

func (q QueueView) Execute(limit int) ([]QueueEntry, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	items, err := q.Store.GetQueue(limit)
	if err != nil {
		return nil, err
	}
	entries := make([]QueueEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, QueueEntry{
			Position:    item.Position,
			Title:       item.Title,
			SubmittedBy: item.SubmittedBy,
		})
	}
	return entries, nil
}

// NowPlaying reports the clip currently on air, if any.
type NowPlaying struct {
	Store QueueReader
}

func (n NowPlaying) Execute() (domain.QueueItem, bool, error) {
	return n.Store.GetNowPlaying()
}
