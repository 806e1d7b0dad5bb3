package bolt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bbolt "go.etcd.io/bbolt"

	"mediajukebox/internal/domain"
)

var bucketQueue = []byte("queue")

// queueDoc is the persisted form of a queue item. Field names mirror the
// queue table columns so the on-disk format is stable across refactors.
type queueDoc struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	FilePath        string  `json:"file_path,omitempty"`
	Title           string  `json:"title"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	SubmittedBy     string  `json:"submitted_by"`
	SubmittedAt     string  `json:"submitted_at"`
	Status          string  `json:"status"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	PromoLink       string  `json:"promo_link,omitempty"`
	Position        int64   `json:"position"`
}

// Repository is a durable FIFO of queue items backed by bbolt. All writes go
// through bbolt update transactions, so concurrent enqueuers are serialised
// and positions stay unique among pending rows.
type Repository struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the queue database at path.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQueue)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue bucket: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Enqueue inserts a pending item, assigning the next position after the
// highest currently-pending one, and returns the assigned position.
func (r *Repository) Enqueue(item domain.QueueItem) (int64, error) {
	var position int64
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		var maxPos int64
		if err := forEachDoc(b, func(doc queueDoc) error {
			if doc.Status == string(domain.StatusPending) && doc.Position > maxPos {
				maxPos = doc.Position
			}
			return nil
		}); err != nil {
			return err
		}
		position = maxPos + 1
		item.Position = position
		item.Status = domain.StatusPending
		return putDoc(b, toDoc(item))
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Dequeue returns the pending item with the lowest position without removing
// it. The worker owns the subsequent status transition.
func (r *Repository) Dequeue() (domain.QueueItem, bool, error) {
	var (
		found bool
		best  queueDoc
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		return forEachDoc(tx.Bucket(bucketQueue), func(doc queueDoc) error {
			if doc.Status != string(domain.StatusPending) {
				return nil
			}
			if !found || doc.Position < best.Position {
				found = true
				best = doc
			}
			return nil
		})
	})
	if err != nil || !found {
		return domain.QueueItem{}, false, err
	}
	return fromDoc(best), true, nil
}

// UpdateStatus atomically rewrites an item's status and error message.
func (r *Repository) UpdateStatus(id string, status domain.QueueStatus, errMsg string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		doc, err := getDoc(b, id)
		if err != nil {
			return err
		}
		doc.Status = string(status)
		doc.ErrorMessage = errMsg
		return putDoc(b, doc)
	})
}

// UpdateItem persists the fields the pipeline enriches after fetch: file
// path, title, duration, status and error message.
func (r *Repository) UpdateItem(item domain.QueueItem) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		doc, err := getDoc(b, item.ID)
		if err != nil {
			return err
		}
		doc.FilePath = item.FilePath
		doc.Title = item.Title
		doc.DurationSeconds = item.DurationSeconds
		doc.Status = string(item.Status)
		doc.ErrorMessage = item.ErrorMessage
		return putDoc(b, doc)
	})
}

// Get returns a single item by id.
func (r *Repository) Get(id string) (domain.QueueItem, error) {
	var doc queueDoc
	err := r.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = getDoc(tx.Bucket(bucketQueue), id)
		return err
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	return fromDoc(doc), nil
}

// GetQueue returns up to limit pending items in position order.
func (r *Repository) GetQueue(limit int) ([]domain.QueueItem, error) {
	var docs []queueDoc
	err := r.db.View(func(tx *bbolt.Tx) error {
		return forEachDoc(tx.Bucket(bucketQueue), func(doc queueDoc) error {
			if doc.Status == string(domain.StatusPending) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Position < docs[j].Position })
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	items := make([]domain.QueueItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fromDoc(doc))
	}
	return items, nil
}

// GetNowPlaying returns the single item in playing status, if any.
func (r *Repository) GetNowPlaying() (domain.QueueItem, bool, error) {
	var (
		found bool
		doc   queueDoc
	)
	err := r.db.View(func(tx *bbolt.Tx) error {
		return forEachDoc(tx.Bucket(bucketQueue), func(d queueDoc) error {
			if !found && d.Status == string(domain.StatusPlaying) {
				found = true
				doc = d
			}
			return nil
		})
	})
	if err != nil || !found {
		return domain.QueueItem{}, false, err
	}
	return fromDoc(doc), true, nil
}

// PositionOf returns the 1-based rank of id among pending items.
func (r *Repository) PositionOf(id string) (int, error) {
	rank := 0
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		doc, err := getDoc(b, id)
		if err != nil {
			return err
		}
		return forEachDoc(b, func(d queueDoc) error {
			if d.Status == string(domain.StatusPending) && d.Position <= doc.Position {
				rank++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return rank, nil
}

// ClearPending deletes all pending rows and reports how many were removed.
// Items in downloading or playing status are untouched.
func (r *Repository) ClearPending() (int, error) {
	removed := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		var ids []string
		if err := forEachDoc(b, func(doc queueDoc) error {
			if doc.Status == string(domain.StatusPending) {
				ids = append(ids, doc.ID)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		removed = len(ids)
		return nil
	})
	return removed, err
}

// Remove deletes a single row and reports whether it existed.
func (r *Repository) Remove(id string) (bool, error) {
	existed := false
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		existed = b.Get([]byte(id)) != nil
		return b.Delete([]byte(id))
	})
	return existed, err
}

// RepairInterrupted rewrites every row left in downloading or playing status
// to failed("interrupted"). Run once at startup, before the worker's first
// dequeue; such rows are remnants of a crash mid-pipeline.
func (r *Repository) RepairInterrupted() (int, error) {
	repaired := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		var docs []queueDoc
		if err := forEachDoc(b, func(doc queueDoc) error {
			if domain.QueueStatus(doc.Status).InFlight() {
				docs = append(docs, doc)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, doc := range docs {
			doc.Status = string(domain.StatusFailed)
			doc.ErrorMessage = domain.ReasonInterrupted
			if err := putDoc(b, doc); err != nil {
				return err
			}
		}
		repaired = len(docs)
		return nil
	})
	return repaired, err
}

func forEachDoc(b *bbolt.Bucket, fn func(queueDoc) error) error {
	return b.ForEach(func(_, v []byte) error {
		var doc queueDoc
		if err := json.Unmarshal(v, &doc); err != nil {
			return fmt.Errorf("decode queue row: %w", err)
		}
		return fn(doc)
	})
}

func getDoc(b *bbolt.Bucket, id string) (queueDoc, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return queueDoc{}, domain.ErrNotFound
	}
	var doc queueDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return queueDoc{}, fmt.Errorf("decode queue row: %w", err)
	}
	return doc, nil
}

func putDoc(b *bbolt.Bucket, doc queueDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode queue row: %w", err)
	}
	return b.Put([]byte(doc.ID), raw)
}

func toDoc(item domain.QueueItem) queueDoc {
	return queueDoc{
		ID:              item.ID,
		URL:             item.URL,
		FilePath:        item.FilePath,
		Title:           item.Title,
		DurationSeconds: item.DurationSeconds,
		SubmittedBy:     item.SubmittedBy,
		SubmittedAt:     item.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Status:          string(item.Status),
		ErrorMessage:    item.ErrorMessage,
		PromoLink:       item.PromoLink,
		Position:        item.Position,
	}
}

func fromDoc(doc queueDoc) domain.QueueItem {
	submittedAt, _ := time.Parse(time.RFC3339Nano, doc.SubmittedAt)
	return domain.QueueItem{
		ID:              doc.ID,
		URL:             doc.URL,
		FilePath:        doc.FilePath,
		Title:           doc.Title,
		DurationSeconds: doc.DurationSeconds,
		SubmittedBy:     doc.SubmittedBy,
		SubmittedAt:     submittedAt,
		Status:          domain.QueueStatus(doc.Status),
		ErrorMessage:    doc.ErrorMessage,
		PromoLink:       doc.PromoLink,
		Position:        doc.Position,
	}
}
