package usecase

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"mediajukebox/internal/domain"
	"mediajukebox/internal/metrics"
)

// Hosts a media URL may come from, plus direct-media suffixes. Matching is a
// substring check on the lowercased URL.
var mediaURLMarkers = []string{
	"twitch.tv", "youtube.com", "youtu.be", "clips.twitch.tv",
	".mp4", ".mp3", ".webm",
}

// Hosts a promo link may point at. Unknown promos are dropped silently; the
// submission itself still goes through.
var promoURLMarkers = []string{
	"youtube.com", "youtu.be", "soundcloud.com", "spotify.com",
	"bandcamp.com", "twitter.com", "x.com", "instagram.com",
}

const (
	maxHandleLen = 64
	maxPromoLen  = 200
)

var (
	ErrInvalidURL     = errors.New("url is not an accepted media link")
	ErrEmptySubmitter = errors.New("submitter handle is required")
)

// NoticeText is the copyright advisory shown once per submitter per process.
const NoticeText = "NOTICE: By submitting content, you confirm you have the rights to share it. " +
	"No copyrighted, illegal, hateful, or NSFW content. Violations may result in a ban."

type QueueInserter interface {
	Enqueue(item domain.QueueItem) (int64, error)
}

type SubmitInput struct {
	URL         string
	SubmittedBy string
	PromoLink   string
}

type SubmitResult struct {
	ID              string
	Position        int64
	PromoDropped    bool
	FirstSubmission bool
}

// Submit validates and enqueues a viewer request. It also tracks which
// submitters have already seen the copyright notice this process.
type Submit struct {
	store QueueInserter
	now   func() time.Time

	mu     sync.Mutex
	warned map[string]struct{}
}

func NewSubmit(store QueueInserter, now func() time.Time) *Submit {
	if now == nil {
		now = time.Now
	}
	return &Submit{store: store, now: now, warned: make(map[string]struct{})}
}

func (s *Submit) Execute(input SubmitInput) (SubmitResult, error) {
	submittedBy := normalizeText(input.SubmittedBy, maxHandleLen)
	if submittedBy == "" {
		return SubmitResult{}, ErrEmptySubmitter
	}

	url := strings.TrimSpace(input.URL)
	if !matchesAny(url, mediaURLMarkers) {
		return SubmitResult{}, ErrInvalidURL
	}

	promo := normalizeText(input.PromoLink, maxPromoLen)
	promoDropped := false
	if promo != "" && !matchesAny(promo, promoURLMarkers) {
		promo = ""
		promoDropped = true
	}

	item := domain.NewQueueItem(url, submittedBy, promo, s.now())
	position, err := s.store.Enqueue(item)
	if err != nil {
		return SubmitResult{}, err
	}
	metrics.ItemsEnqueued.Inc()

	return SubmitResult{
		ID:              item.ID,
		Position:        position,
		PromoDropped:    promoDropped,
		FirstSubmission: s.markWarned(submittedBy),
	}, nil
}

// markWarned records the submitter as having seen the copyright notice and
// reports whether this was their first submission.
func (s *Submit) markWarned(submittedBy string) bool {
	key := strings.ToLower(submittedBy)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.warned[key]; seen {
		return false
	}
	s.warned[key] = struct{}{}
	return true
}

func matchesAny(url string, markers []string) bool {
	lowered := strings.ToLower(url)
	for _, marker := range markers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// normalizeText NFC-normalises adapter-supplied text, drops whitespace and
// unprintable runes, and caps the length.
func normalizeText(raw string, maxRunes int) string {
	normalized := norm.NFC.String(strings.TrimSpace(raw))
	var b strings.Builder
	count := 0
	for _, r := range normalized {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count == maxRunes {
			break
		}
	}
	return b.String()
}
