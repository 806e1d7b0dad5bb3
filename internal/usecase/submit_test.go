package usecase

import (
	"errors"
	"testing"
	"time"

	"mediajukebox/internal/domain"
)

type fakeInserter struct {
	items []domain.QueueItem
	err   error
}

func (f *fakeInserter) Enqueue(item domain.QueueItem) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.items = append(f.items, item)
	return int64(len(f.items)), nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
}

func TestSubmitAcceptedURLs(t *testing.T) {
	urls := []string{
		"https://clips.twitch.tv/FunnyClip",
		"https://www.youtube.com/watch?v=abc123",
		"https://youtu.be/abc123",
		"https://example.com/song.mp3",
		"https://example.com/clip.MP4?token=x",
		"https://cdn.example.com/loop.webm",
	}
	for _, url := range urls {
		t.Run(url, func(t *testing.T) {
			store := &fakeInserter{}
			s := NewSubmit(store, fixedNow)
			result, err := s.Execute(SubmitInput{URL: url, SubmittedBy: "alice"})
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if result.Position != 1 || result.ID == "" {
				t.Errorf("result = %+v", result)
			}
		})
	}
}

func TestSubmitRejectsUnknownURLs(t *testing.T) {
	urls := []string{
		"https://example.com/page.html",
		"ftp://example.com/clip.mkv",
		"not a url",
		"",
	}
	for _, url := range urls {
		t.Run(url, func(t *testing.T) {
			s := NewSubmit(&fakeInserter{}, fixedNow)
			if _, err := s.Execute(SubmitInput{URL: url, SubmittedBy: "alice"}); !errors.Is(err, ErrInvalidURL) {
				t.Fatalf("err = %v, want ErrInvalidURL", err)
			}
		})
	}
}

func TestSubmitRequiresSubmitter(t *testing.T) {
	s := NewSubmit(&fakeInserter{}, fixedNow)
	_, err := s.Execute(SubmitInput{URL: "https://youtu.be/abc", SubmittedBy: "   "})
	if !errors.Is(err, ErrEmptySubmitter) {
		t.Fatalf("err = %v, want ErrEmptySubmitter", err)
	}
}

func TestSubmitDropsUnsupportedPromoSilently(t *testing.T) {
	store := &fakeInserter{}
	s := NewSubmit(store, fixedNow)

	result, err := s.Execute(SubmitInput{
		URL:         "https://youtu.be/abc",
		SubmittedBy: "alice",
		PromoLink:   "https://sketchy.example.com/me",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.PromoDropped {
		t.Error("unsupported promo not reported as dropped")
	}
	if store.items[0].PromoLink != "" {
		t.Errorf("promo persisted: %q", store.items[0].PromoLink)
	}
}

func TestSubmitKeepsSupportedPromo(t *testing.T) {
	store := &fakeInserter{}
	s := NewSubmit(store, fixedNow)

	result, err := s.Execute(SubmitInput{
		URL:         "https://youtu.be/abc",
		SubmittedBy: "alice",
		PromoLink:   "https://alice.bandcamp.com/album/x",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.PromoDropped {
		t.Error("supported promo dropped")
	}
	if store.items[0].PromoLink != "https://alice.bandcamp.com/album/x" {
		t.Errorf("promo = %q", store.items[0].PromoLink)
	}
}

func TestSubmitFirstSubmissionNoticeOncePerSubmitter(t *testing.T) {
	s := NewSubmit(&fakeInserter{}, fixedNow)

	first, err := s.Execute(SubmitInput{URL: "https://youtu.be/a", SubmittedBy: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !first.FirstSubmission {
		t.Error("first submission not flagged")
	}

	// Case-insensitive: the same viewer with different casing is not warned
	// again.
	second, err := s.Execute(SubmitInput{URL: "https://youtu.be/b", SubmittedBy: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if second.FirstSubmission {
		t.Error("submitter warned twice")
	}

	other, err := s.Execute(SubmitInput{URL: "https://youtu.be/c", SubmittedBy: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if !other.FirstSubmission {
		t.Error("new submitter not flagged")
	}
}

func TestSubmitNormalizesSubmitter(t *testing.T) {
	store := &fakeInserter{}
	s := NewSubmit(store, fixedNow)

	if _, err := s.Execute(SubmitInput{URL: "https://youtu.be/a", SubmittedBy: " ali\x00ce "}); err != nil {
		t.Fatal(err)
	}
	if got := store.items[0].SubmittedBy; got != "alice" {
		t.Errorf("submitter = %q, want alice", got)
	}
}

func TestSubmitStoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("disk full")
	s := NewSubmit(&fakeInserter{err: wantErr}, fixedNow)
	if _, err := s.Execute(SubmitInput{URL: "https://youtu.be/a", SubmittedBy: "alice"}); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want store error", err)
	}
}
