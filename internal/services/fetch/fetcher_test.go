package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediajukebox/internal/domain"
)

// fakeRunner scripts the yt-dlp invocations. The first call is the probe,
// the second the download.
type fakeRunner struct {
	calls       [][]string
	probeJSON   string
	probeErr    error
	probeStderr string

	downloadErr    error
	downloadStderr string
	createFile     string // file created in mediaDir on download, empty = none
	mediaDir       string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	switch len(r.calls) {
	case 1:
		return []byte(r.probeJSON), []byte(r.probeStderr), r.probeErr
	default:
		if r.createFile != "" {
			if err := os.WriteFile(filepath.Join(r.mediaDir, r.createFile), []byte("media"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, []byte(r.downloadStderr), r.downloadErr
	}
}

func newTestFetcher(t *testing.T, runner *fakeRunner) *Fetcher {
	t.Helper()
	mediaDir := t.TempDir()
	runner.mediaDir = mediaDir
	f, err := New(Config{
		MediaDir:           mediaDir,
		MaxDurationSeconds: 600,
		MaxFileSizeMB:      500,
		Runner:             runner,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestFetchHappyPath(t *testing.T) {
	runner := &fakeRunner{
		probeJSON:  `{"title":"Hello","duration":42,"ext":"mp4"}`,
		createFile: "", // set below once the item id is known
	}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/clip.mp4", "alice", "", time.Now())
	runner.createFile = item.ID + ".mp4"

	if err := f.Fetch(context.Background(), &item); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if item.Title != "Hello" {
		t.Errorf("title = %q, want Hello", item.Title)
	}
	if item.DurationSeconds != 42 {
		t.Errorf("duration = %v, want 42", item.DurationSeconds)
	}
	if !strings.HasSuffix(item.FilePath, item.ID+".mp4") {
		t.Errorf("file path = %q", item.FilePath)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want probe + download", len(runner.calls))
	}
	if got := runner.calls[0][1]; got != "-j" {
		t.Errorf("probe args = %v", runner.calls[0])
	}
}

func TestFetchDurationExceededSkipsDownload(t *testing.T) {
	runner := &fakeRunner{probeJSON: `{"title":"Long","duration":3600}`}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/long.mp4", "alice", "", time.Now())
	err := f.Fetch(context.Background(), &item)

	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Reason != domain.ReasonDurationExceeded {
		t.Fatalf("err = %v, want duration_exceeded", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("download ran despite over-long probe: %d calls", len(runner.calls))
	}
	if item.FilePath != "" {
		t.Errorf("file path set on failure: %q", item.FilePath)
	}
}

func TestFetchOversizedProbeSkipsDownload(t *testing.T) {
	runner := &fakeRunner{probeJSON: `{"title":"Big","duration":60,"filesize":1073741824}`}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/big.mp4", "alice", "", time.Now())
	err := f.Fetch(context.Background(), &item)

	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Reason != domain.ReasonFileTooLarge {
		t.Fatalf("err = %v, want file_too_large", err)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("download ran despite oversized probe: %d calls", len(runner.calls))
	}
}

func TestFetchProbeFailure(t *testing.T) {
	runner := &fakeRunner{probeErr: errors.New("exit status 1"), probeStderr: "ERROR: unsupported URL"}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/nope", "alice", "", time.Now())
	err := f.Fetch(context.Background(), &item)

	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Reason != domain.ReasonProbeFailed {
		t.Fatalf("err = %v, want probe_failed", err)
	}
	if !strings.Contains(pe.Detail, "unsupported URL") {
		t.Errorf("detail = %q, want stderr excerpt", pe.Detail)
	}
}

func TestFetchDownloadTimeout(t *testing.T) {
	runner := &fakeRunner{
		probeJSON:   `{"title":"Slow","duration":10}`,
		downloadErr: context.DeadlineExceeded,
	}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/slow.mp4", "alice", "", time.Now())
	err := f.Fetch(context.Background(), &item)

	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Reason != domain.ReasonDownloadTimeout {
		t.Fatalf("err = %v, want download_timeout", err)
	}
}

func TestFetchMissingFileMapsMaxFilesizeNotice(t *testing.T) {
	runner := &fakeRunner{
		probeJSON:      `{"title":"Huge","duration":10}`,
		downloadStderr: "File is larger than max-filesize, skipping",
	}
	f := newTestFetcher(t, runner)

	item := domain.NewQueueItem("https://example.com/huge.mp4", "alice", "", time.Now())
	err := f.Fetch(context.Background(), &item)

	var pe *domain.PipelineError
	if !errors.As(err, &pe) || pe.Reason != domain.ReasonFileTooLarge {
		t.Fatalf("err = %v, want file_too_large", err)
	}
}

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello", "Hello"},
		{"trimmed", "  spaced out  ", "spaced out"},
		{"control runes dropped", "bad\x00\x1btitle", "badtitle"},
		{"truncated to 100", strings.Repeat("a", 150), strings.Repeat("a", 100)},
		{"nfc composed", "Café", "Café"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeTitle(tt.in); got != tt.want {
				t.Errorf("sanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanupRemovesFile(t *testing.T) {
	runner := &fakeRunner{probeJSON: `{"title":"x","duration":1}`}
	f := newTestFetcher(t, runner)

	path := filepath.Join(runner.mediaDir, "item.mp4")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	item := domain.QueueItem{ID: "item", FilePath: path}

	f.Cleanup(item)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still exists after cleanup")
	}

	// Idempotent on missing files and no-ops on empty paths.
	f.Cleanup(item)
	f.Cleanup(domain.QueueItem{})
}
