// Package fetch resolves a submission URL to a local media file via yt-dlp.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"mediajukebox/internal/domain"
)

const maxTitleLen = 100

// Runner executes an external command and returns its output streams. Both
// streams are fully buffered so long stderr traffic cannot deadlock the
// child on a full pipe.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

type Config struct {
	Binary             string // yt-dlp binary, default "yt-dlp"
	MediaDir           string
	MaxDurationSeconds int
	MaxFileSizeMB      int
	ProbeTimeout       time.Duration // default 30s
	DownloadTimeout    time.Duration // default 300s
	Logger             *slog.Logger
	Runner             Runner // nil = real subprocess
}

// Fetcher downloads submissions into the media directory. Two phases: a
// metadata probe that rejects over-long media before any bytes move, then
// the bounded download itself.
type Fetcher struct {
	binary          string
	mediaDir        string
	maxDuration     float64
	maxFileSizeMB   int
	probeTimeout    time.Duration
	downloadTimeout time.Duration
	logger          *slog.Logger
	run             Runner
}

func New(cfg Config) (*Fetcher, error) {
	if strings.TrimSpace(cfg.MediaDir) == "" {
		return nil, errors.New("media directory is required")
	}
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	f := &Fetcher{
		binary:          strings.TrimSpace(cfg.Binary),
		mediaDir:        cfg.MediaDir,
		maxDuration:     float64(cfg.MaxDurationSeconds),
		maxFileSizeMB:   cfg.MaxFileSizeMB,
		probeTimeout:    cfg.ProbeTimeout,
		downloadTimeout: cfg.DownloadTimeout,
		logger:          cfg.Logger,
		run:             cfg.Runner,
	}
	if f.binary == "" {
		f.binary = "yt-dlp"
	}
	if f.probeTimeout <= 0 {
		f.probeTimeout = 30 * time.Second
	}
	if f.downloadTimeout <= 0 {
		f.downloadTimeout = 300 * time.Second
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.run == nil {
		f.run = execRunner{}
	}
	return f, nil
}

// probeInfo is the subset of yt-dlp -j output we parse.
type probeInfo struct {
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

// Fetch resolves item.URL to a file under the media directory, enriching the
// item with FilePath, Title and DurationSeconds. The returned error is a
// *domain.PipelineError carrying the failure reason.
func (f *Fetcher) Fetch(ctx context.Context, item *domain.QueueItem) error {
	info, err := f.probe(ctx, item.URL)
	if err != nil {
		return err
	}

	if title := sanitizeTitle(info.Title); title != "" {
		item.Title = title
	}
	item.DurationSeconds = info.Duration

	if f.maxDuration > 0 && info.Duration > f.maxDuration {
		return domain.Failf(domain.ReasonDurationExceeded,
			"duration %.0fs exceeds max %.0fs", info.Duration, f.maxDuration)
	}
	if size := max(info.Filesize, info.FilesizeApprox); f.maxFileSizeMB > 0 && size > int64(f.maxFileSizeMB)<<20 {
		return domain.Failf(domain.ReasonFileTooLarge,
			"reported size %dMB exceeds max %dMB", size>>20, f.maxFileSizeMB)
	}

	path, err := f.download(ctx, item)
	if err != nil {
		return err
	}
	item.FilePath = path
	f.logger.Info("download complete",
		slog.String("itemId", item.ID),
		slog.String("file", path),
		slog.Float64("durationSec", item.DurationSeconds),
	)
	return nil
}

func (f *Fetcher) probe(ctx context.Context, url string) (probeInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	stdout, stderr, err := f.run.Run(probeCtx, f.binary, "-j", "--no-playlist", url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return probeInfo{}, domain.Failf(domain.ReasonProbeFailed, "metadata fetch timed out")
		}
		return probeInfo{}, domain.Failf(domain.ReasonProbeFailed, "%s", firstLine(stderr, err))
	}

	var info probeInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return probeInfo{}, domain.Failf(domain.ReasonProbeFailed, "unparseable metadata: %v", err)
	}
	return info, nil
}

func (f *Fetcher) download(ctx context.Context, item *domain.QueueItem) (string, error) {
	dlCtx, cancel := context.WithTimeout(ctx, f.downloadTimeout)
	defer cancel()

	outputTemplate := filepath.Join(f.mediaDir, item.ID+".%(ext)s")
	args := []string{
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", outputTemplate,
		"--no-playlist",
	}
	if f.maxFileSizeMB > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%dm", f.maxFileSizeMB))
	}
	args = append(args, item.URL)

	f.logger.Info("downloading", slog.String("itemId", item.ID), slog.String("title", item.Title))
	stdout, stderr, err := f.run.Run(dlCtx, f.binary, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", domain.Failf(domain.ReasonDownloadTimeout,
				"download exceeded %s", f.downloadTimeout)
		}
		return "", domain.Failf(domain.ReasonDownloadFailed, "%s", firstLine(stderr, err))
	}

	matches, err := filepath.Glob(filepath.Join(f.mediaDir, item.ID+".*"))
	if err != nil || len(matches) == 0 {
		// yt-dlp skips oversized files without a nonzero exit; the only
		// trace is the size notice in its output.
		combined := string(stdout) + string(stderr)
		if strings.Contains(combined, "max-filesize") {
			return "", domain.Failf(domain.ReasonFileTooLarge,
				"file exceeds max %dMB", f.maxFileSizeMB)
		}
		return "", domain.Failf(domain.ReasonDownloadFailed, "downloaded file not found")
	}
	return matches[0], nil
}

// Cleanup removes the item's local media file, if any. Safe to call on items
// that never completed a download.
func (f *Fetcher) Cleanup(item domain.QueueItem) {
	if item.FilePath == "" {
		return
	}
	if err := os.Remove(item.FilePath); err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("media cleanup failed",
				slog.String("itemId", item.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	f.logger.Info("cleaned up media file", slog.String("file", item.FilePath))
}

// sanitizeTitle NFC-normalises a title, strips unprintable runes and caps it
// at 100 characters.
func sanitizeTitle(raw string) string {
	normalized := norm.NFC.String(strings.TrimSpace(raw))
	var b strings.Builder
	count := 0
	for _, r := range normalized {
		if !unicode.IsPrint(r) {
			continue
		}
		b.WriteRune(r)
		count++
		if count == maxTitleLen {
			break
		}
	}
	return strings.TrimSpace(b.String())
}

func firstLine(stderr []byte, err error) string {
	msg := strings.TrimSpace(string(stderr))
	if msg == "" {
		return err.Error()
	}
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		msg = msg[:i]
	}
	return msg
}
