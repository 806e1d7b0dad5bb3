// Package broadcast owns the outbound RTMP sink. At most one encoder child
// runs at a time; the worker is the only caller.
package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrSkipped reports that the active clip was cut short by a skip command.
var ErrSkipped = errors.New("stream skipped")

type Config struct {
	FFmpegPath   string
	RTMPURL      string
	VideoBitrate string
	AudioBitrate string
	Preset       string
	IdleImage    string
	StopGrace    time.Duration // polite-termination grace before SIGKILL, default 5s
	Logger       *slog.Logger
}

type Broadcaster struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	current    *exec.Cmd
	idleActive bool

	skipRequested atomic.Bool
}

func New(cfg Config) (*Broadcaster, error) {
	if strings.TrimSpace(cfg.RTMPURL) == "" {
		return nil, errors.New("rtmp url is required")
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.VideoBitrate == "" {
		cfg.VideoBitrate = "3000k"
	}
	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = "128k"
	}
	if cfg.Preset == "" {
		cfg.Preset = "veryfast"
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{cfg: cfg, logger: logger}, nil
}

// startWindow bounds how soon after encoder start a failure can still be
// treated as a transient connect problem worth retrying. Anything that dies
// later was already streaming and is not retried.
const startWindow = 3 * time.Second

// StreamFile pushes one clip to the RTMP sink with the attribution overlay.
// Returns nil on clean completion, ErrSkipped when cut short by Skip, or the
// encoder failure. Transient connect failures are retried with exponential
// backoff, up to 5 attempts in all.
func (b *Broadcaster) StreamFile(ctx context.Context, filePath, title, submittedBy, promoLink string) error {
	b.skipRequested.Store(false)
	args := streamFileArgs(b.cfg, filePath, overlayFilter(title, submittedBy, promoLink))

	b.logger.Info("starting stream",
		slog.String("file", filePath),
		slog.String("title", title),
		slog.String("submittedBy", submittedBy),
	)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 2 * time.Second
	expo.MaxInterval = 120 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		started := time.Now()
		runErr := b.runEncoder(ctx, args, false)
		switch {
		case runErr == nil:
			return struct{}{}, nil
		case errors.Is(runErr, ErrSkipped), errors.Is(runErr, context.Canceled):
			return struct{}{}, backoff.Permanent(runErr)
		case time.Since(started) < startWindow && isTransient(runErr):
			b.logger.Warn("transient encoder failure, retrying", slog.String("error", runErr.Error()))
			return struct{}{}, runErr
		default:
			return struct{}{}, backoff.Permanent(runErr)
		}
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(5))

	if err == nil {
		b.logger.Info("stream completed", slog.String("file", filePath))
	}
	return err
}

// StreamIdle feeds the sink with the static idle image and silence for the
// given duration so the outbound stream never goes dark. Errors degrade to a
// plain wait; a skip during idle is a no-op.
func (b *Broadcaster) StreamIdle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if _, err := os.Stat(b.cfg.IdleImage); err != nil {
		b.logger.Warn("idle image unavailable, waiting instead", slog.String("path", b.cfg.IdleImage))
		wait(ctx, d)
		return
	}
	seconds := int(d.Seconds())
	if seconds <= 0 {
		wait(ctx, d)
		return
	}

	started := time.Now()
	if err := b.runEncoder(ctx, streamIdleArgs(b.cfg, seconds), true); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("idle stream error", slog.String("error", err.Error()))
		if remaining := d - time.Since(started); remaining > 0 {
			wait(ctx, remaining)
		}
	}
}

// Skip interrupts the active clip. During idle filler it does nothing.
func (b *Broadcaster) Skip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil || b.idleActive {
		return
	}
	b.skipRequested.Store(true)
	b.logger.Info("skip requested, stopping encoder")
	b.stopProcess(b.current)
}

func (b *Broadcaster) runEncoder(ctx context.Context, args []string, idle bool) error {
	cmd := exec.Command(b.cfg.FFmpegPath, args...)
	// Bound the wait for output pipes still held by descendants of a stopped
	// encoder, so a skip returns control after the grace period.
	cmd.WaitDelay = b.cfg.StopGrace
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start encoder: %w", err)
	}

	b.mu.Lock()
	b.current = cmd
	b.idleActive = idle
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		b.mu.Lock()
		b.stopProcess(cmd)
		b.mu.Unlock()
		<-done
		waitErr = context.Canceled
	}

	b.mu.Lock()
	b.current = nil
	b.idleActive = false
	b.mu.Unlock()

	if errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	if !idle && b.skipRequested.Load() {
		return ErrSkipped
	}
	if waitErr != nil {
		return fmt.Errorf("encoder failed: %w: %s", waitErr, tailString(stderr.String(), 500))
	}
	return nil
}

// stopProcess terminates an encoder child in two phases: SIGTERM, then
// SIGKILL after the grace period if it has not exited. Callers hold b.mu.
func (b *Broadcaster) stopProcess(cmd *exec.Cmd) {
	proc := cmd.Process
	if proc == nil {
		return
	}
	_ = proc.Signal(syscall.SIGTERM)
	grace := b.cfg.StopGrace
	go func() {
		time.Sleep(grace)
		// No-op if the process already exited and was reaped.
		_ = proc.Kill()
	}()
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporarily unavailable") ||
		strings.Contains(msg, "broken pipe")
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func tailString(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
