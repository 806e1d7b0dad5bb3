package moderate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"mediajukebox/internal/domain"
)

type Config struct {
	Scorer         Scorer
	Sampler        *FrameSampler
	Threshold      float64 // rules threshold, default 0.20
	ModelPath      string  // learned-policy artefact, optional
	ThresholdsPath string  // learned-policy threshold file, optional
	FallbackScript string  // external checker used when the scorer fails
	CheckTimeout   time.Duration // default 120s
	BatchSize      int           // frames per scoring batch, default 32
	Logger         *slog.Logger
}

// Moderator is the admission gate: a clip must come back approved before the
// broadcaster may touch it. Scoring failures degrade to the fallback script;
// if that fails too, the clip is rejected rather than waved through.
type Moderator struct {
	scorer         Scorer
	sampler        *FrameSampler
	policy         policy
	fallbackScript string
	timeout        time.Duration
	batchSize      int
	logger         *slog.Logger
}

func New(cfg Config) *Moderator {
	m := &Moderator{
		scorer:         cfg.Scorer,
		sampler:        cfg.Sampler,
		fallbackScript: cfg.FallbackScript,
		timeout:        cfg.CheckTimeout,
		batchSize:      cfg.BatchSize,
		logger:         cfg.Logger,
	}
	if m.timeout <= 0 {
		m.timeout = 120 * time.Second
	}
	if m.batchSize <= 0 {
		m.batchSize = 32
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.sampler == nil {
		m.sampler = NewFrameSampler("", 0, 0)
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	m.policy = rulesPolicy{threshold: threshold}
	learned, err := loadLearnedPolicy(cfg.ModelPath, cfg.ThresholdsPath)
	if err != nil {
		m.logger.Warn("learned policy unavailable, using rules",
			slog.String("error", err.Error()))
	} else if learned != nil {
		m.logger.Info("learned moderation policy loaded",
			slog.String("model", cfg.ModelPath),
			slog.Float64("threshold", learned.threshold))
		m.policy = learned
	}
	return m
}

// EnsureLoaded warms the scorer so the first submission doesn't pay the
// model-load latency.
func (m *Moderator) EnsureLoaded(ctx context.Context) error {
	if m.scorer == nil {
		return errors.New("no scorer configured")
	}
	return m.scorer.EnsureLoaded(ctx)
}

// Check classifies the media file and returns (approved, reason). The reason
// is empty on approval and carries the failure kind on rejection.
func (m *Moderator) Check(ctx context.Context, filePath string) (bool, string) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	approved, reason, err := m.classify(checkCtx, filePath)
	if err == nil {
		if approved {
			m.logger.Info("content approved", slog.String("file", filepath.Base(filePath)), slog.String("verdict", reason))
			return true, ""
		}
		m.logger.Warn("content rejected",
			slog.String("file", filepath.Base(filePath)),
			slog.String("reason", reason))
		return false, domain.ReasonNSFWDetected + ": " + reason
	}

	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("moderation timed out", slog.String("file", filepath.Base(filePath)))
		return false, domain.ReasonModerationTimeout
	}

	m.logger.Warn("classifier unavailable, trying fallback script",
		slog.String("error", err.Error()))
	return m.checkWithScript(checkCtx, filePath)
}

func (m *Moderator) classify(ctx context.Context, filePath string) (bool, string, error) {
	if m.scorer == nil {
		return false, "", errors.New("no scorer configured")
	}

	frameDir, err := os.MkdirTemp("", "moderate-frames-")
	if err != nil {
		return false, "", err
	}
	defer os.RemoveAll(frameDir)

	frames, err := m.sampler.Sample(ctx, filePath, frameDir)
	if err != nil {
		return false, "", err
	}

	// Frames are scored in batches; the reduced vector is the element-wise
	// max so one explicit frame condemns the whole clip.
	var reduced ScoreVector
	for start := 0; start < len(frames); start += m.batchSize {
		if err := ctx.Err(); err != nil {
			return false, "", err
		}
		end := min(start+m.batchSize, len(frames))
		for _, frame := range frames[start:end] {
			scores, err := m.scorer.Score(ctx, frame)
			if err != nil {
				return false, "", err
			}
			reduced.mergeMax(scores)
		}
	}

	verdict := m.policy.decide(reduced)
	return verdict.Approved, verdict.Reason, nil
}

// checkWithScript runs the external fallback checker: exit 0 approves,
// anything else rejects with the script's output as the reason. A missing
// script approves — moderation is an operator opt-in at that point.
func (m *Moderator) checkWithScript(ctx context.Context, filePath string) (bool, string) {
	if m.fallbackScript == "" {
		m.logger.Warn("no fallback content filter configured, approving")
		return true, ""
	}
	if _, err := os.Stat(m.fallbackScript); err != nil {
		m.logger.Warn("content filter script not found, approving",
			slog.String("script", m.fallbackScript))
		return true, ""
	}

	cmd := exec.CommandContext(ctx, m.fallbackScript, filePath)
	// Bound the wait for output pipes still held by the script's children
	// once the context has killed it.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if ctx.Err() != nil {
		return false, domain.ReasonModerationTimeout
	}
	if err == nil {
		return true, ""
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		reason := strings.TrimSpace(stdout.String())
		if reason == "" {
			reason = strings.TrimSpace(stderr.String())
		}
		if reason == "" {
			reason = "content rejected"
		}
		return false, domain.ReasonNSFWDetected + ": " + reason
	}
	m.logger.Error("content filter script failed", slog.String("error", err.Error()))
	return false, domain.ReasonModerationError
}
