package moderate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

var videoExts = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// FrameSampler extracts still frames from a clip with ffmpeg so each frame
// can be scored independently. Images pass through unsampled.
type FrameSampler struct {
	binary    string
	fps       float64
	maxFrames int
}

func NewFrameSampler(ffmpegPath string, fps float64, maxFrames int) *FrameSampler {
	bin := strings.TrimSpace(ffmpegPath)
	if bin == "" {
		bin = "ffmpeg"
	}
	if fps <= 0 {
		fps = 1
	}
	if maxFrames <= 0 {
		maxFrames = 200
	}
	return &FrameSampler{binary: bin, fps: fps, maxFrames: maxFrames}
}

// Sample returns the paths to score for mediaPath. For videos it writes up
// to maxFrames PNGs into destDir at the configured rate; for anything else
// it returns the media path itself.
func (s *FrameSampler) Sample(ctx context.Context, mediaPath, destDir string) ([]string, error) {
	if !videoExts[strings.ToLower(filepath.Ext(mediaPath))] {
		return []string{mediaPath}, nil
	}

	cmd := exec.CommandContext(ctx, s.binary,
		"-hide_banner",
		"-i", mediaPath,
		"-vf", fmt.Sprintf("fps=%g", s.fps),
		"-frames:v", fmt.Sprintf("%d", s.maxFrames),
		filepath.Join(destDir, "frame_%05d.png"),
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("frame extraction failed: %w: %s", err, tail(out.String(), 500))
	}

	frames, err := filepath.Glob(filepath.Join(destDir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from %s", filepath.Base(mediaPath))
	}
	return frames, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
