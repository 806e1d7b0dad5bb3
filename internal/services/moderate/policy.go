package moderate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// DefaultThreshold is the aggregate explicit-score threshold for the rules
// policy. A single threshold gates the aggregate; per-category thresholds
// are intentionally not supported.
const DefaultThreshold = 0.20

// Verdict is the admission-gate decision for one media file.
type Verdict struct {
	Approved bool
	Reason   string
}

// policy turns a reduced score vector into a verdict.
type policy interface {
	decide(ScoreVector) Verdict
}

// rulesPolicy rejects when the aggregate explicit score clears the threshold
// and beats the safe anchor. The reason names the triggering category and
// both margins so the rejection is auditable from logs.
type rulesPolicy struct {
	threshold float64
}

func (p rulesPolicy) decide(s ScoreVector) Verdict {
	explicit := s.explicit()
	safe := s.safe()
	if explicit >= p.threshold && explicit > safe {
		return Verdict{
			Approved: false,
			Reason:   fmt.Sprintf("%s %.3f > safe %.3f", explicitCategory(s), explicit, safe),
		}
	}
	reason := fmt.Sprintf("safe %.3f >= explicit %.3f", safe, explicit)
	if explicit < p.threshold {
		reason = fmt.Sprintf("explicit %.3f < threshold %.3f", explicit, p.threshold)
	}
	return Verdict{Approved: true, Reason: reason}
}

func explicitCategory(s ScoreVector) string {
	switch s.explicit() {
	case s.anus():
		return "anus"
	case s.genitals():
		return "genitals"
	default:
		return "nipples"
	}
}

// learnedPolicy is a logistic model trained offline on features derived from
// the score vector. When its artefact and threshold files are present it
// supersedes the rules policy; the gate contract is unchanged.
type learnedPolicy struct {
	weights   []float64
	bias      float64
	threshold float64
}

// features builds the model's input from a score vector: absolute safe and
// explicit scores plus margins against the safe and clothed anchors.
func features(s ScoreVector) []float64 {
	return []float64{
		s.safe(),
		s.nipples(),
		s.genitals(),
		s.anus(),
		s[idxBreast] - s.safe(),
		s[idxChest] - s.safe(),
		s.nipples() - s.clothing(),
		s.genitals() - s.clothing(),
	}
}

func (p *learnedPolicy) decide(s ScoreVector) Verdict {
	x := features(s)
	z := p.bias
	for i, w := range p.weights {
		z += w * x[i]
	}
	prob := 1 / (1 + math.Exp(-z))
	if prob >= p.threshold {
		return Verdict{Approved: false, Reason: fmt.Sprintf("learned prob %.3f >= %.3f", prob, p.threshold)}
	}
	return Verdict{Approved: true, Reason: fmt.Sprintf("learned prob %.3f < %.3f", prob, p.threshold)}
}

type modelArtifact struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

type thresholdsFile struct {
	LearnedThreshold float64 `json:"learned_threshold"`
}

// loadLearnedPolicy reads the model artefact and threshold files. Returns
// (nil, nil) when either file is absent — the caller falls back to rules.
func loadLearnedPolicy(modelPath, thresholdsPath string) (*learnedPolicy, error) {
	if modelPath == "" || thresholdsPath == "" {
		return nil, nil
	}
	modelRaw, err := os.ReadFile(modelPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read model artefact: %w", err)
	}
	thresholdsRaw, err := os.ReadFile(thresholdsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read thresholds: %w", err)
	}

	var artifact modelArtifact
	if err := json.Unmarshal(modelRaw, &artifact); err != nil {
		return nil, fmt.Errorf("parse model artefact: %w", err)
	}
	if len(artifact.Weights) != len(features(ScoreVector{})) {
		return nil, fmt.Errorf("model artefact has %d weights, want %d",
			len(artifact.Weights), len(features(ScoreVector{})))
	}
	var thresholds thresholdsFile
	if err := json.Unmarshal(thresholdsRaw, &thresholds); err != nil {
		return nil, fmt.Errorf("parse thresholds: %w", err)
	}
	threshold := thresholds.LearnedThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	return &learnedPolicy{
		weights:   artifact.Weights,
		bias:      artifact.Bias,
		threshold: threshold,
	}, nil
}
