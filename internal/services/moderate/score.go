// Package moderate gates downloaded media on a safe-for-work verdict before
// it can reach the encoder.
package moderate

// The prompt vocabulary the scorer's image-text model embeds against. Index
// positions are part of the scorer protocol; order must not change. One safe
// anchor, five explicit anchors, five clothed anchors that dampen false
// positives on swimwear and similar.
var Prompts = []string{
	"safe for work image",
	"female nipples",
	"male nipples",
	"penis",
	"vulva",
	"anus",
	"female breast",
	"male chest",
	"bikini",
	"lingerie",
	"cleavage",
}

const (
	idxSafe = iota
	idxFemaleNipples
	idxMaleNipples
	idxPenis
	idxVulva
	idxAnus
	idxBreast
	idxChest
	idxBikini
	idxLingerie
	idxCleavage

	numPrompts
)

// ScoreVector is the softmax-normalised similarity of one frame (or the
// element-wise max across a clip's frames) against Prompts.
type ScoreVector [numPrompts]float64

func (v ScoreVector) safe() float64     { return v[idxSafe] }
func (v ScoreVector) nipples() float64  { return max(v[idxFemaleNipples], v[idxMaleNipples]) }
func (v ScoreVector) genitals() float64 { return max(v[idxPenis], v[idxVulva]) }
func (v ScoreVector) anus() float64     { return v[idxAnus] }
func (v ScoreVector) clothing() float64 {
	return max(v[idxBikini], v[idxLingerie], v[idxCleavage])
}

// explicit is the aggregate explicit-content score the rules policy gates on.
func (v ScoreVector) explicit() float64 {
	return max(v.nipples(), v.genitals(), v.anus())
}

// mergeMax folds another frame's scores in by element-wise max.
func (v *ScoreVector) mergeMax(other ScoreVector) {
	for i := range v {
		if other[i] > v[i] {
			v[i] = other[i]
		}
	}
}
