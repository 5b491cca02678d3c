package capture

import (
	"bytes"
	"image"
	"math"

	// Register decoders for DecodeConfig.
	_ "image/jpeg"
	_ "image/png"

	"idcapture/internal/camera"
)

// Thresholds configure the quality gate. The defaults are heuristics that
// reject malformed or wrongly-cropped frames; they say nothing about content.
type Thresholds struct {
	MinWidth       int
	MinHeight      int
	RatioTolerance float64
	SelfieRatio    float64
	DocumentRatio  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinWidth:       800,
		MinHeight:      600,
		RatioTolerance: 0.2,
		SelfieRatio:    1.0,
		DocumentRatio:  1.6,
	}
}

// QualityValidator accepts a payload when its dimensions reach the minimum
// size and its aspect ratio is within tolerance of the purpose's target.
type QualityValidator struct {
	thresholds Thresholds
}

// NewQualityValidator fills zero fields of t from DefaultThresholds.
func NewQualityValidator(t Thresholds) *QualityValidator {
	def := DefaultThresholds()
	if t.MinWidth <= 0 {
		t.MinWidth = def.MinWidth
	}
	if t.MinHeight <= 0 {
		t.MinHeight = def.MinHeight
	}
	if t.RatioTolerance <= 0 {
		t.RatioTolerance = def.RatioTolerance
	}
	if t.SelfieRatio <= 0 {
		t.SelfieRatio = def.SelfieRatio
	}
	if t.DocumentRatio <= 0 {
		t.DocumentRatio = def.DocumentRatio
	}
	return &QualityValidator{thresholds: t}
}

func (v *QualityValidator) Thresholds() Thresholds {
	return v.thresholds
}

// Validate decodes only the payload header. Undecodable payloads are rejected.
func (v *QualityValidator) Validate(purpose camera.Purpose, payload []byte) bool {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return false
	}
	return v.Accepts(purpose, cfg.Width, cfg.Height)
}

// Accepts applies the size and aspect-ratio rules to known dimensions.
func (v *QualityValidator) Accepts(purpose camera.Purpose, width, height int) bool {
	if width < v.thresholds.MinWidth || height < v.thresholds.MinHeight {
		return false
	}
	target := v.thresholds.DocumentRatio
	if purpose.IsSelfie() {
		target = v.thresholds.SelfieRatio
	}
	ratio := float64(width) / float64(height)
	return math.Abs(ratio-target) < v.thresholds.RatioTolerance
}
