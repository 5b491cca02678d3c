package camera

import "sync"

// EncodingCandidates lists recording formats from most to least preferred.
var EncodingCandidates = []string{
	"video/webm;codecs=vp8",
	"video/webm;codecs=vp9",
	"video/webm",
	"video/mp4;codecs=h264",
	"video/mp4",
}

const (
	documentAspectRatio = 16.0 / 9.0
	selfieAspectRatio   = 1.0

	idealFrameRate = 30
	maxFrameRate   = 60
)

// Planner derives constraint profiles from a capture purpose. The encoding
// probe runs once per Planner; share one Planner per process.
type Planner struct {
	prober EncodingProber

	once     sync.Once
	encoding string
}

// NewPlanner returns a planner that probes encodings with prober. A nil
// prober means no encoding hint is ever sent.
func NewPlanner(prober EncodingProber) *Planner {
	return &Planner{prober: prober}
}

// PreferredEncoding returns the first supported candidate, or "".
func (p *Planner) PreferredEncoding() string {
	p.once.Do(func() {
		if p.prober == nil {
			return
		}
		for _, mimeType := range EncodingCandidates {
			if p.prober.Supports(mimeType) {
				p.encoding = mimeType
				return
			}
		}
	})
	return p.encoding
}

// Plan returns the preferred profile and the reduced fallback profile for purpose.
func (p *Planner) Plan(purpose Purpose) (preferred, fallback ConstraintProfile) {
	facing := purpose.FacingMode()

	aspect := documentAspectRatio
	if purpose.IsSelfie() {
		aspect = selfieAspectRatio
	}

	preferred = ConstraintProfile{
		Name:              "preferred",
		FacingMode:        facing,
		IdealWidth:        1920,
		MinWidth:          640,
		IdealHeight:       1080,
		MinHeight:         480,
		IdealFrameRate:    idealFrameRate,
		MaxFrameRate:      maxFrameRate,
		AspectRatio:       aspect,
		PreferredEncoding: p.PreferredEncoding(),
	}

	// Baseline request that constrained devices can satisfy: no encoding hint
	// and no aspect ratio.
	fallback = ConstraintProfile{
		Name:           "fallback",
		FacingMode:     facing,
		IdealWidth:     1280,
		MinWidth:       640,
		IdealHeight:    720,
		MinHeight:      480,
		IdealFrameRate: idealFrameRate,
		MaxFrameRate:   maxFrameRate,
	}
	return preferred, fallback
}
