package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// devSigningKey is for local runs only and must be overridden in production.
const devSigningKey = "dev-submission-key-change-in-production"

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	SuccessReturnDelay  time.Duration
	PlaybackRetryDelays []time.Duration
	ReacquireAfter      int

	QualityMinWidth       int
	QualityMinHeight      int
	QualityRatioTolerance float64
	JPEGQuality           int

	SubmissionSigningKey string
	ManifestTTL          time.Duration

	SimCameraWidth  int
	SimCameraHeight int
	SecureContext   bool
}

// Default returns the configuration used when no environment is set.
func Default() Server {
	return Server{
		Addr:                  ":8080",
		Environment:           "development",
		LogLevel:              "info",
		SuccessReturnDelay:    3 * time.Second,
		PlaybackRetryDelays:   []time.Duration{time.Second, 2 * time.Second},
		ReacquireAfter:        0,
		QualityMinWidth:       800,
		QualityMinHeight:      600,
		QualityRatioTolerance: 0.2,
		JPEGQuality:           80,
		SubmissionSigningKey:  devSigningKey,
		ManifestTTL:           15 * time.Minute,
		SimCameraWidth:        1280,
		SimCameraHeight:       800,
		SecureContext:         true,
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
// A value that fails to parse leaves the default in place.
func FromEnv() Server {
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) Server {
	cfg := Default()
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	if v := get("IDCAPTURE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := get("IDCAPTURE_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if d, ok := parseDuration(get("SUCCESS_RETURN_DELAY")); ok {
		cfg.SuccessReturnDelay = d
	}
	if delays, ok := parseDurations(get("PLAYBACK_RETRY_DELAYS")); ok {
		cfg.PlaybackRetryDelays = delays
	}
	if n, ok := parseInt(get("CAPTURE_REACQUIRE_AFTER")); ok && n >= 0 {
		cfg.ReacquireAfter = n
	}
	if n, ok := parseInt(get("QUALITY_MIN_WIDTH")); ok && n > 0 {
		cfg.QualityMinWidth = n
	}
	if n, ok := parseInt(get("QUALITY_MIN_HEIGHT")); ok && n > 0 {
		cfg.QualityMinHeight = n
	}
	if v := get("QUALITY_RATIO_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.QualityRatioTolerance = f
		}
	}
	if n, ok := parseInt(get("JPEG_QUALITY")); ok && n >= 1 && n <= 100 {
		cfg.JPEGQuality = n
	}
	if v := get("SUBMISSION_SIGNING_KEY"); v != "" {
		cfg.SubmissionSigningKey = v
	}
	if d, ok := parseDuration(get("MANIFEST_TTL")); ok {
		cfg.ManifestTTL = d
	}
	if n, ok := parseInt(get("SIM_CAMERA_WIDTH")); ok && n > 0 {
		cfg.SimCameraWidth = n
	}
	if n, ok := parseInt(get("SIM_CAMERA_HEIGHT")); ok && n > 0 {
		cfg.SimCameraHeight = n
	}
	if v := get("SECURE_CONTEXT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SecureContext = b
		}
	}
	return cfg
}

// UsesDevSigningKey reports whether the manifest key was left at its default.
func (s Server) UsesDevSigningKey() bool {
	return s.SubmissionSigningKey == devSigningKey
}

func parseDuration(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}

// parseDurations reads a comma separated list. An empty list is rejected.
func parseDurations(v string) ([]time.Duration, bool) {
	if v == "" {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, ok := parseDuration(strings.TrimSpace(p))
		if !ok || d == 0 {
			return nil, false
		}
		out = append(out, d)
	}
	return out, true
}

func parseInt(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
