package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := fromLookup(lookupFrom(nil))

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.SuccessReturnDelay)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, cfg.PlaybackRetryDelays)
	assert.Equal(t, 0, cfg.ReacquireAfter)
	assert.Equal(t, 80, cfg.JPEGQuality)
	assert.True(t, cfg.SecureContext)
	assert.True(t, cfg.UsesDevSigningKey())
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg := fromLookup(lookupFrom(map[string]string{
		"IDCAPTURE_ADDR":          ":9090",
		"LOG_LEVEL":               "debug",
		"SUCCESS_RETURN_DELAY":    "500ms",
		"PLAYBACK_RETRY_DELAYS":   "250ms, 750ms, 2s",
		"CAPTURE_REACQUIRE_AFTER": "3",
		"QUALITY_MIN_WIDTH":       "640",
		"QUALITY_MIN_HEIGHT":      "480",
		"QUALITY_RATIO_TOLERANCE": "0.1",
		"JPEG_QUALITY":            "92",
		"SUBMISSION_SIGNING_KEY":  "prod-key",
		"SIM_CAMERA_WIDTH":        "1920",
		"SIM_CAMERA_HEIGHT":       "1080",
		"SECURE_CONTEXT":          "false",
	}))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500*time.Millisecond, cfg.SuccessReturnDelay)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 750 * time.Millisecond, 2 * time.Second}, cfg.PlaybackRetryDelays)
	assert.Equal(t, 3, cfg.ReacquireAfter)
	assert.Equal(t, 640, cfg.QualityMinWidth)
	assert.Equal(t, 480, cfg.QualityMinHeight)
	assert.InDelta(t, 0.1, cfg.QualityRatioTolerance, 1e-9)
	assert.Equal(t, 92, cfg.JPEGQuality)
	assert.Equal(t, "prod-key", cfg.SubmissionSigningKey)
	assert.False(t, cfg.UsesDevSigningKey())
	assert.Equal(t, 1920, cfg.SimCameraWidth)
	assert.Equal(t, 1080, cfg.SimCameraHeight)
	assert.False(t, cfg.SecureContext)
}

func TestFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	cfg := fromLookup(lookupFrom(map[string]string{
		"SUCCESS_RETURN_DELAY":    "soon",
		"PLAYBACK_RETRY_DELAYS":   "1s,oops",
		"CAPTURE_REACQUIRE_AFTER": "-2",
		"QUALITY_MIN_WIDTH":       "0",
		"QUALITY_RATIO_TOLERANCE": "wide",
		"JPEG_QUALITY":            "150",
		"SECURE_CONTEXT":          "maybe",
	}))

	def := Default()
	assert.Equal(t, def.SuccessReturnDelay, cfg.SuccessReturnDelay)
	assert.Equal(t, def.PlaybackRetryDelays, cfg.PlaybackRetryDelays)
	assert.Equal(t, def.ReacquireAfter, cfg.ReacquireAfter)
	assert.Equal(t, def.QualityMinWidth, cfg.QualityMinWidth)
	assert.Equal(t, def.QualityRatioTolerance, cfg.QualityRatioTolerance)
	assert.Equal(t, def.JPEGQuality, cfg.JPEGQuality)
	assert.True(t, cfg.SecureContext)
}

func TestFromEnv_ZeroSuccessDelayDisablesAutoReturn(t *testing.T) {
	cfg := fromLookup(lookupFrom(map[string]string{"SUCCESS_RETURN_DELAY": "0s"}))
	assert.Equal(t, time.Duration(0), cfg.SuccessReturnDelay)
}
