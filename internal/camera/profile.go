package camera

import (
	"context"
	"strings"

	"github.com/mssola/useragent"
)

// DeviceProfile summarizes the client device that renders the preview.
type DeviceProfile struct {
	Mobile  bool
	Browser string
	OS      string
}

// ProfileFromUserAgent parses a User-Agent header. An empty string yields a
// desktop profile with unknown browser and OS.
func ProfileFromUserAgent(userAgent string) DeviceProfile {
	if userAgent == "" {
		return DeviceProfile{Browser: "unknown", OS: "unknown"}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()

	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os := strings.ToLower(strings.TrimSpace(ua.OS()))
	if os == "" {
		os = "unknown"
	}
	return DeviceProfile{
		Mobile:  ua.Mobile(),
		Browser: browser,
		OS:      os,
	}
}

// PlaybackProperties returns sink properties for the device. Mobile browsers
// need extra hints before they render inline without a user gesture.
func (p DeviceProfile) PlaybackProperties() PlaybackProperties {
	props := InlinePlayback()
	if p.Mobile {
		props.Attributes["webkit-playsinline"] = "true"
		props.Attributes["x-webkit-airplay"] = "allow"
		props.Attributes["x5-video-player-type"] = "h5"
		props.Attributes["x5-video-player-fullscreen"] = "true"
	}
	return props
}

type profileKey struct{}

// WithProfile stores the device profile in ctx for Session.Start.
func WithProfile(ctx context.Context, profile DeviceProfile) context.Context {
	return context.WithValue(ctx, profileKey{}, profile)
}

// ProfileFromContext returns the profile stored by WithProfile.
func ProfileFromContext(ctx context.Context) (DeviceProfile, bool) {
	profile, ok := ctx.Value(profileKey{}).(DeviceProfile)
	return profile, ok
}
