package security

import "strings"

// Device class values derived from the user-agent string.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Fingerprint is a loose bag of client-observable attributes captured at
// session creation and renewal, used to detect session reuse from an
// unexpected context. All fields are optional; empty fields are ignored
// when comparing.
type Fingerprint struct {
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	DeviceClass   string `json:"device_class,omitempty"`
	BrowserFamily string `json:"browser_family,omitempty"`
}

// NewFingerprint builds a fingerprint from the raw client attributes,
// deriving the coarse device class and browser family from the user agent.
func NewFingerprint(ip, userAgent string) Fingerprint {
	return Fingerprint{
		IP:            ip,
		UserAgent:     userAgent,
		DeviceClass:   DeviceClassFromUserAgent(userAgent),
		BrowserFamily: BrowserFamilyFromUserAgent(userAgent),
	}
}

// IsZero reports whether no attribute was captured.
func (f Fingerprint) IsZero() bool {
	return f.IP == "" && f.UserAgent == "" && f.DeviceClass == "" && f.BrowserFamily == ""
}

// Matches compares f against an observed fingerprint with tolerance for
// minor client drift: IP and device class must match exactly, the user agent
// matches when either string contains the other (accommodates browser
// version bumps), and the browser family must match exactly. Fields absent
// on either side are skipped. Any single mismatch among mutually present
// fields reports false.
//
// A mismatch is an advisory hijack signal only; revocation is left to the
// policy layer.
func (f Fingerprint) Matches(observed Fingerprint) bool {
	if f.IP != "" && observed.IP != "" && f.IP != observed.IP {
		return false
	}
	if f.DeviceClass != "" && observed.DeviceClass != "" && f.DeviceClass != observed.DeviceClass {
		return false
	}
	if f.BrowserFamily != "" && observed.BrowserFamily != "" && f.BrowserFamily != observed.BrowserFamily {
		return false
	}
	if f.UserAgent != "" && observed.UserAgent != "" &&
		!strings.Contains(f.UserAgent, observed.UserAgent) &&
		!strings.Contains(observed.UserAgent, f.UserAgent) {
		return false
	}
	return true
}

// DeviceClassFromUserAgent classifies a user agent into a coarse device
// class. Tablets are checked before mobiles because tablet user agents
// frequently carry the "Mobile" token as well.
func DeviceClassFromUserAgent(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		return DeviceTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// BrowserFamilyFromUserAgent extracts a coarse browser family from a user
// agent. Order matters: Chromium-derived browsers embed "Chrome", and
// Chrome itself embeds "Safari".
func BrowserFamilyFromUserAgent(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "edg"):
		return "edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		return "opera"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		return "chrome"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		return "firefox"
	case strings.Contains(ua, "safari"):
		return "safari"
	default:
		return "other"
	}
}
