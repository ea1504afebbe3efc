package user_agent

import "strings"

// Device classes
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
)

const Unknown = "Unknown"

type UserAgent struct {
	UserAgent string
	OS        string
	Browser   string
	Device    string
}

type rule struct {
	needles []string
	name    string
}

// Order matters: Edge and Opera also advertise Chrome, Chrome advertises Safari.
var browserRules = []rule{
	{[]string{"edg/", "edge/"}, "Edge"},
	{[]string{"opr/", "opera"}, "Opera"},
	{[]string{"chrome/", "crios/"}, "Chrome"},
	{[]string{"firefox/", "fxios/"}, "Firefox"},
	{[]string{"safari/"}, "Safari"},
}

// Android advertises Linux and iOS advertises Mac OS X, so both go first.
var osRules = []rule{
	{[]string{"windows nt"}, "Windows"},
	{[]string{"android"}, "Android"},
	{[]string{"iphone", "ipad", "ipod", " ios "}, "iOS"},
	{[]string{"mac os x", "macintosh"}, "macOS"},
	{[]string{"cros"}, "ChromeOS"},
	{[]string{"linux"}, "Linux"},
}

var botNeedles = []string{"bot", "crawler", "spider", "slurp", "headless", "curl/", "wget/"}

func match(ua string, rules []rule) string {
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(ua, needle) {
				return r.name
			}
		}
	}
	return Unknown
}

// ParseUserAgent classifies a User-Agent header with substring heuristics.
func ParseUserAgent(userAgent string) UserAgent {
	ua := strings.ToLower(userAgent)
	result := UserAgent{
		UserAgent: userAgent,
		Browser:   match(ua, browserRules),
		OS:        match(ua, osRules),
	}

	switch {
	case containsAny(ua, botNeedles):
		result.Device = DeviceBot
	// Tablets often also say "mobile".
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		result.Device = DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") ||
		strings.Contains(ua, "ipod") || strings.Contains(ua, "android"):
		result.Device = DeviceMobile
	default:
		result.Device = DeviceDesktop
	}

	return result
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
