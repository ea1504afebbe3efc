package analytics

import (
	"strings"
	"unicode/utf8"

	"siteworker/internal/pkg/geoip"
	"siteworker/internal/pkg/user_agent"
)

// Hints are the client-supplied descriptors that override header parsing.
type Hints struct {
	DeviceType string
	OS         string
	Browser    string
	Country    string
	Screen     string
	Language   string
}

// Attribution is the resolved device description of a request.
type Attribution struct {
	Device   string
	OS       string
	Browser  string
	Country  string
	Screen   string
	Language string
}

// ResolveAttribution prefers explicit client hints, then the User-Agent
// header. Country comes from the client hint, then the edge geolocation
// header, then the local GeoLite database. Unresolved fields stay empty.
func ResolveAttribution(hints Hints, userAgent, edgeCountry, ip string) Attribution {
	ua := user_agent.ParseUserAgent(userAgent)

	attr := Attribution{
		Device:   firstNonEmpty(strings.ToLower(Truncate(hints.DeviceType, 32)), ua.Device),
		OS:       firstNonEmpty(Truncate(hints.OS, 64), known(ua.OS)),
		Browser:  firstNonEmpty(Truncate(hints.Browser, 64), known(ua.Browser)),
		Screen:   Truncate(hints.Screen, 32),
		Language: Truncate(hints.Language, 35),
	}

	attr.Country = geoip.NormalizeCode(hints.Country)
	if attr.Country == "" {
		attr.Country = geoip.NormalizeCode(edgeCountry)
	}
	if attr.Country == "" {
		attr.Country = geoip.CountryCode(ip)
	}

	return attr
}

func known(v string) string {
	if v == user_agent.Unknown {
		return ""
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Truncate trims s and cuts it to at most max bytes without splitting a
// UTF-8 sequence.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	return cutBytes(s, max)
}

func cutBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
