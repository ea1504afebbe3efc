package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"

	"siteworker/internal/analytics"
	"siteworker/internal/config"
)

// relayHeaders carry a single client address set by a trusted proxy.
var relayHeaders = []string{"X-Real-IP", "True-Client-IP", "X-Client-IP"}

// nonPublic are the ranges never attributed to a visitor.
var nonPublic = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// requestMeta collects what the transport knows about the caller.
func requestMeta(c *fiber.Ctx) analytics.RequestMeta {
	return analytics.RequestMeta{
		IP:          clientIP(c),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
		Origin:      c.Get(fiber.HeaderOrigin),
		EdgeCountry: c.Get("CF-IPCountry"),
	}
}

// doNotTrack reports whether the browser sent DNT: 1.
func doNotTrack(c *fiber.Ctx) bool {
	return strings.TrimSpace(c.Get("DNT")) == "1"
}

// clientIP resolves the caller's public address. The edge header wins, then
// X-Forwarded-For, the single-value relay headers, Forwarded and finally the
// socket. Outside production a loopback address stands in when nothing
// public is known.
func clientIP(c *fiber.Ctx) string {
	candidates := [][]string{
		{c.Get("CF-Connecting-IP")},
		strings.Split(c.Get(fiber.HeaderXForwardedFor), ","),
	}
	for _, h := range relayHeaders {
		candidates = append(candidates, []string{c.Get(h)})
	}
	candidates = append(candidates,
		forwardedFor(c.Get(fiber.HeaderForwarded)),
		[]string{c.Context().RemoteAddr().String()},
	)

	for _, values := range candidates {
		if addr, ok := pickPublic(values); ok {
			return addr.String()
		}
	}

	if !config.GetConfig().IsProduction() || isLoopbackHost(c.Hostname()) {
		return "127.0.0.1"
	}
	return ""
}

// pickPublic returns the first public IPv4 address in values, or the first
// public IPv6 one when no IPv4 address qualifies.
func pickPublic(values []string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, raw := range values {
		addr, ok := parseAddr(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr, true
		}
		if !v6.IsValid() {
			v6 = addr
		}
	}
	return v6, v6.IsValid()
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr.IsUnspecified() {
		return false
	}
	for _, p := range nonPublic {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// parseAddr accepts bare, bracketed, quoted, zoned and host:port forms.
// IPv4-mapped IPv6 addresses come back as IPv4.
func parseAddr(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return netip.Addr{}, false
	}

	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().WithZone("").Unmap(), true
	}

	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")); err == nil {
		return addr.Unmap(), true
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return parseAddr(host)
	}
	return netip.Addr{}, false
}

// forwardedFor extracts the for= values of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var out []string
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				out = append(out, value)
			}
		}
	}
	return out
}

func isLoopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.IsLoopback()
}
