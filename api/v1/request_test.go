package v1

import (
	"io"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "79.144.65.173", want: "79.144.65.173"},
		{name: "surrounding spaces", raw: " 79.144.65.173 ", want: "79.144.65.173"},
		{name: "quoted", raw: `"79.144.65.173"`, want: "79.144.65.173"},
		{name: "with port", raw: "79.144.65.173:443", want: "79.144.65.173"},
		{name: "quoted with port", raw: `"79.144.65.173:1234"`, want: "79.144.65.173"},
		{name: "ipv6", raw: "2001:db8::1", want: "2001:db8::1"},
		{name: "bracketed ipv6", raw: "[2001:db8::1]", want: "2001:db8::1"},
		{name: "ipv6 with port", raw: "[2001:db8::1]:8443", want: "2001:db8::1"},
		{name: "zoned ipv6", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "mapped ipv4", raw: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "garbage", raw: "not-an-ip"},
		{name: "blank", raw: "   "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, ok := parseAddr(tc.raw)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, addr.String())
		})
	}
}

func TestPickPublic(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"ipv4 preferred over ipv6", []string{"2001:db8::1", "203.0.113.20"}, "203.0.113.20"},
		{"private ranges skipped", []string{"192.168.1.10", "10.0.0.5", "::1", "198.51.100.7"}, "198.51.100.7"},
		{"ipv6 when no ipv4", []string{"2001:db8::2"}, "2001:db8::2"},
		{"nothing usable", []string{"", "   ", "not-an-ip", "0.0.0.0"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, ok := pickPublic(tc.values)
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, addr.String())
		})
	}
}

func TestIsPublicWithMappedIPv4(t *testing.T) {
	assert.False(t, isPublic(netip.MustParseAddr("::ffff:192.168.1.5")))
	assert.True(t, isPublic(netip.MustParseAddr("::ffff:8.8.8.8")))
}

func TestForwardedFor(t *testing.T) {
	got := forwardedFor(`for=192.0.2.60;proto=http;by=203.0.113.43, For="[2001:db8:cafe::17]:4711"`)
	assert.Equal(t, []string{"192.0.2.60", `"[2001:db8:cafe::17]:4711"`}, got)
	assert.Empty(t, forwardedFor("proto=https"))

	addr, ok := pickPublic(got)
	require.True(t, ok)
	assert.Equal(t, "192.0.2.60", addr.String())
}

func TestClientIPHeaderPriority(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(clientIP(c))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name: "edge header wins",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.1",
				"X-Forwarded-For":  "203.0.113.5",
			},
			want: "198.51.100.1",
		},
		{
			name:    "first public forwarded address",
			headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 203.0.113.5"},
			want:    "203.0.113.5",
		},
		{
			name:    "relay header",
			headers: map[string]string{"X-Real-IP": "203.0.113.7"},
			want:    "203.0.113.7",
		},
		{
			name:    "forwarded header",
			headers: map[string]string{"Forwarded": "for=203.0.113.8;proto=https"},
			want:    "203.0.113.8",
		},
		{
			name:    "loopback fallback outside production",
			headers: map[string]string{"X-Forwarded-For": "192.168.1.1"},
			want:    "127.0.0.1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}
