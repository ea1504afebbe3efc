package analytics_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"siteworker/internal/analytics"
)

func TestResolveAttribution(t *testing.T) {
	iphone := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	t.Run("parses user agent when no hints", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{}, iphone, "", "")
		assert.Equal(t, "mobile", attr.Device)
		assert.Equal(t, "iOS", attr.OS)
		assert.Equal(t, "Safari", attr.Browser)
		assert.Empty(t, attr.Country)
	})

	t.Run("unknown values stay empty", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{}, "SomethingOdd/1.0", "", "")
		assert.Empty(t, attr.OS)
		assert.Empty(t, attr.Browser)
		assert.Equal(t, "desktop", attr.Device)
	})

	t.Run("client country beats edge header", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{Country: "jp"}, iphone, "US", "")
		assert.Equal(t, "JP", attr.Country)
	})

	t.Run("edge header used without client country", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{}, iphone, "gb", "")
		assert.Equal(t, "GB", attr.Country)
	})

	t.Run("placeholder edge codes ignored", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{}, iphone, "XX", "")
		assert.Empty(t, attr.Country)
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "  Firefox ", 64, "Firefox"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"cut inside a rune backs off", "ab心", 4, "ab"},
		{"cut on a rune boundary", "ab心d", 5, "ab心"},
		{"only multi-byte", strings.Repeat("日本", 20), 32, strings.Repeat("日本", 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analytics.Truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}

	t.Run("hints are clipped safely", func(t *testing.T) {
		attr := analytics.ResolveAttribution(analytics.Hints{Browser: strings.Repeat("浏览器", 10)}, "", "", "")
		assert.True(t, utf8.ValidString(attr.Browser))
		assert.LessOrEqual(t, len(attr.Browser), 64)
	})
}
