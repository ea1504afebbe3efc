package analytics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteworker/internal/analytics"
	"siteworker/internal/apierror"
)

func TestParseQueryParams(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("defaults to trailing 30 days", func(t *testing.T) {
		params, err := analytics.ParseQueryParams(3, "", "", "", now)
		require.NoError(t, err)
		assert.Equal(t, uint(3), params.SiteID)
		assert.Equal(t, now.Unix(), params.End)
		assert.Equal(t, now.Add(-30*24*time.Hour).Unix(), params.Start)
		assert.Equal(t, analytics.DefaultLimit, params.Limit)
	})

	t.Run("explicit range", func(t *testing.T) {
		params, err := analytics.ParseQueryParams(1, "100", "200", "25", now)
		require.NoError(t, err)
		assert.Equal(t, int64(100), params.Start)
		assert.Equal(t, int64(200), params.End)
		assert.Equal(t, 25, params.Limit)
	})

	t.Run("limit is clamped", func(t *testing.T) {
		params, err := analytics.ParseQueryParams(1, "", "", "500", now)
		require.NoError(t, err)
		assert.Equal(t, analytics.MaxLimit, params.Limit)

		params, err = analytics.ParseQueryParams(1, "", "", "0", now)
		require.NoError(t, err)
		assert.Equal(t, 1, params.Limit)
	})

	t.Run("invalid input", func(t *testing.T) {
		cases := [][3]string{
			{"abc", "", ""},
			{"", "abc", ""},
			{"", "", "ten"},
			{"300", "200", ""},
		}
		for _, c := range cases {
			_, err := analytics.ParseQueryParams(1, c[0], c[1], c[2], now)
			assert.ErrorIs(t, err, apierror.ErrInvalidPayload, "input %v", c)
		}
	})
}
