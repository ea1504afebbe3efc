package analytics

import (
	"strconv"
	"strings"
	"time"

	"siteworker/internal/apierror"
)

const (
	DefaultLimit  = 10
	MaxLimit      = 50
	DefaultWindow = 30 * 24 * time.Hour
)

// QueryParams scopes a read query to one site and a Unix-second range.
type QueryParams struct {
	SiteID uint
	Start  int64
	End    int64
	Limit  int
}

// ParseQueryParams builds params from raw query-string values. Missing
// bounds default to the trailing 30 days ending at now; limit is clamped to
// [1, 50] and defaults to 10.
func ParseQueryParams(siteID uint, start, end, limit string, now time.Time) (QueryParams, error) {
	params := QueryParams{
		SiteID: siteID,
		End:    now.UTC().Unix(),
		Limit:  DefaultLimit,
	}

	if v := strings.TrimSpace(end); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, apierror.Invalid("end must be a Unix timestamp")
		}
		params.End = n
	}

	params.Start = params.End - int64(DefaultWindow/time.Second)
	if v := strings.TrimSpace(start); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return params, apierror.Invalid("start must be a Unix timestamp")
		}
		params.Start = n
	}

	if params.Start > params.End {
		return params, apierror.Invalid("start must not be after end")
	}

	if v := strings.TrimSpace(limit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, apierror.Invalid("limit must be an integer")
		}
		params.Limit = ClampLimit(n)
	}

	return params, nil
}

// ClampLimit bounds a caller-supplied limit to [1, MaxLimit].
func ClampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
