package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"siteworker/internal/pkg/geoip"
	"siteworker/internal/pkg/referrers"
)

// Source selects the event stream a query reads.
type Source int

const (
	SourcePageviews Source = iota
	SourceComments
)

// Dimension is the closed set of breakdown columns. Only the constant SQL
// fragments in breakdowns ever reach a query.
type Dimension string

const (
	DimensionPages     Dimension = "pages"
	DimensionReferrers Dimension = "referrers"
	DimensionEvents    Dimension = "events"
	DimensionDevices   Dimension = "devices"
	DimensionOS        Dimension = "os"
	DimensionBrowsers  Dimension = "browsers"
	DimensionCountries Dimension = "countries"
)

// Dimensions lists every breakdown in display order.
var Dimensions = []Dimension{
	DimensionPages, DimensionReferrers, DimensionEvents,
	DimensionDevices, DimensionOS, DimensionBrowsers, DimensionCountries,
}

// ParseDimension maps a route segment onto a Dimension.
func ParseDimension(s string) (Dimension, bool) {
	for _, d := range Dimensions {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

type breakdown struct {
	table    string
	column   string
	fallback string
	filter   string
}

type breakdownKey struct {
	source    Source
	dimension Dimension
}

// Device-class breakdowns of pageviews read sessions so they count distinct
// sessions, not pageview volume.
var breakdowns = map[breakdownKey]breakdown{
	{SourcePageviews, DimensionPages}:     {"umami_event", "url_path", "unknown", "event_type = 1"},
	{SourcePageviews, DimensionReferrers}: {"umami_event", "referrer_domain", referrers.Direct, "event_type = 1"},
	{SourcePageviews, DimensionEvents}:    {"umami_event", "event_name", "unknown", "event_type = 2"},
	{SourcePageviews, DimensionDevices}:   {"umami_session", "device", "unknown", "1 = 1"},
	{SourcePageviews, DimensionOS}:        {"umami_session", "os", "unknown", "1 = 1"},
	{SourcePageviews, DimensionBrowsers}:  {"umami_session", "browser", "unknown", "1 = 1"},
	{SourcePageviews, DimensionCountries}: {"umami_session", "country", geoip.UnknownCountry, "1 = 1"},

	{SourceComments, DimensionPages}:     {"comment_event", "page_key", "unknown", "event_type = 1"},
	{SourceComments, DimensionReferrers}: {"comment_event", "referrer_domain", referrers.Direct, "event_type = 1"},
	{SourceComments, DimensionEvents}:    {"comment_event", "event_name", "unknown", "1 = 1"},
	{SourceComments, DimensionDevices}:   {"comment_event", "device", "unknown", "event_type = 1"},
	{SourceComments, DimensionOS}:        {"comment_event", "os", "unknown", "event_type = 1"},
	{SourceComments, DimensionBrowsers}:  {"comment_event", "browser", "unknown", "event_type = 1"},
	{SourceComments, DimensionCountries}: {"comment_event", "country", geoip.UnknownCountry, "event_type = 1"},
}

// MetricCount is one row of a top-N breakdown.
type MetricCount struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Count int64  `json:"count"`
}

// Breakdown returns the top-N values of a dimension, descending by count.
// Ties have no defined secondary order.
func Breakdown(db *gorm.DB, source Source, dim Dimension, params QueryParams) ([]MetricCount, error) {
	b, ok := breakdowns[breakdownKey{source, dim}]
	if !ok {
		return nil, fmt.Errorf("unsupported breakdown: %s", dim)
	}

	query := fmt.Sprintf(`
    SELECT
        COALESCE(NULLIF(%[1]s, ''), '%[2]s') AS name,
        COUNT(*) AS count
    FROM %[3]s
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    AND %[4]s
    GROUP BY name
    ORDER BY count DESC
    LIMIT ?
    `, b.column, b.fallback, b.table, b.filter)

	var results []MetricCount
	err := db.Raw(query, params.SiteID, params.Start, params.End, ClampLimit(params.Limit)).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", dim, err)
	}

	for i := range results {
		switch dim {
		case DimensionReferrers:
			results[i].Label = referrers.FriendlyName(results[i].Name)
		case DimensionCountries:
			results[i].Label = geoip.CountryName(results[i].Name)
		}
	}
	if results == nil {
		results = []MetricCount{}
	}
	return results, nil
}

// Overview holds the headline pageview counters.
type Overview struct {
	Pageviews int64 `json:"pageviews"`
	Visitors  int64 `json:"visitors"`
	Visits    int64 `json:"visits"`
	Events    int64 `json:"events"`
}

// GetOverview counts pageviews, distinct sessions, distinct visits and
// custom events in range.
func GetOverview(db *gorm.DB, params QueryParams) (Overview, error) {
	var result Overview
	err := db.Raw(`
    SELECT
        COUNT(CASE WHEN event_type = 1 THEN 1 END) AS pageviews,
        COUNT(DISTINCT session_id) AS visitors,
        COUNT(DISTINCT visit_id) AS visits,
        COUNT(CASE WHEN event_type = 2 THEN 1 END) AS events
    FROM umami_event
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    `, params.SiteID, params.Start, params.End).Scan(&result).Error
	if err != nil {
		return Overview{}, fmt.Errorf("error fetching overview: %w", err)
	}
	return result, nil
}

// CommentOverview holds the headline comment counters.
type CommentOverview struct {
	Submissions int64 `json:"submissions"`
	Approvals   int64 `json:"approvals"`
	Hides       int64 `json:"hides"`
	Deletes     int64 `json:"deletes"`
	Commenters  int64 `json:"commenters"`
}

// GetCommentOverview counts comment events per type and distinct commenters.
func GetCommentOverview(db *gorm.DB, params QueryParams) (CommentOverview, error) {
	var result CommentOverview
	err := db.Raw(`
    SELECT
        COUNT(CASE WHEN event_type = 1 THEN 1 END) AS submissions,
        COUNT(CASE WHEN event_type = 2 THEN 1 END) AS approvals,
        COUNT(CASE WHEN event_type = 3 THEN 1 END) AS hides,
        COUNT(CASE WHEN event_type = 4 THEN 1 END) AS deletes,
        COUNT(DISTINCT CASE WHEN event_type = 1 THEN distinct_id END) AS commenters
    FROM comment_event
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    `, params.SiteID, params.Start, params.End).Scan(&result).Error
	if err != nil {
		return CommentOverview{}, fmt.Errorf("error fetching comment overview: %w", err)
	}
	return result, nil
}

// TimeseriesPoint is one UTC day of pageview activity.
type TimeseriesPoint struct {
	Day       string `json:"day"`
	Pageviews int64  `json:"pageviews"`
	Visitors  int64  `json:"visitors"`
	Visits    int64  `json:"visits"`
	Events    int64  `json:"events"`
}

// GetTimeseries buckets pageview activity by UTC day, ascending.
func GetTimeseries(db *gorm.DB, params QueryParams) ([]TimeseriesPoint, error) {
	results := []TimeseriesPoint{}
	err := db.Raw(`
    SELECT
        date(datetime(created_at, 'unixepoch')) AS day,
        COUNT(CASE WHEN event_type = 1 THEN 1 END) AS pageviews,
        COUNT(DISTINCT session_id) AS visitors,
        COUNT(DISTINCT visit_id) AS visits,
        COUNT(CASE WHEN event_type = 2 THEN 1 END) AS events
    FROM umami_event
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY day
    ORDER BY day ASC
    `, params.SiteID, params.Start, params.End).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching timeseries: %w", err)
	}
	return results, nil
}

// CommentTimeseriesPoint is one UTC day of comment activity.
type CommentTimeseriesPoint struct {
	Day         string `json:"day"`
	Submissions int64  `json:"submissions"`
	Approvals   int64  `json:"approvals"`
	Hides       int64  `json:"hides"`
	Deletes     int64  `json:"deletes"`
}

// GetCommentTimeseries buckets comment events by UTC day, ascending.
func GetCommentTimeseries(db *gorm.DB, params QueryParams) ([]CommentTimeseriesPoint, error) {
	results := []CommentTimeseriesPoint{}
	err := db.Raw(`
    SELECT
        date(datetime(created_at, 'unixepoch')) AS day,
        COUNT(CASE WHEN event_type = 1 THEN 1 END) AS submissions,
        COUNT(CASE WHEN event_type = 2 THEN 1 END) AS approvals,
        COUNT(CASE WHEN event_type = 3 THEN 1 END) AS hides,
        COUNT(CASE WHEN event_type = 4 THEN 1 END) AS deletes
    FROM comment_event
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY day
    ORDER BY day ASC
    `, params.SiteID, params.Start, params.End).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching comment timeseries: %w", err)
	}
	return results, nil
}

// RetentionPoint is the number of distinct devices seen on one UTC day.
type RetentionPoint struct {
	Day      string `json:"day"`
	Visitors int64  `json:"visitors"`
}

// GetRetention counts distinct devices per day: sessions for pageviews,
// submitting commenters for comments. It is a returning-visitor proxy,
// not a cohort curve.
func GetRetention(db *gorm.DB, source Source, params QueryParams) ([]RetentionPoint, error) {
	query := `
    SELECT
        date(datetime(created_at, 'unixepoch')) AS day,
        COUNT(DISTINCT distinct_id) AS visitors
    FROM umami_session
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    GROUP BY day
    ORDER BY day ASC
    `
	if source == SourceComments {
		query = `
    SELECT
        date(datetime(created_at, 'unixepoch')) AS day,
        COUNT(DISTINCT distinct_id) AS visitors
    FROM comment_event
    WHERE site_id = ?
    AND created_at BETWEEN ? AND ?
    AND event_type = 1
    GROUP BY day
    ORDER BY day ASC
    `
	}

	results := []RetentionPoint{}
	if err := db.Raw(query, params.SiteID, params.Start, params.End).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching retention: %w", err)
	}
	return results, nil
}
