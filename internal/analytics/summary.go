package analytics

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"siteworker/internal/pkg/async"
)

// Summary gathers the dashboard's headline panels in one call.
type Summary struct {
	Overview   Overview          `json:"overview"`
	Pages      []MetricCount     `json:"pages"`
	Referrers  []MetricCount     `json:"referrers"`
	Countries  []MetricCount     `json:"countries"`
	Timeseries []TimeseriesPoint `json:"timeseries"`
}

// GetSummary runs the overview, top pages, top referrers, top countries and
// timeseries queries concurrently. The first failing panel fails the call.
func GetSummary(ctx context.Context, db *gorm.DB, params QueryParams) (*Summary, error) {
	tasks := []async.Task{
		{Name: "overview", Execute: func(ctx context.Context) (any, error) {
			return GetOverview(db.WithContext(ctx), params)
		}},
		{Name: "pages", Execute: func(ctx context.Context) (any, error) {
			return Breakdown(db.WithContext(ctx), SourcePageviews, DimensionPages, params)
		}},
		{Name: "referrers", Execute: func(ctx context.Context) (any, error) {
			return Breakdown(db.WithContext(ctx), SourcePageviews, DimensionReferrers, params)
		}},
		{Name: "countries", Execute: func(ctx context.Context) (any, error) {
			return Breakdown(db.WithContext(ctx), SourcePageviews, DimensionCountries, params)
		}},
		{Name: "timeseries", Execute: func(ctx context.Context) (any, error) {
			return GetTimeseries(db.WithContext(ctx), params)
		}},
	}

	results := async.NewPool(len(tasks)).Execute(ctx, tasks)
	for _, task := range tasks {
		if err := results[task.Name].Err; err != nil {
			return nil, fmt.Errorf("summary %s: %w", task.Name, err)
		}
	}

	return &Summary{
		Overview:   results["overview"].Data.(Overview),
		Pages:      results["pages"].Data.([]MetricCount),
		Referrers:  results["referrers"].Data.([]MetricCount),
		Countries:  results["countries"].Data.([]MetricCount),
		Timeseries: results["timeseries"].Data.([]TimeseriesPoint),
	}, nil
}
