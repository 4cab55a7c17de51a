package history

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAnalyticsDays is the activity window used when Analytics gets zero.
const DefaultAnalyticsDays = 30

// DayActivity counts the scans of one UTC day.
type DayActivity struct {
	Date  string `json:"date"`
	Scans int    `json:"scans"`
	Risky int    `json:"risky"`
}

// Analytics summarises the scan log.
type Analytics struct {
	TotalScans       int            `json:"total_scans"`
	RiskyPosts       int            `json:"risky_posts"`
	Overrides        int            `json:"overrides"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	DetectionStats   map[string]int `json:"detection_stats"`
	DailyActivity    []DayActivity  `json:"daily_activity"`
}

// Analytics computes totals over every stored record and per-day activity over
// the last days days.
func (s *Store) Analytics(ctx context.Context, days int) (*Analytics, error) {
	ctx, span := tracer.Start(ctx, "history.analytics")
	defer span.End()

	if days <= 0 {
		days = DefaultAnalyticsDays
	}
	records, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("loading scan records: %w", err)
	}
	out := summarize(records, time.Now().UTC(), days)
	span.SetAttributes(
		attribute.Int("scan.total", out.TotalScans),
		attribute.Int("scan.risky", out.RiskyPosts),
	)
	return out, nil
}

func summarize(records []Record, now time.Time, days int) *Analytics {
	out := &Analytics{
		TotalScans:       len(records),
		RiskDistribution: map[string]int{"low": 0, "medium": 0, "high": 0},
		DetectionStats:   map[string]int{},
	}

	out.RiskyPosts = lo.CountBy(records, func(r Record) bool { return r.Risky() })
	out.Overrides = lo.CountBy(records, func(r Record) bool { return r.Overridden })

	for _, r := range records {
		if r.Risky() && r.ScoreLevel != "" && r.ScoreLevel != "none" {
			out.RiskDistribution[r.ScoreLevel]++
		}
		// Count each class once per scan.
		classes := lo.Uniq(lo.Map(r.Categories, func(c string, _ int) string {
			class, _, _ := strings.Cut(c, "/")
			return class
		}))
		for _, c := range classes {
			out.DetectionStats[c]++
		}
	}

	start := now.Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))
	byDay := map[string]*DayActivity{}
	for _, r := range records {
		if r.CreatedAt.Before(start) {
			continue
		}
		key := r.CreatedAt.UTC().Format(time.DateOnly)
		d, ok := byDay[key]
		if !ok {
			d = &DayActivity{Date: key}
			byDay[key] = d
		}
		d.Scans++
		if r.Risky() {
			d.Risky++
		}
	}
	out.DailyActivity = lo.Map(lo.Values(byDay), func(d *DayActivity, _ int) DayActivity { return *d })
	sort.Slice(out.DailyActivity, func(i, j int) bool {
		return out.DailyActivity[i].Date < out.DailyActivity[j].Date
	})
	return out
}
