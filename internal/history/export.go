package history

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Export is a full dump of the scan log with its analytics. Settings and
// Version are filled by the caller.
type Export struct {
	ExportedAt time.Time              `json:"exported_at"`
	Version    string                 `json:"version,omitempty"`
	Settings   map[string]interface{} `json:"settings,omitempty"`
	Records    []Record               `json:"records"`
	Analytics  *Analytics             `json:"analytics"`
}

// Export returns every stored record, newest first, and the analytics over
// them.
func (s *Store) Export(ctx context.Context) (*Export, error) {
	ctx, span := tracer.Start(ctx, "history.export")
	defer span.End()

	records, err := s.List(ctx, Filter{})
	if err != nil {
		return nil, fmt.Errorf("loading scan records: %w", err)
	}
	now := time.Now().UTC()
	span.SetAttributes(attribute.Int("scan.count", len(records)))
	return &Export{
		ExportedAt: now,
		Records:    records,
		Analytics:  summarize(records, now, DefaultAnalyticsDays),
	}, nil
}
