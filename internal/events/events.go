// Package events announces finished scans on a NATS subject.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/events")

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "safepost.scans"

// ScanEvent is the published payload. It never carries analyzed text.
type ScanEvent struct {
	ReportID        string        `json:"report_id"`
	Kind            string        `json:"kind"`
	OverallSeverity risk.Severity `json:"overall_severity"`
	Verdict         string        `json:"verdict"`
	FindingCount    int           `json:"finding_count"`
	Categories      []string      `json:"categories"`
	Cached          bool          `json:"cached,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// NewScanEvent builds the event for a finished report.
func NewScanEvent(kind string, report *risk.Report, verdict string) ScanEvent {
	cats := report.Categories()
	if cats == nil {
		cats = []string{}
	}
	return ScanEvent{
		ReportID:        report.ID,
		Kind:            kind,
		OverallSeverity: report.OverallSeverity,
		Verdict:         verdict,
		FindingCount:    len(report.Findings),
		Categories:      cats,
		Timestamp:       time.Now().UTC(),
	}
}

// Publisher sends scan events.
type Publisher interface {
	Publish(ctx context.Context, ev ScanEvent) error
	Close()
}

// NATS publishes scan events to one subject.
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NewNATS connects to url. Connection failures are retried in the background,
// so an unreachable server does not fail startup.
func NewNATS(url, subject string) (*NATS, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	conn, err := nats.Connect(url,
		nats.Name("safepost"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats_disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats_reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("scan_events_enabled")
	return &NATS{conn: conn, subject: subject}, nil
}

// Publish encodes ev as JSON and publishes it.
func (p *NATS) Publish(ctx context.Context, ev ScanEvent) error {
	_, span := tracer.Start(ctx, "events.publish")
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding scan event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publishing scan event: %w", err)
	}
	return nil
}

// Connected reports whether the connection is currently up.
func (p *NATS) Connected() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close closes the connection.
func (p *NATS) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, ScanEvent) error {
	return nil
}

func (Nop) Close() {}

var (
	_ Publisher = (*NATS)(nil)
	_ Publisher = Nop{}
)
