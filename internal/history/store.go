// Package history keeps a signed log of past scans.
//
// A record holds the outcome of one analysis (severity, verdict, categories,
// counts) and never the analyzed text or matched values. Each record is signed
// with HMAC-SHA256 so that tampering with the sqlite file is detectable, and
// the log is pruned to the most recent entries by a cron job.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/risk"
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/history")

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("scan record not found")

// DefaultKeep is how many records Prune keeps when given zero.
const DefaultKeep = 1000

// Record is one entry of the scan log.
type Record struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	Kind            string        `json:"kind"`
	OverallSeverity risk.Severity `json:"overall_severity"`
	Verdict         string        `json:"verdict"`
	Score           int           `json:"score"`
	ScoreLevel      string        `json:"score_level"`
	Categories      []string      `json:"categories"`
	FindingCount    int           `json:"finding_count"`
	Overridden      bool          `json:"overridden"`
	Signature       string        `json:"signature"`
}

// Risky reports whether the scan found anything at all.
func (r *Record) Risky() bool {
	return r.OverallSeverity > risk.SeverityNone
}

// FromReport builds an unsigned record for a finished report.
func FromReport(kind string, report *risk.Report, verdict string, score int, scoreLevel string) *Record {
	cats := report.Categories()
	if cats == nil {
		cats = []string{}
	}
	return &Record{
		ID:              report.ID,
		CreatedAt:       report.CreatedAt.UTC(),
		Kind:            kind,
		OverallSeverity: report.OverallSeverity,
		Verdict:         verdict,
		Score:           score,
		ScoreLevel:      scoreLevel,
		Categories:      cats,
		FindingCount:    len(report.Findings),
	}
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	Kind  string
	Since time.Time
	Limit int
}

// Store persists signed scan records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// NewStore opens (or creates) the scan log at dbPath.
func NewStore(dbPath, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		kind TEXT NOT NULL,
		overall_severity TEXT NOT NULL,
		verdict TEXT NOT NULL,
		overridden INTEGER NOT NULL DEFAULT 0,
		record_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scans_created ON scans(created_at);
	CREATE INDEX IF NOT EXISTS idx_scans_kind ON scans(kind);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &Store{db: db, signer: signer}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// signedBytes is the JSON of rec with its Signature field cleared.
func signedBytes(rec *Record) ([]byte, error) {
	unsigned := *rec
	unsigned.Signature = ""
	data, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}
	return data, nil
}

const upsertQuery = `INSERT OR REPLACE INTO scans (id, created_at, kind, overall_severity, verdict, overridden, record_json, signature)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) write(ctx context.Context, rec *Record) error {
	unsigned, err := signedBytes(rec)
	if err != nil {
		return err
	}
	sig := s.signer.Sign(unsigned)
	rec.Signature = sig
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertQuery,
		rec.ID, rec.CreatedAt, rec.Kind, rec.OverallSeverity.String(), rec.Verdict,
		rec.Overridden, string(data), sig,
	)
	return err
}

// Save signs and stores rec. Saving an id twice replaces the earlier record.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	ctx, span := tracer.Start(ctx, "history.save",
		trace.WithAttributes(
			attribute.String("scan.id", rec.ID),
			attribute.String("scan.kind", rec.Kind),
		))
	defer span.End()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.write(ctx, rec); err != nil {
		return fmt.Errorf("storing scan record: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "history.get",
		trace.WithAttributes(attribute.String("scan.id", id)))
	defer span.End()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM scans WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying scan record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling scan record: %w", err)
	}
	return &rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "history.list")
	defer span.End()

	query := `SELECT record_json FROM scans WHERE 1=1`
	var args []interface{}
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, f.Kind)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scan records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	span.SetAttributes(attribute.Int("scan.count", len(records)))
	return records, rows.Err()
}

// MarkOverridden records that the user posted despite the warning. The record
// is re-signed.
func (s *Store) MarkOverridden(ctx context.Context, id string) (*Record, error) {
	ctx, span := tracer.Start(ctx, "history.mark_overridden",
		trace.WithAttributes(attribute.String("scan.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Overridden = true
	if err := s.write(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating scan record: %w", err)
	}
	return rec, nil
}

// Verify checks the stored signature of a record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "history.verify",
		trace.WithAttributes(attribute.String("scan.id", id)))
	defer span.End()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return s.VerifyRecord(rec)
}

// VerifyRecord checks rec's signature without touching the database.
func (s *Store) VerifyRecord(rec *Record) (bool, error) {
	data, err := signedBytes(rec)
	if err != nil {
		return false, err
	}
	return s.signer.Verify(data, rec.Signature), nil
}

// Prune deletes all but the newest keep records and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	ctx, span := tracer.Start(ctx, "history.prune")
	defer span.End()

	if keep <= 0 {
		keep = DefaultKeep
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scans WHERE id NOT IN (
			SELECT id FROM scans ORDER BY created_at DESC, id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning scan records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning scan records: %w", err)
	}
	span.SetAttributes(attribute.Int64("scan.pruned", n))
	return n, nil
}
