// Package secrets stores provider credentials encrypted at rest.
//
// Values are sealed with AES-256-GCM and kept in SQLite. Every read, write,
// and delete is appended to an access log together with the caller recorded
// on the context.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aafreen2203/SafePostAI/internal/cryptoutil"
	spotel "github.com/Aafreen2203/SafePostAI/internal/otel"
	"github.com/Aafreen2203/SafePostAI/internal/requestctx"
)

var (
	// ErrNotFound is returned when a credential name does not exist.
	ErrNotFound = errors.New("credential not found")
	// ErrInvalidEncryptionKey is returned when the key is not 32 bytes or 64
	// hex characters.
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")
	// ErrEmptyName is returned by Set for a blank credential name.
	ErrEmptyName = errors.New("credential name is empty")
)

var tracer = spotel.Tracer("github.com/Aafreen2203/SafePostAI/internal/secrets")

// Access actions written to the log.
const (
	ActionGet    = "get"
	ActionSet    = "set"
	ActionDelete = "delete"
)

// Metadata describes a stored credential without its value.
type Metadata struct {
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AccessedAt  time.Time `json:"accessed_at,omitempty"`
	AccessCount int       `json:"access_count"`
}

// AccessRecord is one entry of the access log.
type AccessRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Caller    string    `json:"caller"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Found     bool      `json:"found"`
}

// Store is an encrypted credential store.
type Store struct {
	db  *sql.DB
	gcm cipher.AEAD
}

// NewStore opens the store at dbPath. The key must be 32 raw bytes or 64 hex
// characters.
func NewStore(dbPath, encryptionKey string) (*Store, error) {
	key, err := resolveKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening secrets database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		ciphertext TEXT NOT NULL,
		nonce TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		accessed_at TIMESTAMP,
		access_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS credential_access_log (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		caller TEXT NOT NULL,
		action TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		found BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credential_access_name ON credential_access_log(name);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating secrets schema: %w", err)
	}

	return &Store{db: db, gcm: gcm}, nil
}

func resolveKey(key string) ([]byte, error) {
	if !cryptoutil.ValidAESKey(key) {
		return nil, fmt.Errorf("encryption key must be 32 bytes or 64 hex characters (got %d): %w",
			len(key), ErrInvalidEncryptionKey)
	}
	return cryptoutil.KeyBytes(key), nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) seal(value string) (ciphertext, nonce string, err error) {
	n := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, n); err != nil {
		return "", "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := s.gcm.Seal(nil, n, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(n), nil
}

func (s *Store) open(ciphertext, nonce string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	n, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}
	plain, err := s.gcm.Open(nil, n, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plain), nil
}

// Set stores value under name, replacing any earlier value.
func (s *Store) Set(ctx context.Context, name, value string) error {
	ctx, span := tracer.Start(ctx, "secrets.set",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	if name == "" {
		return ErrEmptyName
	}
	ciphertext, nonce, err := s.seal(value)
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO credentials (name, ciphertext, nonce, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, name, ciphertext, nonce, now, now); err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing credential: %w", err)
	}
	s.logAccess(ctx, name, ActionSet, true)
	return nil
}

// SetMany stores several credentials in one transaction.
func (s *Store) SetMany(ctx context.Context, values map[string]string) error {
	ctx, span := tracer.Start(ctx, "secrets.set_many",
		trace.WithAttributes(attribute.Int("secret.count", len(values))))
	defer span.End()

	names := make([]string, 0, len(values))
	for name := range values {
		if name == "" {
			return ErrEmptyName
		}
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, name := range names {
		ciphertext, nonce, err := s.seal(values[name])
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO credentials (name, ciphertext, nonce, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				ciphertext = excluded.ciphertext,
				nonce = excluded.nonce,
				updated_at = excluded.updated_at`,
			name, ciphertext, nonce, now, now); err != nil {
			return fmt.Errorf("storing credential %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credentials: %w", err)
	}
	for _, name := range names {
		s.logAccess(ctx, name, ActionSet, true)
	}
	return nil
}

// Get decrypts the credential stored under name.
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	ctx, span := tracer.Start(ctx, "secrets.get",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	var ciphertext, nonce string
	err := s.db.QueryRowContext(ctx, `SELECT ciphertext, nonce FROM credentials WHERE name = ?`, name).
		Scan(&ciphertext, &nonce)
	if errors.Is(err, sql.ErrNoRows) {
		s.logAccess(ctx, name, ActionGet, false)
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("querying credential: %w", err)
	}

	value, err := s.open(ciphertext, nonce)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	_, _ = s.db.ExecContext(ctx,
		`UPDATE credentials SET accessed_at = ?, access_count = access_count + 1 WHERE name = ?`,
		time.Now().UTC(), name)
	s.logAccess(ctx, name, ActionGet, true)
	return value, nil
}

// GetMany returns the credentials that exist among names. Missing names are
// left out of the map rather than reported as errors.
func (s *Store) GetMany(ctx context.Context, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		value, err := s.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// List returns metadata for every stored credential, sorted by name.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	ctx, span := tracer.Start(ctx, "secrets.list")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, created_at, updated_at, accessed_at, access_count FROM credentials ORDER BY name`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	results := []Metadata{}
	for rows.Next() {
		var m Metadata
		var accessedAt sql.NullTime
		if err := rows.Scan(&m.Name, &m.CreatedAt, &m.UpdatedAt, &accessedAt, &m.AccessCount); err != nil {
			continue
		}
		m.AccessedAt = accessedAt.Time
		results = append(results, m)
	}
	return results, rows.Err()
}

// Delete removes a credential.
func (s *Store) Delete(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "secrets.delete",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE name = ?`, name)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting credential: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logAccess(ctx, name, ActionDelete, n > 0)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *Store) logAccess(ctx context.Context, name, action string, found bool) {
	caller := requestctx.Caller(ctx)
	if caller == "" {
		caller = "local"
	}
	_, _ = s.db.ExecContext(ctx,
		`INSERT INTO credential_access_log (id, name, caller, action, timestamp, found) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), name, caller, action, time.Now().UTC(), found)
}

// AccessLog returns log entries newest first. An empty name returns all
// entries; limit <= 0 means no limit.
func (s *Store) AccessLog(ctx context.Context, name string, limit int) ([]AccessRecord, error) {
	ctx, span := tracer.Start(ctx, "secrets.access_log")
	defer span.End()

	query := `SELECT id, name, caller, action, timestamp, found FROM credential_access_log`
	var args []interface{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access log: %w", err)
	}
	defer rows.Close()

	records := []AccessRecord{}
	for rows.Next() {
		var r AccessRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Caller, &r.Action, &r.Timestamp, &r.Found); err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
