package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Aafreen2203/SafePostAI/internal/history"
	"github.com/Aafreen2203/SafePostAI/internal/secrets"
)

// NewTestHistoryStore creates a scan history in a temp dir and registers
// t.Cleanup to close it. Uses TestSigningKey.
func NewTestHistoryStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.NewStore(filepath.Join(t.TempDir(), "history.db"), TestSigningKey)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// NewTestSecretsStore creates a credential store in a temp dir, seeded with
// creds. Uses TestEncryptionKey.
func NewTestSecretsStore(t *testing.T, creds map[string]string) *secrets.Store {
	t.Helper()
	store, err := secrets.NewStore(filepath.Join(t.TempDir(), "secrets.db"), TestEncryptionKey)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	if len(creds) > 0 {
		if err := store.SetMany(context.Background(), creds); err != nil {
			t.Fatal(err)
		}
	}
	return store
}
