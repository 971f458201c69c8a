// Package secrets stores provider credentials per (workspace, provider, kind),
// encrypted before they reach any backend. Secret storage is kept physically
// apart from the engine's state snapshot.
package secrets

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Key addresses one secret
type Key struct {
	Workspace string
	Provider  models.Provider
	Kind      models.SecretKind
}

// NewKey builds a Key
func NewKey(workspace string, provider models.Provider, kind models.SecretKind) Key {
	return Key{Workspace: workspace, Provider: provider, Kind: kind}
}

// Account returns the backend account name for the key
func (k Key) Account() string {
	return fmt.Sprintf("fern.%s.%s.%s", k.Workspace, k.Provider, k.Kind)
}

// Backend persists sealed secret bytes by account name
type Backend interface {
	Put(ctx context.Context, account string, sealed []byte) error
	Fetch(ctx context.Context, account string) ([]byte, bool, error)
	Delete(ctx context.Context, account string) error
}

// Store encrypts values and delegates persistence to a Backend
type Store struct {
	backend Backend
	cipher  *Cipher
	logger  ectologger.Logger
}

// NewStore creates a secret store
func NewStore(backend Backend, cipher *Cipher, logger ectologger.Logger) *Store {
	return &Store{
		backend: backend,
		cipher:  cipher,
		logger:  logger,
	}
}

// Set stores value under key
func (s *Store) Set(ctx context.Context, key Key, value string) error {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Set")
	defer span.End()

	sealed, err := s.cipher.Seal(key.Account(), []byte(value))
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key.Account(), sealed); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"workspace": key.Workspace,
			"provider":  key.Provider,
			"kind":      key.Kind,
		}).Error("failed to write secret")
		return fmt.Errorf("failed to write secret %s: %w", key.Kind, err)
	}
	return nil
}

// Get returns the value under key and whether it exists
func (s *Store) Get(ctx context.Context, key Key) (string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Get")
	defer span.End()

	sealed, ok, err := s.backend.Fetch(ctx, key.Account())
	if err != nil {
		return "", false, fmt.Errorf("failed to read secret %s: %w", key.Kind, err)
	}
	if !ok {
		return "", false, nil
	}

	plaintext, err := s.cipher.Open(key.Account(), sealed)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("secret %s for %s/%s is unreadable", key.Kind, key.Workspace, key.Provider)
		return "", false, err
	}
	return string(plaintext), true, nil
}

// Exists reports whether a readable, non-empty secret is stored under key.
// Read errors count as absent.
func (s *Store) Exists(ctx context.Context, key Key) bool {
	value, ok, err := s.Get(ctx, key)
	return err == nil && ok && value != ""
}

// Remove deletes the secret under key. Removing a missing secret is not an error.
func (s *Store) Remove(ctx context.Context, key Key) error {
	ctx, span := tracing.StartSpan(ctx, "SecretStore.Remove")
	defer span.End()

	if err := s.backend.Delete(ctx, key.Account()); err != nil {
		return fmt.Errorf("failed to remove secret %s: %w", key.Kind, err)
	}
	return nil
}
