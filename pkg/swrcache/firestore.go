package swrcache

import (
	"context"
	"fmt"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed store.
type FirestoreConfig struct {
	ProjectID      string
	CollectionName string
}

// FirestoreStore is a durable Store keeping one document per cache key.
// Suited to low-volume deployments that want cached state to survive
// restarts; use Redis for anything high-volume.
type FirestoreStore struct {
	client         *firestore.Client
	collectionName string
	logger         zerolog.Logger
}

// NewFirestoreStore creates a FirestoreStore over an injected client.
func NewFirestoreStore(cfg *FirestoreConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:         client,
		collectionName: cfg.CollectionName,
		logger:         logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// Read returns the current entry for key. A missing document is a miss, not
// an error.
func (s *FirestoreStore) Read(ctx context.Context, key string) (Entry, bool, error) {
	snap, err := s.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Entry{}, false, nil
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return Entry{}, false, fmt.Errorf("firestore get for %q: %w", key, err)
	}

	var entry Entry
	if err := snap.DataTo(&entry); err != nil {
		return Entry{}, false, fmt.Errorf("firestore DataTo for %q: %w", key, err)
	}
	return entry, true, nil
}

// Write stores value under key. The read-increment-write runs in a Firestore
// transaction so the version is never reused.
func (s *FirestoreStore) Write(ctx context.Context, key string, value any) (Entry, error) {
	var written Entry
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := s.entryInTx(tx, key)
		if err != nil {
			return err
		}
		written = Entry{Value: value, Version: current.Version + 1}
		return tx.Set(s.doc(key), written)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("firestore write for %q: %w", key, err)
	}
	return written, nil
}

// CompareAndSwap replaces the value only if the current version matches.
func (s *FirestoreStore) CompareAndSwap(ctx context.Context, key string, expect int64, value any) (bool, error) {
	swapped := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := s.entryInTx(tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 || current.Version != expect {
			return nil
		}
		swapped = true
		return tx.Set(s.doc(key), Entry{Value: value, Version: current.Version + 1})
	})
	if err != nil {
		return false, fmt.Errorf("firestore compare-and-swap for %q: %w", key, err)
	}
	return swapped, nil
}

// CompareAndDelete removes the document only if the current version matches.
func (s *FirestoreStore) CompareAndDelete(ctx context.Context, key string, expect int64) (bool, error) {
	deleted := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := s.entryInTx(tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 || current.Version != expect {
			return nil
		}
		deleted = true
		return tx.Delete(s.doc(key))
	})
	if err != nil {
		return false, fmt.Errorf("firestore compare-and-delete for %q: %w", key, err)
	}
	return deleted, nil
}

// Invalidate marks the document stale without bumping its version.
func (s *FirestoreStore) Invalidate(ctx context.Context, key string) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := s.entryInTx(tx, key)
		if err != nil {
			return err
		}
		if current.Version == 0 {
			return nil
		}
		current.Stale = true
		return tx.Set(s.doc(key), current)
	})
	if err != nil {
		return fmt.Errorf("firestore invalidate for %q: %w", key, err)
	}
	return nil
}

// Close is a no-op: the Firestore client's lifecycle is managed by whoever
// injected it.
func (s *FirestoreStore) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	// Firestore document IDs cannot contain '/', which canonical keys do.
	return s.client.Collection(s.collectionName).Doc(url.PathEscape(key))
}

func (s *FirestoreStore) entryInTx(tx *firestore.Transaction, key string) (Entry, error) {
	snap, err := tx.Get(s.doc(key))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Entry{}, nil
		}
		return Entry{}, err
	}
	var entry Entry
	if err := snap.DataTo(&entry); err != nil {
		return Entry{}, fmt.Errorf("firestore DataTo for %q: %w", key, err)
	}
	return entry, nil
}
