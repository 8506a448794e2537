// Package store persists the session snapshot in BadgerDB.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/realtuner/stage/internal/domain"
)

var snapshotKey = []byte("session/state")

type BadgerStore struct {
	db *badger.DB
}

// Open creates or reopens the store at dir. An empty dir runs Badger
// in-memory, which tests use.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Load returns the persisted snapshot, or (nil, nil) when none exists.
func (s *BadgerStore) Load() (*domain.SessionState, error) {
	var state *domain.SessionState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			var snap domain.SessionState
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			state = &snap
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *BadgerStore) Save(state domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, data)
	})
}

func (s *BadgerStore) Close() error {
	log.Info().Str("module", "store").Msg("closing snapshot store")
	return s.db.Close()
}
