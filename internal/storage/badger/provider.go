// Package badger implements storage.Provider on an embedded BadgerDB so a single
// node can keep jobs and cached results across restarts without Redis.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/JakeFAU/realtime-media-ingest/internal/storage"
)

// Config selects where the database lives.
type Config struct {
	Path     string
	InMemory bool
}

// Provider stores values in BadgerDB with per-entry TTLs.
type Provider struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database.
func Open(cfg Config) (*Provider, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory: %w", err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Provider{db: db}, nil
}

// Set writes value with the given TTL. A non-positive ttl never expires.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := p.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Get returns storage.ErrNotFound for missing or expired keys.
func (p *Provider) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := p.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", key, err)
	}
	return out, nil
}

// Ping fails once the database has been closed.
func (p *Provider) Ping(context.Context) error {
	if p.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close flushes and closes the database.
func (p *Provider) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
