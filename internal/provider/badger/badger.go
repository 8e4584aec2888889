// Package badger provides a BadgerDB-backed record backend for the provider
// layer.
//
// # Key Schema
//
//	rec/<resource>\x00<id>  -> canonical JSON of the record
//
// List iterates the resource prefix, so records come back in id byte order.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/tracked/internal/canon"
	"github.com/roach88/tracked/internal/provider"
)

// Config configures the database.
type Config struct {
	// Dir is the directory for BadgerDB files.
	// Required unless InMemory is set.
	Dir string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging and backend debug logs.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a durable on-disk configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{Dir: dir, SyncWrites: true}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Backend stores records in BadgerDB.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Backend, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("dir is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Backend{db: db, logger: logger}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func recordPrefix(resource string) []byte {
	return []byte("rec/" + resource + "\x00")
}

func recordKey(resource, id string) []byte {
	return append(recordPrefix(resource), id...)
}

// Get returns the record stored under (resource, id).
func (b *Backend) Get(ctx context.Context, resource, id string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec map[string]any
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(resource, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = canon.UnmarshalObject(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, provider.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s/%s: %w", resource, id, err)
	}
	return rec, nil
}

// Put stores the canonical JSON of record.
func (b *Backend) Put(ctx context.Context, resource, id string, record map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil {
		record = map[string]any{}
	}
	data, err := canon.Marshal(record)
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", resource, id, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(resource, id), data)
	})
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", resource, id, err)
	}
	b.logger.Debug("badger record written", "resource", resource, "id", id, "bytes", len(data))
	return nil
}

// Delete removes a record.
func (b *Backend) Delete(ctx context.Context, resource, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(resource, id)
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return provider.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete record %s/%s: %w", resource, id, err)
	}
	return nil
}

// List returns every record of resource in id byte order.
func (b *Backend) List(ctx context.Context, resource string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := []map[string]any{}
	prefix := recordPrefix(resource)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := canon.UnmarshalObject(val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records %s: %w", resource, err)
	}
	return records, nil
}

var _ provider.Backend = (*Backend)(nil)
