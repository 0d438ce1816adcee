package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// BadgerMetadataStore implements metadata.Store using BadgerDB for persistence.
//
// It is suitable for deployments that need inodes and ACLs to survive
// restarts. Every operation runs in its own BadgerDB transaction, so a write
// is either fully visible or not at all.
//
// Storage Model:
// See keys.go for the key namespace layout.
type BadgerMetadataStore struct {
	db *badger.DB
}

// BadgerMetadataStoreConfig contains configuration for creating a BadgerDB
// metadata store.
type BadgerMetadataStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files
	DBPath string `mapstructure:"path" validate:"required_without=InMemory"`

	// InMemory keeps the whole database in memory (tests, scratch mounts)
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the block cache size (default: 64MB)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb" validate:"gte=0"`

	// IndexCacheSizeMB is the index cache size (default: 32MB)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb" validate:"gte=0"`

	// BadgerOptions allows customization of BadgerDB behavior
	// If nil, options are derived from the fields above
	BadgerOptions *badger.Options `mapstructure:"-"`
}

// NewBadgerMetadataStore opens (or creates) a BadgerDB-backed store.
func NewBadgerMetadataStore(ctx context.Context, config BadgerMetadataStoreConfig) (*BadgerMetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		if config.InMemory {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badger.DefaultOptions(config.DBPath)
		}

		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 64
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 32
		}

		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	logger.Debug("Opened badger metadata store at %q (in_memory=%v)", config.DBPath, config.InMemory)
	return &BadgerMetadataStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerMetadataStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

// ============================================================================
// Inodes
// ============================================================================

// GetInode implements metadata.InodeStore.
func (s *BadgerMetadataStore) GetInode(ctx context.Context, id uuid.UUID) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ino *metadata.Inode
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyInode(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.NewNotFoundError(id.String())
		}
		if err != nil {
			return metadata.NewIOError(id.String(), err)
		}
		return item.Value(func(val []byte) error {
			ino, err = decodeInode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return ino, nil
}

// PutInode implements metadata.InodeStore.
func (s *BadgerMetadataStore) PutInode(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeInode(ino)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyInode(ino.ID))
		if err == nil {
			return &metadata.StoreError{Code: metadata.CodeAlreadyExists, ID: ino.ID.String()}
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.NewIOError(ino.ID.String(), err)
		}
		if err := txn.Set(keyInode(ino.ID), data); err != nil {
			return metadata.NewIOError(ino.ID.String(), err)
		}
		return nil
	})
}

// MarkDirty implements metadata.InodeStore.
func (s *BadgerMetadataStore) MarkDirty(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeInode(ino)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyInode(ino.ID), data); err != nil {
			return metadata.NewIOError(ino.ID.String(), err)
		}
		return nil
	})
}

// ============================================================================
// Extended Attributes
// ============================================================================

// GetXattr implements metadata.AttributeStore.
func (s *BadgerMetadataStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyXattr(id, name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return metadata.ErrNoData
		}
		if err != nil {
			return metadata.NewIOError(id.String(), err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// SetXattr implements metadata.AttributeStore.
func (s *BadgerMetadataStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		var err error
		if value == nil {
			err = txn.Delete(keyXattr(id, name))
		} else {
			// Badger keeps a reference to value until commit.
			err = txn.Set(keyXattr(id, name), append([]byte{}, value...))
		}
		if err != nil {
			return metadata.NewIOError(id.String(), err)
		}
		return nil
	})
}

// ScanXattrs implements metadata.AttributeScanner.
//
// Keys are collected in a single read transaction first, so fn is free to
// write to the store.
func (s *BadgerMetadataStore) ScanXattrs(ctx context.Context, fn func(id uuid.UUID, names []string) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var ids []uuid.UUID
	byID := make(map[uuid.UUID][]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixXattr)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id, name, ok := parseXattrKey(it.Item().Key())
			if !ok {
				logger.Warn("Skipping malformed attribute key %q", it.Item().Key())
				continue
			}
			if _, seen := byID[id]; !seen {
				ids = append(ids, id)
			}
			byID[id] = append(byID[id], name)
		}
		return nil
	})
	if err != nil {
		return metadata.NewIOError("scan", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, byID[id]); err != nil {
			return err
		}
	}
	return nil
}
