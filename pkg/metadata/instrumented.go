package metadata

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OperationRecorder receives the outcome of every store call made through
// an instrumented store. metrics.StoreMetrics satisfies it.
type OperationRecorder interface {
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// Instrument wraps s so that each call is reported to rec. A nil recorder
// returns s unchanged.
func Instrument(s Store, rec OperationRecorder) Store {
	if rec == nil {
		return s
	}
	return &instrumentedStore{Store: s, rec: rec}
}

type instrumentedStore struct {
	Store
	rec OperationRecorder
}

func (s *instrumentedStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	start := time.Now()
	value, err := s.Store.GetXattr(ctx, id, name)
	// an absent attribute is an answer, not a failure
	recorded := err
	if errors.Is(recorded, ErrNoData) {
		recorded = nil
	}
	s.rec.RecordStorageOperation("get_xattr", time.Since(start), recorded)
	return value, err
}

func (s *instrumentedStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	start := time.Now()
	err := s.Store.SetXattr(ctx, id, name, value)
	op := "set_xattr"
	if value == nil {
		op = "remove_xattr"
	}
	s.rec.RecordStorageOperation(op, time.Since(start), err)
	return err
}

func (s *instrumentedStore) GetInode(ctx context.Context, id uuid.UUID) (*Inode, error) {
	start := time.Now()
	ino, err := s.Store.GetInode(ctx, id)
	s.rec.RecordStorageOperation("get_inode", time.Since(start), err)
	return ino, err
}

func (s *instrumentedStore) PutInode(ctx context.Context, ino *Inode) error {
	start := time.Now()
	err := s.Store.PutInode(ctx, ino)
	s.rec.RecordStorageOperation("put_inode", time.Since(start), err)
	return err
}

func (s *instrumentedStore) MarkDirty(ctx context.Context, ino *Inode) error {
	start := time.Now()
	err := s.Store.MarkDirty(ctx, ino)
	s.rec.RecordStorageOperation("mark_dirty", time.Since(start), err)
	return err
}

func (s *instrumentedStore) ScanXattrs(ctx context.Context, fn func(id uuid.UUID, names []string) error) error {
	scanner, ok := s.Store.(AttributeScanner)
	if !ok {
		return ErrNotSupported
	}
	start := time.Now()
	err := scanner.ScanXattrs(ctx, fn)
	s.rec.RecordStorageOperation("scan_xattrs", time.Since(start), err)
	return err
}
