package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/internal/ratelimiter"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Client is the subset of *s3.Client used by the store.
type Client interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3MetadataStore implements metadata.Store on Amazon S3 or S3-compatible
// object storage.
//
// Key Design:
//   - Inodes:     <prefix>inodes/<uuid>.json   (JSON)
//   - Attributes: <prefix>xattrs/<uuid>/<name> (raw bytes, name path-escaped)
//
// Every read hits S3; put ACLs behind pkg/acl/cache to keep the hot path
// off the network.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same key are
// last-write-wins, and PutInode's existence check is not atomic.
type S3MetadataStore struct {
	client    Client
	bucket    string
	keyPrefix string
	limiter   *ratelimiter.Limiter
}

// S3MetadataStoreConfig contains configuration for the S3 metadata store.
type S3MetadataStoreConfig struct {
	// Client is the configured S3 client
	Client Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittoacl/" results in keys like "dittoacl/inodes/<uuid>.json"
	KeyPrefix string

	// Limiter throttles requests to the bucket; nil means unlimited
	Limiter *ratelimiter.Limiter
}

// NewS3MetadataStore creates a new S3-backed store and verifies bucket
// access. The bucket must already exist.
func NewS3MetadataStore(ctx context.Context, cfg S3MetadataStoreConfig) (*S3MetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	logger.Debug("Opened S3 metadata store in bucket %q (prefix %q)", cfg.Bucket, cfg.KeyPrefix)
	if cfg.Limiter != nil {
		logger.Info("Throttling S3 requests to %g/s (burst %d)", cfg.Limiter.Limit(), cfg.Limiter.Burst())
	}
	return &S3MetadataStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		limiter:   cfg.Limiter,
	}, nil
}

func (s *S3MetadataStore) inodeKey(id uuid.UUID) string {
	return s.keyPrefix + "inodes/" + id.String() + ".json"
}

func (s *S3MetadataStore) xattrKey(id uuid.UUID, name string) string {
	return s.keyPrefix + "xattrs/" + id.String() + "/" + url.PathEscape(name)
}

// isNotFound reports whether err is S3's "no such object" for either a GET
// (NoSuchKey) or a HEAD (NotFound).
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

func (s *S3MetadataStore) get(ctx context.Context, key string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3MetadataStore) put(ctx context.Context, key string, data []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// ============================================================================
// Inodes
// ============================================================================

// GetInode implements metadata.InodeStore.
func (s *S3MetadataStore) GetInode(ctx context.Context, id uuid.UUID) (*metadata.Inode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.get(ctx, s.inodeKey(id))
	if isNotFound(err) {
		return nil, metadata.NewNotFoundError(id.String())
	}
	if err != nil {
		return nil, metadata.NewIOError(id.String(), err)
	}

	var ino metadata.Inode
	if err := json.Unmarshal(data, &ino); err != nil {
		return nil, metadata.NewIOError(id.String(), fmt.Errorf("failed to decode inode: %w", err))
	}
	return &ino, nil
}

// PutInode implements metadata.InodeStore.
func (s *S3MetadataStore) PutInode(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.inodeKey(ino.ID)),
	})
	if err == nil {
		return &metadata.StoreError{Code: metadata.CodeAlreadyExists, ID: ino.ID.String()}
	}
	if !isNotFound(err) {
		return metadata.NewIOError(ino.ID.String(), err)
	}

	return s.MarkDirty(ctx, ino)
}

// MarkDirty implements metadata.InodeStore.
func (s *S3MetadataStore) MarkDirty(ctx context.Context, ino *metadata.Inode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ino)
	if err != nil {
		return fmt.Errorf("failed to encode inode: %w", err)
	}
	if err := s.put(ctx, s.inodeKey(ino.ID), data); err != nil {
		return metadata.NewIOError(ino.ID.String(), err)
	}
	return nil
}

// ============================================================================
// Extended Attributes
// ============================================================================

// GetXattr implements metadata.AttributeStore.
func (s *S3MetadataStore) GetXattr(ctx context.Context, id uuid.UUID, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.get(ctx, s.xattrKey(id, name))
	if isNotFound(err) {
		return nil, metadata.ErrNoData
	}
	if err != nil {
		return nil, metadata.NewIOError(id.String(), err)
	}
	return data, nil
}

// SetXattr implements metadata.AttributeStore. S3 deletes are idempotent, so
// removing a missing attribute succeeds without a lookup.
func (s *S3MetadataStore) SetXattr(ctx context.Context, id uuid.UUID, name string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := s.xattrKey(id, name)
	if value == nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil && !isNotFound(err) {
			return metadata.NewIOError(id.String(), err)
		}
		return nil
	}

	if err := s.put(ctx, key, value); err != nil {
		return metadata.NewIOError(id.String(), err)
	}
	return nil
}

// Close implements metadata.Store. The S3 client holds no resources that
// need releasing.
func (s *S3MetadataStore) Close() error {
	return nil
}
