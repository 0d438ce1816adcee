package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittoacl/internal/logger"
	"github.com/marmos91/dittoacl/internal/ratelimiter"
	"github.com/marmos91/dittoacl/pkg/acl/cache"
	"github.com/marmos91/dittoacl/pkg/identity"
	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metadata/badger"
	"github.com/marmos91/dittoacl/pkg/metadata/memory"
	metadataS3 "github.com/marmos91/dittoacl/pkg/metadata/s3"
	"github.com/marmos91/dittoacl/pkg/metrics"
	"github.com/mitchellh/mapstructure"
)

// CreateStore creates a metadata store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor. The result is wrapped with
// storage metrics when metrics are enabled.
//
// Supported types:
//   - "memory": pkg/metadata/memory (volatile, for tests and scratch mounts)
//   - "badger": pkg/metadata/badger (embedded key-value database)
//   - "s3": pkg/metadata/s3 (Amazon S3 or compatible storage)
//   - "local": pkg/metadata/local (extended attributes of host files)
func CreateStore(ctx context.Context, cfg *StoreConfig) (metadata.Store, error) {
	var (
		store metadata.Store
		err   error
	)

	switch cfg.Type {
	case "memory":
		store = memory.NewMemoryMetadataStore()
	case "badger":
		store, err = createBadgerStore(ctx, cfg.Badger)
	case "s3":
		store, err = createS3Store(ctx, cfg.S3)
	case "local":
		store, err = createLocalStore(ctx, cfg.Local)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Created %s metadata store", cfg.Type)
	return metadata.Instrument(store, metrics.NewStoreMetrics(cfg.Type)), nil
}

// createBadgerStore creates a BadgerDB metadata store.
func createBadgerStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg badger.BadgerMetadataStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}
	if err := validate.Struct(storeCfg); err != nil {
		return nil, fmt.Errorf("badger store: %w", formatValidationError(err))
	}

	store, err := badger.NewBadgerMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return store, nil
}

// s3StoreConfig is the YAML shape of the s3 store section.
type s3StoreConfig struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	MaxRetries      int    `mapstructure:"max_retries"`

	// RequestsPerSecond caps the request rate to the bucket; 0 is unlimited
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int     `mapstructure:"burst" validate:"gte=0"`
}

// createS3Store creates an S3-backed metadata store.
func createS3Store(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg s3StoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 store config: %w", err)
	}
	if err := validate.Struct(storeCfg); err != nil {
		return nil, fmt.Errorf("invalid S3 store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := metadataS3.NewS3MetadataStore(ctx, metadataS3.S3MetadataStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Limiter:   ratelimiter.New(storeCfg.RequestsPerSecond, storeCfg.Burst),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 store: %w", err)
	}

	logger.Info("S3 metadata store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return store, nil
}

// newS3Client builds an S3 client from the store section.
func newS3Client(ctx context.Context, storeCfg s3StoreConfig) (*s3.Client, error) {
	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Static credentials if provided, otherwise the default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storeCfg.AccessKeyID, storeCfg.SecretAccessKey, ""),
		))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storeCfg.Endpoint != "" {
			// MinIO, Localstack and friends
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// CreateMapper builds the identity mapper. An empty map stands for the
// identity mapping of that id space.
func CreateMapper(cfg *IdentityConfig) (identity.Mapper, error) {
	if len(cfg.UIDMap) == 0 && len(cfg.GIDMap) == 0 {
		return identity.InitNamespace(), nil
	}

	full := []identity.Range{{Inside: 0, Outside: 0, Count: 0xFFFFFFFF}}
	uids, gids := cfg.UIDMap, cfg.GIDMap
	if len(uids) == 0 {
		uids = full
	}
	if len(gids) == 0 {
		gids = full
	}

	ns, err := identity.NewNamespace(uids, gids)
	if err != nil {
		return nil, fmt.Errorf("invalid identity map: %w", err)
	}
	return ns, nil
}

// CreateCache builds the ACL cache, or returns nil when caching is disabled.
func CreateCache(cfg *CacheConfig) *cache.Cache {
	if !cfg.Enabled {
		return nil
	}
	return cache.New(cfg.MaxEntries)
}
