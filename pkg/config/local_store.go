//go:build !windows

package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoacl/pkg/metadata"
	"github.com/marmos91/dittoacl/pkg/metadata/local"
	"github.com/mitchellh/mapstructure"
)

// createLocalStore creates a store keeping attributes in host xattrs.
func createLocalStore(ctx context.Context, options map[string]any) (metadata.Store, error) {
	var storeCfg local.LocalMetadataStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode local store config: %w", err)
	}
	if storeCfg.Root == "" {
		return nil, fmt.Errorf("local store: root is required")
	}

	store, err := local.NewLocalMetadataStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create local store: %w", err)
	}
	return store, nil
}
