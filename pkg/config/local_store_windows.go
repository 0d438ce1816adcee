//go:build windows

package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoacl/pkg/metadata"
)

func createLocalStore(context.Context, map[string]any) (metadata.Store, error) {
	return nil, fmt.Errorf("local store: extended attributes are not available on windows: %w", metadata.ErrNotSupported)
}
