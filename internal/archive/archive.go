// Package archive writes trial archive bundles to a local directory or an
// S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"minimizer/internal/platform/config"
)

// Store writes immutable archive objects. Writing an existing key fails.
type Store interface {
	Put(ctx context.Context, key string, body []byte) error
}

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch cfg.Driver {
	case config.ArchiveFS, "":
		return NewFS(cfg.Dir)
	case config.ArchiveS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// sanitizeKey rejects keys that could escape the archive root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}
