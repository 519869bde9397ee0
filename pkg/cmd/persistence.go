// Package cmd provides shared initialization for the command-line binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowzap/flowzap/pkg/persistence"
	"github.com/flowzap/flowzap/pkg/persistence/file"
	"github.com/flowzap/flowzap/pkg/persistence/postgres"
	"github.com/flowzap/flowzap/pkg/persistence/redis"
)

// NewPersistence selects the storage backend from the URL scheme:
// postgres://, redis://, file:// or a bare filesystem path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		return redis.NewPersistence(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "file://"):
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	case strings.Contains(databaseURL, "://"):
		return nil, fmt.Errorf("unsupported database url scheme: %s", databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}
