package initializers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ZhengyiNLP/sister-expense-tracker/config"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"
)

// OpenRepositories builds the repositories for the configured storage
// driver. Callers must Close the result.
func OpenRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repository.Repositories, error) {
	const op = "initializers.OpenRepositories"

	var repos *repository.Repositories
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		repos = repository.NewMemoryStore().Repositories()
	case config.DriverFile:
		blobs, err := repository.NewFileBlobStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		store, err := repository.OpenSnapshotStore(ctx, blobs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		repos = store.Repositories()
	case config.DriverMinio:
		client, err := NewMinioClient(ctx, cfg.Minio, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		blobs := repository.NewMinioBlobStore(client, cfg.Minio.Bucket, cfg.Minio.Prefix)
		store, err := repository.OpenSnapshotStore(ctx, blobs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		repos = store.Repositories()
	case config.DriverPostgres, config.DriverSQLite:
		store, err := repository.OpenSQLStore(ctx, repository.Dialect(cfg.Storage.Driver), cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		repos = store.Repositories()
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Storage.Driver)
	}

	if cfg.Storage.ResetTokens == config.ResetTokensRedis {
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			repos.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		repos.ResetTokens = repository.NewRedisResetTokenRepository(client, cfg.Redis.KeyPrefix)
		repos.AddCloser(client)
	}

	log.Info("storage ready",
		slog.String("driver", cfg.Storage.Driver),
		slog.String("reset_tokens", cfg.Storage.ResetTokens),
	)
	return repos, nil
}
