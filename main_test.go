package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ZhengyiNLP/sister-expense-tracker/config"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct{ closed bool }

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func stubStorage(t *testing.T) *closeRecorder {
	t.Helper()
	rec := &closeRecorder{}
	orig := openStorage
	openStorage = func(context.Context, *config.Config, *slog.Logger) (*repository.Repositories, error) {
		repos := repository.NewMemoryStore().Repositories()
		repos.AddCloser(rec)
		return repos, nil
	}
	t.Cleanup(func() { openStorage = orig })
	return rec
}

func testConfig() *config.Config {
	return &config.Config{
		Env:     "test",
		Auth:    config.Auth{JWTSecret: "0123456789abcdef0123456789abcdef", BcryptCost: 10},
		Storage: config.Storage{Driver: config.DriverMemory, ResetTokens: config.ResetTokensStore},
		Mail:    config.Mail{Provider: config.MailLog, SiteURL: "http://localhost:5000"},
	}
}

func TestRunClosesStorageWhenSeedingFails(t *testing.T) {
	rec := stubStorage(t)
	cfg := testConfig()
	cfg.Seed = config.Seed{Demo: true, File: filepath.Join(t.TempDir(), "missing.yaml")}

	err := run(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed demo data")
	assert.True(t, rec.closed)
}

func TestRunClosesStorageOnBadTrustedProxies(t *testing.T) {
	rec := stubStorage(t)
	cfg := testConfig()
	cfg.HTTP.TrustedProxies = []string{"not-an-address"}

	err := run(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
	assert.True(t, rec.closed)
}
