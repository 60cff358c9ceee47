package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/config"
	"github.com/ZhengyiNLP/sister-expense-tracker/handlers"
	"github.com/ZhengyiNLP/sister-expense-tracker/initializers"
	"github.com/ZhengyiNLP/sister-expense-tracker/middleware"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/authtoken"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/notify"
	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/password"
	"github.com/ZhengyiNLP/sister-expense-tracker/repository"

	"github.com/gin-gonic/gin"
)

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg := config.MustLoad()
	log := initializers.SetupLogger(cfg.AppEnv())

	if err := run(cfg, log); err != nil {
		log.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup always happens.
func run(cfg *config.Config, log *slog.Logger) error {
	env := cfg.AppEnv()
	log.Info("starting expense tracker",
		slog.String("env", string(env)),
		slog.String("addr", cfg.HTTP.Addr()),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("reset_tokens", cfg.Storage.ResetTokens),
		slog.String("mail", cfg.Mail.Provider),
	)

	ctx := context.Background()

	repos, err := openStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			log.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	hasher := password.NewHasher(cfg.Auth.BcryptCost)
	if cfg.Seed.Demo {
		if err := initializers.SeedDemoData(ctx, repos, hasher, cfg.Seed.File, log); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	tokens := authtoken.NewManager(cfg.Auth.JWTSecret, repos.ResetTokens,
		authtoken.WithSessionTTL(cfg.Auth.SessionTTL),
		authtoken.WithResetTTL(cfg.Auth.ResetTTL),
	)

	mailer, err := initializers.NewMailer(cfg.Mail, log)
	if err != nil {
		return fmt.Errorf("configure mail: %w", err)
	}
	notifier := notify.NewResetNotifier(mailer, cfg.Mail.SiteURL, cfg.Mail.ResetPath)

	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := handlers.NewRouter(handlers.Deps{
		Repos:    repos,
		Tokens:   tokens,
		Hasher:   hasher,
		Notifier: notifier,
		Logger:   log,
		CORS: middleware.CORSOptions{
			Env:              env,
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
	})

	// loopback only unless TRUSTED_PROXIES says otherwise
	proxies := cfg.HTTP.TrustedProxies
	if len(proxies) == 0 {
		proxies = []string{"127.0.0.1", "::1"}
	}
	if err := r.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.HTTP.TLSEnabled() {
			log.Info("serving HTTPS", slog.String("addr", srv.Addr))
			err = srv.ListenAndServeTLS(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile)
		} else {
			log.Info("serving HTTP", slog.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var listenErr error
	select {
	case sig := <-sigChan:
		log.Info("got signal to shutdown server", slog.String("signal", sig.String()))
	case err, ok := <-serveErr:
		if ok {
			listenErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("stopping server error", slog.Any("error", err))
	}
	log.Info("server stopped")
	return listenErr
}

var openStorage = openRepositories

// openRepositories retries while a database or object store is still coming up.
func openRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) (*repository.Repositories, error) {
	var err error
	for i := 0; i < connectAttempts; i++ {
		var repos *repository.Repositories
		repos, err = initializers.OpenRepositories(ctx, cfg, log)
		if err == nil {
			return repos, nil
		}
		if cfg.Storage.Driver == config.DriverMemory || cfg.Storage.Driver == config.DriverFile {
			return nil, err
		}
		log.Warn("storage connection failed, retrying",
			slog.Int("attempt", i+1),
			slog.Duration("backoff", connectBackoff),
			slog.Any("error", err),
		)
		time.Sleep(connectBackoff)
	}
	return nil, err
}
