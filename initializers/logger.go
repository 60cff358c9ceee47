package initializers

import (
	"io"
	"log/slog"
	"os"

	"github.com/ZhengyiNLP/sister-expense-tracker/pkg/appenv"
)

// SetupLogger returns a text logger for local runs and JSON everywhere else,
// and installs it as the slog default.
func SetupLogger(env appenv.Env) *slog.Logger {
	return setupLogger(env, os.Stdout)
}

func setupLogger(env appenv.Env, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: env.LogLevel()}

	var log *slog.Logger
	switch env {
	case appenv.Local:
		log = slog.New(slog.NewTextHandler(w, opts))
	default:
		log = slog.New(slog.NewJSONHandler(w, opts))
	}
	slog.SetDefault(log)
	return log
}
