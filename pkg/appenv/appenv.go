package appenv

import (
	"log/slog"
	"strings"
)

// Env represents the application runtime environment.
type Env string

const (
	Local      Env = "local"
	Dev        Env = "dev"
	Production Env = "production"
	Test       Env = "test"
)

// Parse maps a raw value to an Env. Unknown values behave as Production.
func Parse(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(Local):
		return Local
	case string(Dev), "development":
		return Dev
	case string(Test):
		return Test
	default:
		return Production
	}
}

func (e Env) IsProduction() bool { return e == Production }

// Relaxed environments allow permissive CORS and development secrets.
func (e Env) Relaxed() bool { return e == Local || e == Test }

// LogLevel is debug everywhere except production.
func (e Env) LogLevel() slog.Level {
	if e == Production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
