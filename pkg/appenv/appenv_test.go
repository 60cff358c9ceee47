package appenv

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, Local, Parse("local"))
	assert.Equal(t, Dev, Parse(" Development "))
	assert.Equal(t, Test, Parse("TEST"))
	assert.Equal(t, Production, Parse("production"))
	assert.Equal(t, Production, Parse(""))
	assert.Equal(t, Production, Parse("staging"))
}

func TestIsProduction(t *testing.T) {
	assert.True(t, Parse("").IsProduction())
	assert.False(t, Parse("test").IsProduction())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Production.LogLevel())
	assert.Equal(t, slog.LevelDebug, Local.LogLevel())
	assert.True(t, Test.Relaxed())
	assert.False(t, Dev.Relaxed())
}
