package config_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	cfg "meditrack.dev/duct/config"
)

func TestValidate(t *testing.T) {
	valid := cfg.Default()
	valid.OutputPath = "/tmp/out"
	assert.NoError(t, valid.Validate())

	invalid := &cfg.Config{
		Replication: -1,
		Codec:       "zip",
		LogLevel:    "loud",
	}
	err := invalid.Validate()
	assert.ErrorContains(t, err, "outputPath is required")
	assert.ErrorContains(t, err, "replication must not be negative")
	assert.ErrorContains(t, err, "unknown avro codec")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestLevel(t *testing.T) {
	c := cfg.Default()
	c.LogLevel = "debug"
	assert.Equal(t, slog.LevelDebug, c.Level())

	c.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, c.Level())
}
