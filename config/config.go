package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"meditrack.dev/duct/avrofile"
	"meditrack.dev/duct/logging"
	"meditrack.dev/duct/storage/endpoint"
)

// The object representing a tool run.
type Config struct {
	// FileSystem selects the endpoint, see endpoint.Parse. Empty uses the local
	// disk and "default" uses fs.defaultFS of the Hadoop environment.
	FileSystem string `json:"fileSystem"`
	// OutputPath is the directory on the endpoint that receives artifacts.
	OutputPath string `json:"outputPath"`
	// WorkDir holds local artifacts. Empty uses a temporary directory that is
	// removed after the run.
	WorkDir string `json:"workDir"`
	// Replication is the HDFS replication factor. 0 keeps the backend default.
	Replication int    `json:"replication"`
	Codec       string `json:"codec"`
	LogLevel    string `json:"logLevel"`
	MetricsFile string `json:"metricsFile"`
}

func Default() *Config {
	return &Config{
		Codec:    string(avrofile.CodecNull),
		LogLevel: "info",
	}
}

func (c *Config) Validate() error {
	var err error
	if strings.TrimSpace(c.OutputPath) == "" {
		err = errors.Join(err, errors.New("outputPath is required"))
	}
	if c.Replication < 0 {
		err = errors.Join(err, fmt.Errorf("replication must not be negative, got %d", c.Replication))
	}
	if _, codecErr := avrofile.ParseCodec(c.Codec); codecErr != nil {
		err = errors.Join(err, codecErr)
	}
	if _, levelErr := logging.ParseLevel(c.LogLevel); levelErr != nil {
		err = errors.Join(err, levelErr)
	}
	return err
}

func (c *Config) Source() endpoint.Source {
	return endpoint.Parse(c.FileSystem)
}

// AvroCodec returns the parsed codec. Call Validate first.
func (c *Config) AvroCodec() avrofile.Codec {
	codec, _ := avrofile.ParseCodec(c.Codec)
	return codec
}

// Level returns the parsed log level, or info when it is invalid.
func (c *Config) Level() slog.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
