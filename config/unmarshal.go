package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"meditrack.dev/duct/config/jsontemplate"
	"meditrack.dev/duct/util/fileu"
)

// Params supply values for {"$param": "NAME"} references in config files.
type Params = jsontemplate.Params

func NewParams() *Params {
	return jsontemplate.NewParams()
}

// Unmarshal parses a JSON config document on top of the defaults after
// resolving param references. Unknown fields are rejected.
func Unmarshal(data []byte, params *Params) (*Config, error) {
	resolved, err := jsontemplate.Resolve(data, &Config{}, params)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve variables: %v", err)
	}

	config := Default()
	dec := json.NewDecoder(bytes.NewReader(resolved))
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return nil, fmt.Errorf("invalid config document format: %v", err)
	}

	slog.Debug("resolved config", "config", fmt.Sprintf("%+v", *config))
	return config, nil
}

// Load reads a config document from a local path or a file system URL.
func Load(ctx context.Context, uri string, params *Params) (*Config, error) {
	data, err := fileu.ReadFile(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", uri, err)
	}
	return Unmarshal(data, params)
}
