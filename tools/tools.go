// Package tools holds the commands that duct can run.
package tools

import (
	"context"

	"meditrack.dev/duct/config"
)

// Tool is a command run against a resolved configuration.
type Tool interface {
	Run(ctx context.Context, cfg *config.Config) error
}

// Description is the one line usage of a registered tool.
type Description struct {
	Usage string
	Tool  Tool
}

// Registry maps command names to tools.
var Registry = map[string]Description{
	"duct": {
		Usage: "Write sample patients to an Avro file and upload it to <outputPath>",
		Tool:  NewPipeline(),
	},
}
