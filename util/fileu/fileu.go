// Package fileu provides utilities for file operations.
package fileu

import (
	"context"
	"fmt"

	"meditrack.dev/duct/storage/backends"
	"meditrack.dev/duct/storage/endpoint"
)

// ReadFile reads the contents of the file specified by uri. It supports local
// file paths as well as hdfs:// and s3:// URLs like s3://bucket/path/object.json.
func ReadFile(ctx context.Context, uri string) ([]byte, error) {
	return ReadFileWith(ctx, backends.Dial, uri)
}

// ReadFileWith is ReadFile with a custom dialer for remote URLs.
func ReadFileWith(ctx context.Context, dial backends.Dialer, uri string) ([]byte, error) {
	src, p := endpoint.SplitURI(uri)
	ep, err := endpoint.Resolve(src)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", uri, err)
	}

	fsys, err := backends.OpenWith(ctx, dial, ep)
	if err != nil {
		return nil, err
	}
	defer fsys.Close()

	return fsys.ReadFile(ctx, p)
}
