// Package backends connects an endpoint.Endpoint to the storage.Backend that
// serves it.
package backends

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/endpoint"
	"meditrack.dev/duct/storage/hdfsfs"
	"meditrack.dev/duct/storage/localfs"
	"meditrack.dev/duct/storage/s3fs"
	"meditrack.dev/duct/telemetry"
)

// Dialer connects to the backend of an endpoint.
type Dialer func(ctx context.Context, ep endpoint.Endpoint) (storage.Backend, error)

// Dial connects to the backend selected by the endpoint's scheme.
func Dial(ctx context.Context, ep endpoint.Endpoint) (storage.Backend, error) {
	switch ep.Scheme {
	case endpoint.SchemeFile:
		return localfs.NewDirectory(ep.Root), nil
	case endpoint.SchemeHDFS:
		client, err := hdfsfs.Dial(ep)
		if err != nil {
			return nil, err
		}
		return client, nil
	case endpoint.SchemeS3:
		client, err := newS3Client(ctx, ep)
		if err != nil {
			return nil, err
		}
		return s3fs.New(client, ep.Bucket, ep.Prefix), nil
	default:
		return nil, fmt.Errorf("%w: no backend for scheme %q", storage.ErrConfiguration, ep.Scheme)
	}
}

// Open dials the endpoint's backend and wraps it in a FileSystem.
func Open(ctx context.Context, ep endpoint.Endpoint, opts ...storage.Option) (*storage.FileSystem, error) {
	return OpenWith(ctx, Dial, ep, opts...)
}

// OpenWith is Open with a custom Dialer.
func OpenWith(ctx context.Context, dial Dialer, ep endpoint.Endpoint, opts ...storage.Option) (*storage.FileSystem, error) {
	backend, err := dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ep, err)
	}
	return storage.New(ep, backend, opts...), nil
}

// newS3Client loads the default AWS configuration. An explicit endpoint URL
// and path style addressing allow S3 compatible services such as MinIO.
func newS3Client(ctx context.Context, ep endpoint.Endpoint) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(&http.Client{
			Transport: telemetry.NewMetricsTransport("s3", nil),
		}),
	}
	if ep.S3Region != "" {
		opts = append(opts, config.WithRegion(ep.S3Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load AWS configuration: %w", storage.ErrConfiguration, err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(ep.S3Endpoint)
		}
		o.UsePathStyle = ep.S3PathStyle
	}), nil
}
