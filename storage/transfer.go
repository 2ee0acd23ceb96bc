package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"meditrack.dev/duct/telemetry"
)

type transferOptions struct {
	replication int
}

type TransferOption func(*transferOptions)

// WithReplication requests a replication factor for uploaded files. Backends
// without replication ignore it. Zero keeps the backend default.
func WithReplication(n int) TransferOption {
	return func(o *transferOptions) {
		o.replication = n
	}
}

// Upload copies the local file at localPath to dst, replacing it and creating
// missing parent directories. A missing local file returns ErrNotFound.
func (f *FileSystem) Upload(ctx context.Context, localPath, dst string, opts ...TransferOption) error {
	telemetry.StorageOp(f.scheme(), "upload")
	var o transferOptions
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return f.fail("upload", localPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("upload %s: not a regular file", localPath)
	}

	if err := f.backend.MkdirAll(ctx, path.Dir(dst)); err != nil {
		return f.fail("mkdirs", path.Dir(dst), err)
	}

	var w io.WriteCloser
	rc, replicated := f.backend.(ReplicatedCreator)
	switch {
	case o.replication > 0 && replicated:
		w, err = rc.CreateReplicated(ctx, dst, o.replication)
	default:
		if o.replication > 0 {
			f.log.Debug("backend has no replication, ignoring", "replication", o.replication)
		}
		if lt, ok := f.backend.(LocalTransfer); ok {
			if err := lt.CopyFromLocal(ctx, localPath, dst); err != nil {
				return f.fail("upload", dst, err)
			}
			f.log.Debug("uploaded file", "src", localPath, "dst", dst, "bytes", info.Size())
			return nil
		}
		w, err = f.backend.Create(ctx, dst)
	}
	if err != nil {
		return f.fail("create", dst, err)
	}
	w = telemetry.CountWrites(w, f.scheme())

	src, err := os.Open(localPath)
	if err != nil {
		abort(w)
		return f.fail("open", localPath, err)
	}
	defer src.Close()

	n, err := io.Copy(w, src)
	if err != nil {
		abort(w)
		return f.fail("upload", dst, err)
	}
	if err := w.Close(); err != nil {
		return f.fail("close", dst, err)
	}
	f.log.Debug("uploaded file", "src", localPath, "dst", dst, "bytes", n)
	return nil
}

// Download copies src to the local file at localPath, replacing it and
// creating missing parent directories.
func (f *FileSystem) Download(ctx context.Context, src, localPath string) error {
	telemetry.StorageOp(f.scheme(), "download")
	if err := os.MkdirAll(filepath.Dir(localPath), 0o777); err != nil {
		return fmt.Errorf("download %s: %w", src, err)
	}

	if lt, ok := f.backend.(LocalTransfer); ok {
		if err := lt.CopyToLocal(ctx, src, localPath); err != nil {
			return f.fail("download", src, err)
		}
		return nil
	}

	r, err := f.OpenRead(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return f.fail("create", localPath, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		return f.fail("download", src, err)
	}
	if err := dst.Close(); err != nil {
		return f.fail("close", localPath, err)
	}
	return nil
}
