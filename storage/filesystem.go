// Package storage provides FileSystem, one path based API over the local disk,
// HDFS and S3.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"

	"meditrack.dev/duct/storage/endpoint"
	"meditrack.dev/duct/telemetry"
)

// ListKind selects which entries List returns.
type ListKind int

const (
	ListAll ListKind = iota
	ListFiles
	ListDirectories
)

func (k ListKind) accepts(info FileInfo) bool {
	switch k {
	case ListFiles:
		return !info.IsDir
	case ListDirectories:
		return info.IsDir
	default:
		return true
	}
}

// FileSystem runs uniform file operations against the Backend of one Endpoint.
// Operations are synchronous and are never retried.
type FileSystem struct {
	endpoint endpoint.Endpoint
	backend  Backend
	log      *slog.Logger
}

type Option func(*FileSystem)

func WithLogger(logger *slog.Logger) Option {
	return func(f *FileSystem) {
		f.log = logger
	}
}

// New wraps a connected backend. The FileSystem owns the backend and closes it
// in Close.
func New(ep endpoint.Endpoint, backend Backend, opts ...Option) *FileSystem {
	f := &FileSystem{
		endpoint: ep,
		backend:  backend,
		log:      slog.With("scope", "storage"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("endpoint", ep.String())
	return f
}

func (f *FileSystem) Endpoint() endpoint.Endpoint {
	return f.endpoint
}

func (f *FileSystem) Close() error {
	return f.backend.Close()
}

func (f *FileSystem) scheme() string {
	return string(f.endpoint.Scheme)
}

// fail counts a failed operation and wraps its error.
func (f *FileSystem) fail(op, p string, err error) error {
	telemetry.StorageError(f.scheme(), op)
	return wrapErr(op, p, err)
}

// OpenWrite opens path for writing, creating missing parent directories. The
// file is truncated unless appendMode is set, in which case an existing file
// is appended to and a missing one is created.
func (f *FileSystem) OpenWrite(ctx context.Context, p string, appendMode bool) (io.WriteCloser, error) {
	telemetry.StorageOp(f.scheme(), "open_write")

	if appendMode {
		exists, err := f.Exists(ctx, p)
		if err != nil {
			return nil, err
		}
		if exists {
			w, err := f.backend.Append(ctx, p)
			if err != nil {
				return nil, f.fail("append", p, err)
			}
			return telemetry.CountWrites(w, f.scheme()), nil
		}
	}

	if err := f.backend.MkdirAll(ctx, path.Dir(p)); err != nil {
		return nil, f.fail("mkdirs", path.Dir(p), err)
	}
	w, err := f.backend.Create(ctx, p)
	if err != nil {
		return nil, f.fail("create", p, err)
	}
	return telemetry.CountWrites(w, f.scheme()), nil
}

// OpenRead opens path for reading. Missing paths return ErrNotFound.
func (f *FileSystem) OpenRead(ctx context.Context, p string) (io.ReadCloser, error) {
	telemetry.StorageOp(f.scheme(), "open_read")
	r, err := f.backend.Open(ctx, p)
	if err != nil {
		return nil, f.fail("open", p, err)
	}
	return telemetry.CountReads(r, f.scheme()), nil
}

// WriteFile copies r into path and returns the number of bytes written.
func (f *FileSystem) WriteFile(ctx context.Context, p string, r io.Reader, appendMode bool) (int64, error) {
	w, err := f.OpenWrite(ctx, p, appendMode)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, r)
	if err != nil {
		abort(w)
		return n, f.fail("write", p, err)
	}
	if err := w.Close(); err != nil {
		return n, f.fail("close", p, err)
	}
	return n, nil
}

func (f *FileSystem) ReadFile(ctx context.Context, p string) ([]byte, error) {
	r, err := f.OpenRead(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, f.fail("read", p, err)
	}
	return data, nil
}

// ReadLines returns the lines of a UTF-8 text file without line terminators.
func (f *FileSystem) ReadLines(ctx context.Context, p string) ([]string, error) {
	r, err := f.OpenRead(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, f.fail("read", p, err)
	}
	return lines, nil
}

// CreateFile creates an empty file, truncating any existing one.
func (f *FileSystem) CreateFile(ctx context.Context, p string) error {
	w, err := f.OpenWrite(ctx, p, false)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return f.fail("close", p, err)
	}
	return nil
}

// List returns the sorted base names of the entries in dir whose whole name
// matches the regular expression pattern. A missing directory yields an empty
// list.
func (f *FileSystem) List(ctx context.Context, dir, pattern string, kind ListKind) ([]string, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("list %s: pattern %q: %w: %w", dir, pattern, ErrConfiguration, err)
	}

	infos, err := f.ListStatus(ctx, dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if kind.accepts(info) && re.MatchString(info.Name) {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

func (f *FileSystem) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.List(ctx, dir, pattern, ListFiles)
}

func (f *FileSystem) ListDirectories(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.List(ctx, dir, pattern, ListDirectories)
}

func (f *FileSystem) ListAll(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.List(ctx, dir, pattern, ListAll)
}

// ListStatus returns the entries of dir sorted by name. A missing directory
// yields an empty list.
func (f *FileSystem) ListStatus(ctx context.Context, dir string) ([]FileInfo, error) {
	telemetry.StorageOp(f.scheme(), "list")
	infos, err := f.backend.ReadDir(ctx, dir)
	if isNotExist(err) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, f.fail("list", dir, err)
	}
	slices.SortFunc(infos, func(a, b FileInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return infos, nil
}

// Status describes path. Missing paths return ErrNotFound.
func (f *FileSystem) Status(ctx context.Context, p string) (FileInfo, error) {
	telemetry.StorageOp(f.scheme(), "stat")
	info, err := f.backend.Stat(ctx, p)
	if err != nil {
		return FileInfo{}, f.fail("stat", p, err)
	}
	return info, nil
}

func (f *FileSystem) Exists(ctx context.Context, p string) (bool, error) {
	telemetry.StorageOp(f.scheme(), "stat")
	_, err := f.backend.Stat(ctx, p)
	if isNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, f.fail("stat", p, err)
	}
	return true, nil
}

func (f *FileSystem) IsFile(ctx context.Context, p string) (bool, error) {
	telemetry.StorageOp(f.scheme(), "stat")
	info, err := f.backend.Stat(ctx, p)
	if isNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, f.fail("stat", p, err)
	}
	return !info.IsDir, nil
}

func (f *FileSystem) Mkdirs(ctx context.Context, p string) error {
	telemetry.StorageOp(f.scheme(), "mkdirs")
	if err := f.backend.MkdirAll(ctx, p); err != nil {
		return f.fail("mkdirs", p, err)
	}
	return nil
}

// Delete removes path. Non-empty directories need recursive. Deleting a
// missing path is not an error.
func (f *FileSystem) Delete(ctx context.Context, p string, recursive bool) error {
	telemetry.StorageOp(f.scheme(), "delete")
	err := f.backend.Remove(ctx, p, recursive)
	if err != nil && !isNotExist(err) {
		return f.fail("delete", p, err)
	}
	return nil
}

func (f *FileSystem) Rename(ctx context.Context, src, dst string) error {
	telemetry.StorageOp(f.scheme(), "rename")
	if err := f.backend.Rename(ctx, src, dst); err != nil {
		return f.fail("rename", src, err)
	}
	return nil
}

// CopyFile copies a single file within the file system, replacing dst.
func (f *FileSystem) CopyFile(ctx context.Context, src, dst string) error {
	r, err := f.OpenRead(ctx, src)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = f.WriteFile(ctx, dst, r, false)
	return err
}

// abort releases w after a failed copy without committing it when the writer
// supports that.
func abort(w io.WriteCloser) {
	if a, ok := w.(Aborter); ok {
		a.Abort()
		return
	}
	w.Close()
}
