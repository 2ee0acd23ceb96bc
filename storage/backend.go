package storage

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one entry of a backend.
type FileInfo struct {
	// Name is the base name of the entry.
	Name    string
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// Backend is the set of primitives a file system must provide to sit behind
// the FileSystem facade. Paths are slash separated and relative to the
// backend's endpoint. Missing paths are reported with errors matching
// fs.ErrNotExist and access failures with errors matching fs.ErrPermission.
type Backend interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Create truncates or creates the file. The parent directory must exist.
	Create(ctx context.Context, path string) (io.WriteCloser, error)
	// Append opens an existing file for appending.
	Append(ctx context.Context, path string) (io.WriteCloser, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)
	MkdirAll(ctx context.Context, path string) error
	Remove(ctx context.Context, path string, recursive bool) error
	Rename(ctx context.Context, src, dst string) error
	Close() error
}

// ReplicatedCreator is implemented by backends that can create a file with an
// explicit replication factor.
type ReplicatedCreator interface {
	CreateReplicated(ctx context.Context, path string, replication int) (io.WriteCloser, error)
}

// LocalTransfer is implemented by backends with a native way to move files
// between the local disk and themselves.
type LocalTransfer interface {
	CopyFromLocal(ctx context.Context, localPath, dst string) error
	CopyToLocal(ctx context.Context, src, localPath string) error
}

// Aborter is implemented by writers whose Close commits the file, such as
// buffered object store uploads. Abort releases the writer and leaves any
// previous file in place.
type Aborter interface {
	Abort() error
}
