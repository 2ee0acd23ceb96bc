package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/segmentio/ksuid"
)

// IsReadable reports whether the file at p can be opened for reading. The
// answer is best effort: permissions may change before the next operation.
func (f *FileSystem) IsReadable(ctx context.Context, p string) (bool, error) {
	info, err := f.Status(ctx, p)
	if err != nil {
		return false, err
	}
	if info.IsDir {
		return false, fmt.Errorf("path %s is not a file", p)
	}

	r, err := f.backend.Open(ctx, p)
	if errors.Is(err, fs.ErrPermission) {
		return false, nil
	}
	if err != nil {
		return false, f.fail("open", p, err)
	}
	r.Close()
	return true, nil
}

// IsWritable reports whether files can be created in dir by creating and
// removing a uniquely named marker file. The answer is best effort.
func (f *FileSystem) IsWritable(ctx context.Context, dir string) (bool, error) {
	info, err := f.Status(ctx, dir)
	if err != nil {
		return false, err
	}
	if !info.IsDir {
		return false, fmt.Errorf("path %s is not a directory", dir)
	}

	marker := path.Join(dir, ".try"+ksuid.New().String())
	w, err := f.backend.Create(ctx, marker)
	if errors.Is(err, fs.ErrPermission) {
		return false, nil
	}
	if err != nil {
		return false, f.fail("create", marker, err)
	}
	closeErr := w.Close()

	if err := f.Delete(ctx, marker, false); err != nil {
		f.log.Warn("failed removing write probe", "path", marker, "err", err)
	}

	if errors.Is(closeErr, fs.ErrPermission) {
		return false, nil
	}
	if closeErr != nil {
		return false, f.fail("close", marker, closeErr)
	}
	return true, nil
}
