package storage

import (
	"context"
	"fmt"
	"path"

	"meditrack.dev/duct/telemetry"
)

type transferFunc func(ctx context.Context, src, dst string) error

// Copy copies the contents of srcDir into dstDir recursively. Destination
// directories are created as they are needed. A file sitting where a
// directory is required fails with ErrDestinationIsFile. A missing srcDir
// copies nothing.
func (f *FileSystem) Copy(ctx context.Context, srcDir, dstDir string) error {
	telemetry.StorageOp(f.scheme(), "copy")
	return f.transferTree(ctx, srcDir, dstDir, f.CopyFile)
}

// Move moves the contents of srcDir into dstDir recursively, replacing files
// that already exist at the destination, then deletes srcDir.
func (f *FileSystem) Move(ctx context.Context, srcDir, dstDir string) error {
	telemetry.StorageOp(f.scheme(), "move")
	if err := f.transferTree(ctx, srcDir, dstDir, f.moveFile); err != nil {
		return err
	}
	return f.Delete(ctx, srcDir, true)
}

func (f *FileSystem) transferTree(ctx context.Context, srcDir, dstDir string, transfer transferFunc) error {
	entries, err := f.backend.ReadDir(ctx, srcDir)
	if isNotExist(err) {
		return nil
	}
	if err != nil {
		return f.fail("list", srcDir, err)
	}

	for _, entry := range entries {
		src := path.Join(srcDir, entry.Name)
		dst := path.Join(dstDir, entry.Name)

		if entry.IsDir {
			if err := f.ensureDir(ctx, dst); err != nil {
				return err
			}
			if err := f.transferTree(ctx, src, dst, transfer); err != nil {
				return err
			}
			continue
		}

		if err := f.ensureDir(ctx, dstDir); err != nil {
			return fmt.Errorf("transferring %s to %s: %w", src, dst, err)
		}
		if err := transfer(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}

// ensureDir creates dir unless it already exists as a directory.
func (f *FileSystem) ensureDir(ctx context.Context, dir string) error {
	info, err := f.backend.Stat(ctx, dir)
	if err == nil {
		if !info.IsDir {
			return fmt.Errorf("%s: %w", dir, ErrDestinationIsFile)
		}
		return nil
	}
	if !isNotExist(err) {
		return f.fail("stat", dir, err)
	}
	if err := f.backend.MkdirAll(ctx, dir); err != nil {
		return f.fail("mkdirs", dir, err)
	}
	return nil
}

func (f *FileSystem) moveFile(ctx context.Context, src, dst string) error {
	exists, err := f.Exists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		if err := f.backend.Remove(ctx, dst, false); err != nil {
			return f.fail("delete before rename", dst, err)
		}
	}
	if err := f.backend.Rename(ctx, src, dst); err != nil {
		return f.fail("rename", src, err)
	}
	return nil
}
