package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"meditrack.dev/duct/storage"
)

// Directory is a storage.Backend on the local disk. Paths are joined onto
// Root, or used as given when Root is empty.
type Directory struct {
	Root string
}

func NewDirectory(root string) *Directory {
	return &Directory{Root: root}
}

func (d *Directory) resolve(p string) string {
	p = filepath.FromSlash(p)
	if d.Root == "" {
		return p
	}
	return filepath.Join(d.Root, p)
}

func (d *Directory) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return os.Open(d.resolve(p))
}

func (d *Directory) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	return os.Create(d.resolve(p))
}

func (d *Directory) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	return os.OpenFile(d.resolve(p), os.O_WRONLY|os.O_APPEND, 0)
}

func (d *Directory) Stat(ctx context.Context, p string) (storage.FileInfo, error) {
	info, err := os.Stat(d.resolve(p))
	if err != nil {
		return storage.FileInfo{}, err
	}
	return fileInfo(p, info), nil
}

func (d *Directory) ReadDir(ctx context.Context, p string) ([]storage.FileInfo, error) {
	entries, err := os.ReadDir(d.resolve(p))
	if err != nil {
		return nil, err
	}

	infos := make([]storage.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat.
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		infos = append(infos, fileInfo(filepath.ToSlash(filepath.Join(p, entry.Name())), info))
	}
	return infos, nil
}

func (d *Directory) MkdirAll(ctx context.Context, p string) error {
	return os.MkdirAll(d.resolve(p), 0o777)
}

func (d *Directory) Remove(ctx context.Context, p string, recursive bool) error {
	full := d.resolve(p)
	if !recursive {
		return os.Remove(full)
	}
	if _, err := os.Lstat(full); err != nil {
		return err
	}
	return os.RemoveAll(full)
}

func (d *Directory) Rename(ctx context.Context, src, dst string) error {
	return os.Rename(d.resolve(src), d.resolve(dst))
}

func (d *Directory) Close() error {
	return nil
}

func fileInfo(p string, info os.FileInfo) storage.FileInfo {
	return storage.FileInfo{
		Name:    info.Name(),
		Path:    p,
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
}

var _ storage.Backend = (*Directory)(nil)
