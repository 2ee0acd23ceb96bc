// Package hdfsfs implements storage.Backend on HDFS through the native
// namenode/datanode protocol.
package hdfsfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path"

	"github.com/colinmarc/hdfs/v2"

	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/endpoint"
)

// defaultBlockSize matches dfs.blocksize in a stock Hadoop install.
const defaultBlockSize = 128 << 20

type Client struct {
	client *hdfs.Client
}

// Dial connects to the namenodes of ep. The user defaults to
// HADOOP_USER_NAME, then to the current OS user.
func Dial(ep endpoint.Endpoint) (*Client, error) {
	if len(ep.Addresses) == 0 {
		return nil, fmt.Errorf("%w: hdfs endpoint has no namenode addresses", storage.ErrConfiguration)
	}

	username, err := hdfsUser(ep)
	if err != nil {
		return nil, err
	}

	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: ep.Addresses,
		User:      username,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w: %w", ep, storage.ErrStorageUnavailable, err)
	}
	return &Client{client: client}, nil
}

func hdfsUser(ep endpoint.Endpoint) (string, error) {
	if ep.User != "" {
		return ep.User, nil
	}
	if name := os.Getenv("HADOOP_USER_NAME"); name != "" {
		return name, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("%w: resolving hdfs user: %w", storage.ErrConfiguration, err)
	}
	return u.Username, nil
}

func (c *Client) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	return c.client.Open(p)
}

// Create replaces any existing file since HDFS create refuses to overwrite.
func (c *Client) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := c.removeFile(p); err != nil {
		return nil, err
	}
	return c.client.Create(p)
}

func (c *Client) CreateReplicated(ctx context.Context, p string, replication int) (io.WriteCloser, error) {
	if err := c.removeFile(p); err != nil {
		return nil, err
	}
	return c.client.CreateFile(p, replication, defaultBlockSize, 0o644)
}

func (c *Client) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	return c.client.Append(p)
}

func (c *Client) Stat(ctx context.Context, p string) (storage.FileInfo, error) {
	info, err := c.client.Stat(p)
	if err != nil {
		return storage.FileInfo{}, err
	}
	return fileInfo(p, info), nil
}

func (c *Client) ReadDir(ctx context.Context, p string) ([]storage.FileInfo, error) {
	entries, err := c.client.ReadDir(p)
	if err != nil {
		return nil, err
	}
	infos := make([]storage.FileInfo, 0, len(entries))
	for _, info := range entries {
		infos = append(infos, fileInfo(path.Join(p, info.Name()), info))
	}
	return infos, nil
}

func (c *Client) MkdirAll(ctx context.Context, p string) error {
	return c.client.MkdirAll(p, 0o755)
}

func (c *Client) Remove(ctx context.Context, p string, recursive bool) error {
	if recursive {
		return c.client.RemoveAll(p)
	}
	return c.client.Remove(p)
}

func (c *Client) Rename(ctx context.Context, src, dst string) error {
	return c.client.Rename(src, dst)
}

func (c *Client) CopyFromLocal(ctx context.Context, localPath, dst string) error {
	if err := c.removeFile(dst); err != nil {
		return err
	}
	return c.client.CopyToRemote(localPath, dst)
}

func (c *Client) CopyToLocal(ctx context.Context, src, localPath string) error {
	return c.client.CopyToLocal(src, localPath)
}

func (c *Client) Close() error {
	return c.client.Close()
}

// removeFile deletes p if it is a file and leaves directories alone.
func (c *Client) removeFile(p string) error {
	info, err := c.client.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "create", Path: p, Err: fs.ErrExist}
	}
	return c.client.Remove(p)
}

func fileInfo(p string, info fs.FileInfo) storage.FileInfo {
	return storage.FileInfo{
		Name:    info.Name(),
		Path:    p,
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
}

var (
	_ storage.Backend           = (*Client)(nil)
	_ storage.ReplicatedCreator = (*Client)(nil)
	_ storage.LocalTransfer     = (*Client)(nil)
)
