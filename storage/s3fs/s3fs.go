// Package s3fs implements storage.Backend on an S3 bucket. Directories are
// virtual: a directory exists when any key lives under its prefix, and empty
// directories are kept alive by a zero byte "dir/" marker object.
package s3fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/objstore"
)

type Bucket struct {
	s3     objstore.S3Service
	bucket string
	prefix string
	usage  objstore.S3Usage
}

// New returns a backend rooted at prefix inside bucket.
func New(s3 objstore.S3Service, bucket, prefix string) *Bucket {
	return &Bucket{
		s3:     s3,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Usage reports the requests made so far.
func (b *Bucket) Usage() *objstore.S3Usage {
	return &b.usage
}

// key maps a backend path to an object key. The empty key is the root.
//
// example:
//
//	New(svc, "bucket", "out").key("/a/b.avro") => "out/a/b.avro"
//	New(svc, "bucket", "").key("/")           => ""
func (b *Bucket) key(p string) string {
	clean := strings.Trim(path.Clean("/"+p), "/")
	return strings.Trim(path.Join(b.prefix, clean), "/")
}

func dirKey(key string) string {
	if key == "" {
		return ""
	}
	return key + "/"
}

func (b *Bucket) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	b.usage.Record(objstore.OpGetObject)
	key := b.key(p)
	out, err := b.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, b.translate("open", p, err)
	}
	return out.Body, nil
}

// Create returns a writer that buffers in memory and uploads on Close. A key
// that is already a directory is rejected.
func (b *Bucket) Create(ctx context.Context, p string) (io.WriteCloser, error) {
	key := b.key(p)
	isDir, err := b.hasChildren(ctx, dirKey(key))
	if err != nil {
		return nil, b.translate("create", p, err)
	}
	if isDir {
		return nil, &fs.PathError{Op: "create", Path: p, Err: syscall.EISDIR}
	}
	return &objectWriter{ctx: ctx, bucket: b, path: p, key: key}, nil
}

// Append reads the existing object into the buffer of a new writer. S3 has no
// append so the whole object is rewritten on Close.
func (b *Bucket) Append(ctx context.Context, p string) (io.WriteCloser, error) {
	r, err := b.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	w := &objectWriter{ctx: ctx, bucket: b, path: p, key: b.key(p)}
	if _, err := w.buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("s3 append %s: reading existing object: %w", p, err)
	}
	return w, nil
}

func (b *Bucket) Stat(ctx context.Context, p string) (storage.FileInfo, error) {
	key := b.key(p)
	if key == b.prefix {
		return storage.FileInfo{Name: path.Base("/" + p), Path: p, IsDir: true}, nil
	}

	info, err := b.headFile(ctx, p, key)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return storage.FileInfo{}, err
	}

	isDir, err := b.hasChildren(ctx, dirKey(key))
	if err != nil {
		return storage.FileInfo{}, b.translate("stat", p, err)
	}
	if !isDir {
		return storage.FileInfo{}, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return storage.FileInfo{Name: path.Base(key), Path: p, IsDir: true}, nil
}

func (b *Bucket) headFile(ctx context.Context, p, key string) (storage.FileInfo, error) {
	b.usage.Record(objstore.OpHeadObject)
	out, err := b.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		return storage.FileInfo{}, b.translate("stat", p, err)
	}
	return storage.FileInfo{
		Name:    path.Base(key),
		Path:    p,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func (b *Bucket) hasChildren(ctx context.Context, prefix string) (bool, error) {
	b.usage.Record(objstore.OpListObjectsV2)
	out, err := b.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &b.bucket,
		Prefix:  &prefix,
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// list pages through every object and common prefix under prefix.
func (b *Bucket) list(ctx context.Context, prefix, delimiter string, fn func(*s3.ListObjectsV2Output)) error {
	input := &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &prefix,
	}
	if delimiter != "" {
		input.Delimiter = &delimiter
	}

	for {
		b.usage.Record(objstore.OpListObjectsV2)
		out, err := b.s3.ListObjectsV2(ctx, input)
		if err != nil {
			return err
		}
		fn(out)
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

func (b *Bucket) ReadDir(ctx context.Context, p string) ([]storage.FileInfo, error) {
	prefix := dirKey(b.key(p))

	var infos []storage.FileInfo
	found := false
	err := b.list(ctx, prefix, "/", func(out *s3.ListObjectsV2Output) {
		for _, cp := range out.CommonPrefixes {
			found = true
			name := path.Base(strings.TrimSuffix(aws.ToString(cp.Prefix), "/"))
			infos = append(infos, storage.FileInfo{Name: name, Path: path.Join(p, name), IsDir: true})
		}
		for _, obj := range out.Contents {
			found = true
			key := aws.ToString(obj.Key)
			if key == prefix {
				// directory marker
				continue
			}
			name := path.Base(key)
			infos = append(infos, storage.FileInfo{
				Name:    name,
				Path:    path.Join(p, name),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	})
	if err != nil {
		return nil, b.translate("readdir", p, err)
	}
	if !found && prefix != dirKey(b.prefix) {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	return infos, nil
}

// MkdirAll writes a directory marker after checking that no ancestor of p is
// an object.
func (b *Bucket) MkdirAll(ctx context.Context, p string) error {
	key := b.key(p)
	if key == b.prefix {
		return nil
	}

	for dir := strings.TrimPrefix(key, dirKey(b.prefix)); dir != "." && dir != ""; dir = path.Dir(dir) {
		ancestor := b.key(dir)
		_, err := b.headFile(ctx, dir, ancestor)
		if err == nil {
			return &fs.PathError{Op: "mkdir", Path: p, Err: syscall.ENOTDIR}
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	marker := dirKey(key)
	b.usage.Record(objstore.OpPutObject)
	_, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &marker,
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return b.translate("mkdir", p, err)
	}
	return nil
}

func (b *Bucket) Remove(ctx context.Context, p string, recursive bool) error {
	info, err := b.Stat(ctx, p)
	if err != nil {
		return err
	}
	key := b.key(p)
	if !info.IsDir {
		return b.deleteKey(ctx, p, key)
	}

	keys, err := b.keysUnder(ctx, dirKey(key))
	if err != nil {
		return b.translate("remove", p, err)
	}
	if !recursive && (len(keys) > 1 || (len(keys) == 1 && keys[0] != dirKey(key))) {
		return &fs.PathError{Op: "remove", Path: p, Err: syscall.ENOTEMPTY}
	}
	for _, k := range keys {
		if err := b.deleteKey(ctx, p, k); err != nil {
			return err
		}
	}
	return nil
}

// Rename copies then deletes every object under src.
func (b *Bucket) Rename(ctx context.Context, src, dst string) error {
	info, err := b.Stat(ctx, src)
	if err != nil {
		return err
	}
	srcKey, dstKey := b.key(src), b.key(dst)
	if !info.IsDir {
		if err := b.copyKey(ctx, src, srcKey, dstKey); err != nil {
			return err
		}
		return b.deleteKey(ctx, src, srcKey)
	}

	keys, err := b.keysUnder(ctx, dirKey(srcKey))
	if err != nil {
		return b.translate("rename", src, err)
	}
	for _, k := range keys {
		target := dstKey + strings.TrimPrefix(k, srcKey)
		if err := b.copyKey(ctx, src, k, target); err != nil {
			return err
		}
		if err := b.deleteKey(ctx, src, k); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.list(ctx, prefix, "", func(out *s3.ListObjectsV2Output) {
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	})
	return keys, err
}

func (b *Bucket) copyKey(ctx context.Context, p, srcKey, dstKey string) error {
	source := url.PathEscape(b.bucket) + "/" + (&url.URL{Path: srcKey}).EscapedPath()
	b.usage.Record(objstore.OpCopyObject)
	_, err := b.s3.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &b.bucket,
		Key:        &dstKey,
		CopySource: &source,
	})
	if err != nil {
		return b.translate("copy", p, err)
	}
	return nil
}

func (b *Bucket) deleteKey(ctx context.Context, p, key string) error {
	b.usage.Record(objstore.OpDeleteObject)
	_, err := b.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		return b.translate("remove", p, err)
	}
	return nil
}

func (b *Bucket) Close() error {
	slog.Debug("s3 request usage", "scope", "s3fs", "bucket", b.bucket,
		"calls", b.usage.String(), "cost", b.usage.Cost())
	return nil
}

// translate maps S3 errors onto fs errors. Failures that never reached the
// service are reported as storage.ErrStorageUnavailable.
func (b *Bucket) translate(op, p string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return &fs.PathError{Op: op, Path: p, Err: fs.ErrPermission}
		case "NoSuchBucket":
			return fmt.Errorf("s3 %s %s: bucket %s: %w: %w", op, p, b.bucket, storage.ErrConfiguration, err)
		}
		return fmt.Errorf("s3 %s %s: %w", op, p, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("s3 %s %s: %w: %w", op, p, storage.ErrStorageUnavailable, err)
}

type objectWriter struct {
	ctx    context.Context
	bucket *Bucket
	path   string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *objectWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fs.ErrClosed
	}
	return w.buf.Write(p)
}

// Abort drops the buffered content without uploading it.
func (w *objectWriter) Abort() error {
	w.closed = true
	w.buf.Reset()
	return nil
}

func (w *objectWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	b := w.bucket
	b.usage.Record(objstore.OpPutObject)
	_, err := b.s3.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        &b.bucket,
		Key:           &w.key,
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	})
	if err != nil {
		return b.translate("write", w.path, err)
	}
	return nil
}

var (
	_ storage.Backend = (*Bucket)(nil)
	_ storage.Aborter = (*objectWriter)(nil)
)
