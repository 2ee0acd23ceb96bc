package s3fs_test

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/endpoint"
	"meditrack.dev/duct/storage/objstore"
	"meditrack.dev/duct/storage/s3fs"
)

func newFileSystem(svc *objstore.MemoryS3Service) *storage.FileSystem {
	ep := endpoint.Endpoint{Scheme: endpoint.SchemeS3, Bucket: "bucket"}
	return storage.New(ep, s3fs.New(svc, ep.Bucket, ep.Prefix))
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("source broke")
	}
	r.sent = true
	return copy(p, "PART"), nil
}

func TestKeysStayUnderPrefix(t *testing.T) {
	svc := objstore.NewMemoryS3Service()
	bucket := s3fs.New(svc, "bucket", "/tenant/")

	w, err := bucket.Create(t.Context(), "/a/b.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"bucket/tenant/a/b.txt"}, svc.Keys())

	r, err := bucket.Open(t.Context(), "a/b.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "data", string(data))
}

func TestWritesAreVisibleOnlyAfterClose(t *testing.T) {
	svc := objstore.NewMemoryS3Service()
	bucket := s3fs.New(svc, "bucket", "")

	w, err := bucket.Create(t.Context(), "pending.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	assert.Empty(t, svc.Keys())

	require.NoError(t, w.Close())
	assert.Equal(t, []string{"bucket/pending.txt"}, svc.Keys())
}

func TestUsage(t *testing.T) {
	bucket := s3fs.New(objstore.NewMemoryS3Service(), "bucket", "")

	w, err := bucket.Create(t.Context(), "file.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	_, err = bucket.Stat(t.Context(), "file.txt")
	require.NoError(t, err)
	require.NoError(t, bucket.Remove(t.Context(), "file.txt", false))

	usage := bucket.Usage()
	assert.Equal(t, 1, usage.Calls(objstore.OpPutObject))
	assert.Equal(t, 1, usage.Calls(objstore.OpDeleteObject))
	assert.GreaterOrEqual(t, usage.Calls(objstore.OpHeadObject), 1)
	require.NoError(t, bucket.Close())
}

func TestFailedWriteKeepsPreviousObject(t *testing.T) {
	svc := objstore.NewMemoryS3Service()
	fsys := newFileSystem(svc)

	_, err := fsys.WriteFile(t.Context(), "/out/patients.avro", strings.NewReader("COMPLETE"), false)
	require.NoError(t, err)

	_, err = fsys.WriteFile(t.Context(), "/out/patients.avro", &failingReader{}, false)
	require.Error(t, err)

	data, err := fsys.ReadFile(t.Context(), "/out/patients.avro")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", string(data), "a failed write must not replace the object")
}

func TestAbortedWriterUploadsNothing(t *testing.T) {
	svc := objstore.NewMemoryS3Service()
	bucket := s3fs.New(svc, "bucket", "")

	w, err := bucket.Create(t.Context(), "pending.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	aborter, ok := w.(storage.Aborter)
	require.True(t, ok, "s3 writers commit on Close and must support Abort")
	require.NoError(t, aborter.Abort())
	require.NoError(t, w.Close(), "Close after Abort is a no-op")
	assert.Empty(t, svc.Keys())
	assert.Equal(t, 0, bucket.Usage().Calls(objstore.OpPutObject))
}

func TestCreateOverDirectory(t *testing.T) {
	svc := objstore.NewMemoryS3Service()
	bucket := s3fs.New(svc, "bucket", "")

	w, err := bucket.Create(t.Context(), "dir/child.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = bucket.Create(t.Context(), "dir")
	assert.ErrorIs(t, err, syscall.EISDIR)
	assert.Equal(t, []string{"bucket/dir/child.txt"}, svc.Keys())
}

func TestErrorTranslation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"AccessDenied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}, storage.ErrPermissionDenied},
		{"Forbidden", &smithy.GenericAPIError{Code: "Forbidden"}, storage.ErrPermissionDenied},
		{"NoSuchBucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, storage.ErrConfiguration},
		{"ConnectionRefused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, storage.ErrStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := objstore.NewMemoryS3Service()
			fsys := newFileSystem(svc)
			_, err := fsys.WriteFile(t.Context(), "/data.txt", strings.NewReader("x"), false)
			require.NoError(t, err)

			svc.SetError(objstore.OpGetObject, tt.err)
			_, err = fsys.ReadFile(t.Context(), "/data.txt")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAccessChecksWithoutPermission(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied"}
	svc := objstore.NewMemoryS3Service()
	fsys := newFileSystem(svc)
	_, err := fsys.WriteFile(t.Context(), "/dir/file.txt", strings.NewReader("x"), false)
	require.NoError(t, err)

	svc.SetError(objstore.OpGetObject, denied)
	readable, err := fsys.IsReadable(t.Context(), "/dir/file.txt")
	require.NoError(t, err)
	assert.False(t, readable)
	svc.SetError(objstore.OpGetObject, nil)

	svc.SetError(objstore.OpPutObject, denied)
	writable, err := fsys.IsWritable(t.Context(), "/dir")
	require.NoError(t, err)
	assert.False(t, writable)
	svc.SetError(objstore.OpPutObject, nil)

	names, err := fsys.ListAll(t.Context(), "/dir", ".*")
	require.NoError(t, err)
	assert.Equal(t, []string{"file.txt"}, names)
}
