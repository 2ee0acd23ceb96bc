package storage_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meditrack.dev/duct/storage"
	"meditrack.dev/duct/storage/endpoint"
	"meditrack.dev/duct/storage/localfs"
	"meditrack.dev/duct/storage/objstore"
	"meditrack.dev/duct/storage/s3fs"
)

func TestLocalFileSystem(t *testing.T) {
	fileSystemSuite(t, func() *storage.FileSystem {
		root := t.TempDir()
		return storage.New(endpoint.Endpoint{Scheme: endpoint.SchemeFile, Root: root}, localfs.NewDirectory(root))
	})
}

func TestS3FileSystem(t *testing.T) {
	fileSystemSuite(t, func() *storage.FileSystem {
		svc := objstore.NewMemoryS3Service()
		svc.SetPageSize(2)
		ep := endpoint.Endpoint{Scheme: endpoint.SchemeS3, Bucket: "bucket", Prefix: "prefix"}
		return storage.New(ep, s3fs.New(svc, ep.Bucket, ep.Prefix))
	})
}

func TestLocalAccessChecksWithoutPermission(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root bypasses file permissions")
	}
	root := t.TempDir()
	fsys := storage.New(endpoint.Endpoint{Scheme: endpoint.SchemeFile, Root: root}, localfs.NewDirectory(root))
	writeString(t, fsys, "/locked/secret.txt", "x")

	require.NoError(t, os.Chmod(filepath.Join(root, "locked", "secret.txt"), 0o000))
	readable, err := fsys.IsReadable(t.Context(), "/locked/secret.txt")
	require.NoError(t, err)
	assert.False(t, readable)

	_, err = fsys.ReadFile(t.Context(), "/locked/secret.txt")
	assert.ErrorIs(t, err, storage.ErrPermissionDenied)

	require.NoError(t, os.Chmod(filepath.Join(root, "locked"), 0o500))
	t.Cleanup(func() { os.Chmod(filepath.Join(root, "locked"), 0o700) })
	writable, err := fsys.IsWritable(t.Context(), "/locked")
	require.NoError(t, err)
	assert.False(t, writable)
}

func writeString(t *testing.T, fsys *storage.FileSystem, p, data string) {
	t.Helper()
	_, err := fsys.WriteFile(t.Context(), p, strings.NewReader(data), false)
	require.NoError(t, err, "prereq: writing %s should not error", p)
}

func readString(t *testing.T, fsys *storage.FileSystem, p string) string {
	t.Helper()
	data, err := fsys.ReadFile(t.Context(), p)
	require.NoError(t, err, "reading %s should not error", p)
	return string(data)
}

var errSourceBroke = errors.New("source broke")

// brokenReader returns its data and then fails.
type brokenReader struct {
	data string
	done bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errSourceBroke
	}
	r.done = true
	return copy(p, r.data), nil
}

func fileSystemSuite(t *testing.T, newFS func() *storage.FileSystem) {
	t.Run("WriteThenRead", func(t *testing.T) {
		fsys := newFS()

		testData := []byte("test data")
		w, err := fsys.OpenWrite(t.Context(), "/nested/dir/test.txt", false)
		require.NoError(t, err, "opening for write should create parent directories")
		_, err = w.Write(testData)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r, err := fsys.OpenRead(t.Context(), "/nested/dir/test.txt")
		require.NoError(t, err)
		defer r.Close()
		content, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, testData, content, "file should contain the written data")
	})

	t.Run("ReadNonExistent", func(t *testing.T) {
		_, err := newFS().OpenRead(t.Context(), "/nonexistent.txt")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TruncateAndAppend", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/log.txt", "first")

		_, err := fsys.WriteFile(t.Context(), "/log.txt", strings.NewReader("second"), false)
		require.NoError(t, err)
		assert.Equal(t, "second", readString(t, fsys, "/log.txt"), "append=false should truncate")

		_, err = fsys.WriteFile(t.Context(), "/log.txt", strings.NewReader("+third"), true)
		require.NoError(t, err)
		assert.Equal(t, "second+third", readString(t, fsys, "/log.txt"), "append=true should keep prior bytes")

		_, err = fsys.WriteFile(t.Context(), "/new/appended.txt", strings.NewReader("created"), true)
		require.NoError(t, err)
		assert.Equal(t, "created", readString(t, fsys, "/new/appended.txt"), "append=true should create a missing file")
	})

	t.Run("ReadLines", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/lines.txt", "one\ntwo\nthree\n")

		lines, err := fsys.ReadLines(t.Context(), "/lines.txt")
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two", "three"}, lines)
	})

	t.Run("List", func(t *testing.T) {
		fsys := newFS()
		for _, p := range []string{"/dir/a.avro", "/dir/b.avro", "/dir/c.txt", "/dir/sub/d.avro"} {
			writeString(t, fsys, p, "x")
		}

		all, err := fsys.ListAll(t.Context(), "/dir", ".*")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.avro", "b.avro", "c.txt", "sub"}, all)

		files, err := fsys.ListFiles(t.Context(), "/dir", `.*\.avro`)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.avro", "b.avro"}, files, "pattern should match base names of files only")

		dirs, err := fsys.ListDirectories(t.Context(), "/dir", ".*")
		require.NoError(t, err)
		assert.Equal(t, []string{"sub"}, dirs)

		partial, err := fsys.ListAll(t.Context(), "/dir", "a")
		require.NoError(t, err)
		assert.Empty(t, partial, "pattern must match the whole name")
	})

	t.Run("ListNonExistent", func(t *testing.T) {
		names, err := newFS().List(t.Context(), "/missing", ".*", storage.ListAll)
		assert.NoError(t, err, "listing a missing directory should not error")
		assert.Empty(t, names)
	})

	t.Run("ListInvalidPattern", func(t *testing.T) {
		_, err := newFS().List(t.Context(), "/", "(", storage.ListAll)
		assert.ErrorIs(t, err, storage.ErrConfiguration)
	})

	t.Run("ExistsAndIsFile", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/dir/file.txt", "x")
		require.NoError(t, fsys.Mkdirs(t.Context(), "/empty/child"))

		for _, tc := range []struct {
			path   string
			exists bool
			isFile bool
		}{
			{"/dir/file.txt", true, true},
			{"/dir", true, false},
			{"/empty/child", true, false},
			{"/nope", false, false},
		} {
			exists, err := fsys.Exists(t.Context(), tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.exists, exists, "exists %s", tc.path)

			isFile, err := fsys.IsFile(t.Context(), tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.isFile, isFile, "isFile %s", tc.path)
		}

		info, err := fsys.Status(t.Context(), "/dir/file.txt")
		require.NoError(t, err)
		assert.Equal(t, "file.txt", info.Name)
		assert.Equal(t, int64(1), info.Size)

		_, err = fsys.Status(t.Context(), "/nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/doomed/a.txt", "x")
		writeString(t, fsys, "/doomed/b/c.txt", "x")

		require.NoError(t, fsys.Delete(t.Context(), "/doomed/a.txt", false))
		exists, _ := fsys.Exists(t.Context(), "/doomed/a.txt")
		assert.False(t, exists)

		assert.Error(t, fsys.Delete(t.Context(), "/doomed", false), "non-recursive delete of a non-empty directory should fail")

		require.NoError(t, fsys.Delete(t.Context(), "/doomed", true))
		exists, _ = fsys.Exists(t.Context(), "/doomed/b/c.txt")
		assert.False(t, exists)

		assert.NoError(t, fsys.Delete(t.Context(), "/doomed", true), "deleting a missing path should not error")
	})

	t.Run("Rename", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/from.txt", "payload")

		require.NoError(t, fsys.Rename(t.Context(), "/from.txt", "/to.txt"))
		assert.Equal(t, "payload", readString(t, fsys, "/to.txt"))
		exists, _ := fsys.Exists(t.Context(), "/from.txt")
		assert.False(t, exists)
	})

	t.Run("CopyFile", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/source.txt", "test data for copying")

		require.NoError(t, fsys.CopyFile(t.Context(), "/source.txt", "/copies/destination.txt"))
		assert.Equal(t, "test data for copying", readString(t, fsys, "/copies/destination.txt"))
		assert.Equal(t, "test data for copying", readString(t, fsys, "/source.txt"))
	})

	t.Run("CopyFileNonExistent", func(t *testing.T) {
		err := newFS().CopyFile(t.Context(), "/nonexistent.txt", "/destination.txt")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CopyTree", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/a/b/file1", "one")
		writeString(t, fsys, "/a/c/file2", "two")

		require.NoError(t, fsys.Copy(t.Context(), "/a", "/d"))

		assert.Equal(t, "one", readString(t, fsys, "/d/b/file1"))
		assert.Equal(t, "two", readString(t, fsys, "/d/c/file2"))
		assert.Equal(t, "one", readString(t, fsys, "/a/b/file1"), "source tree should be intact")
		assert.Equal(t, "two", readString(t, fsys, "/a/c/file2"), "source tree should be intact")
	})

	t.Run("MoveTree", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/a/b/file1", "one")
		writeString(t, fsys, "/a/c/file2", "two")
		writeString(t, fsys, "/d/b/file1", "stale")

		require.NoError(t, fsys.Move(t.Context(), "/a", "/d"))

		assert.Equal(t, "one", readString(t, fsys, "/d/b/file1"), "existing destination files are replaced")
		assert.Equal(t, "two", readString(t, fsys, "/d/c/file2"))
		exists, err := fsys.Exists(t.Context(), "/a")
		require.NoError(t, err)
		assert.False(t, exists, "source tree should be removed")
	})

	t.Run("CopyTreeDestinationIsFile", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/a/b/file1", "one")
		writeString(t, fsys, "/d/b", "i am a file")

		err := fsys.Copy(t.Context(), "/a", "/d")
		assert.ErrorIs(t, err, storage.ErrDestinationIsFile)

		err = fsys.Move(t.Context(), "/a", "/d")
		assert.ErrorIs(t, err, storage.ErrDestinationIsFile)
		assert.Equal(t, "one", readString(t, fsys, "/a/b/file1"), "failed move should leave the source")
	})

	t.Run("CopyTreeMissingSource", func(t *testing.T) {
		assert.NoError(t, newFS().Copy(t.Context(), "/missing", "/d"))
	})

	t.Run("Probes", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/dir/file.txt", "x")

		readable, err := fsys.IsReadable(t.Context(), "/dir/file.txt")
		require.NoError(t, err)
		assert.True(t, readable)

		writable, err := fsys.IsWritable(t.Context(), "/dir")
		require.NoError(t, err)
		assert.True(t, writable)

		names, err := fsys.ListAll(t.Context(), "/dir", ".*")
		require.NoError(t, err)
		assert.Equal(t, []string{"file.txt"}, names, "write probe should clean up its marker")

		_, err = fsys.IsReadable(t.Context(), "/dir/missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = fsys.IsReadable(t.Context(), "/dir")
		assert.Error(t, err, "a directory is not a readable file")
		_, err = fsys.IsWritable(t.Context(), "/dir/file.txt")
		assert.Error(t, err, "a file is not a writable directory")
	})

	t.Run("UploadDownload", func(t *testing.T) {
		fsys := newFS()
		local := filepath.Join(t.TempDir(), "artifact.bin")
		require.NoError(t, os.WriteFile(local, []byte("artifact"), 0o644))

		require.NoError(t, fsys.Upload(t.Context(), local, "/out/artifact.bin", storage.WithReplication(3)))
		assert.Equal(t, "artifact", readString(t, fsys, "/out/artifact.bin"))

		back := filepath.Join(t.TempDir(), "nested", "back.bin")
		require.NoError(t, fsys.Download(t.Context(), "/out/artifact.bin", back))
		data, err := os.ReadFile(back)
		require.NoError(t, err)
		assert.Equal(t, []byte("artifact"), data)

		err = fsys.Upload(t.Context(), filepath.Join(t.TempDir(), "missing"), "/out/missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("CreateFile", func(t *testing.T) {
		fsys := newFS()
		require.NoError(t, fsys.CreateFile(t.Context(), "/marker/_SUCCESS"))
		assert.Equal(t, "", readString(t, fsys, "/marker/_SUCCESS"))
	})

	t.Run("FailedWrite", func(t *testing.T) {
		fsys := newFS()
		_, err := fsys.WriteFile(t.Context(), "/out/patients.avro", &brokenReader{data: "PART"}, false)
		assert.ErrorIs(t, err, errSourceBroke)
	})

	t.Run("WriteOverDirectory", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/out/dir/child.txt", "x")
		_, err := fsys.WriteFile(t.Context(), "/out/dir", strings.NewReader("shadow"), false)
		assert.Error(t, err, "a directory cannot be replaced by a file")

		isFile, err := fsys.IsFile(t.Context(), "/out/dir")
		require.NoError(t, err)
		assert.False(t, isFile)
		assert.Equal(t, "x", readString(t, fsys, "/out/dir/child.txt"))
	})

	t.Run("WriteUnderFile", func(t *testing.T) {
		fsys := newFS()
		writeString(t, fsys, "/blocker", "x")
		_, err := fsys.WriteFile(t.Context(), "/blocker/child.txt", bytes.NewReader(nil), false)
		assert.Error(t, err, "a file cannot be a parent directory")
	})
}
