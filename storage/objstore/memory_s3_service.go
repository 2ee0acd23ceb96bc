package objstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MemoryS3Service is an in-memory implementation of the S3Service for testing.
// Objects are keyed by "bucket/key".
type MemoryS3Service struct {
	data     map[string]memoryObject
	pageSize int
	now      func() time.Time
	failures map[S3Op]error
}

type memoryObject struct {
	body     []byte
	modified time.Time
}

func NewMemoryS3Service() *MemoryS3Service {
	return &MemoryS3Service{
		data:     make(map[string]memoryObject),
		pageSize: 1000,
		now:      time.Now,
		failures: make(map[S3Op]error),
	}
}

// SetError makes every later call of op return err. A nil err clears it.
func (m *MemoryS3Service) SetError(op S3Op, err error) {
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// SetPageSize limits how many keys ListObjectsV2 returns per page so callers'
// pagination can be exercised.
func (m *MemoryS3Service) SetPageSize(n int) {
	m.pageSize = n
}

// Keys returns all stored "bucket/key" names in sorted order.
func (m *MemoryS3Service) Keys() []string {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func objectName(bucket, key *string) string {
	return aws.ToString(bucket) + "/" + aws.ToString(key)
}

func (m *MemoryS3Service) CopyObject(ctx context.Context, input *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	if err := m.failures[OpCopyObject]; err != nil {
		return nil, err
	}
	source, err := url.PathUnescape(aws.ToString(input.CopySource))
	if err != nil {
		return nil, err
	}
	obj, ok := m.data[source]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	m.data[objectName(input.Bucket, input.Key)] = memoryObject{
		body:     bytes.Clone(obj.body),
		modified: m.now(),
	}
	return &s3.CopyObjectOutput{}, nil
}

func (m *MemoryS3Service) GetObject(ctx context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if err := m.failures[OpGetObject]; err != nil {
		return nil, err
	}
	obj, ok := m.data[objectName(input.Bucket, input.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentLength: aws.Int64(int64(len(obj.body))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (m *MemoryS3Service) HeadObject(ctx context.Context, input *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := m.failures[OpHeadObject]; err != nil {
		return nil, err
	}
	obj, ok := m.data[objectName(input.Bucket, input.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		LastModified:  aws.Time(obj.modified),
	}, nil
}

// ListObjectsV2 supports Prefix, Delimiter, MaxKeys and ContinuationToken. The
// continuation token is the last key of the previous page.
func (m *MemoryS3Service) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if err := m.failures[OpListObjectsV2]; err != nil {
		return nil, err
	}
	bucketPrefix := aws.ToString(input.Bucket) + "/"
	prefix := aws.ToString(input.Prefix)
	delimiter := aws.ToString(input.Delimiter)
	after := aws.ToString(input.ContinuationToken)

	limit := m.pageSize
	if input.MaxKeys != nil && int(*input.MaxKeys) < limit {
		limit = int(*input.MaxKeys)
	}

	// Get sorted list of keys in the bucket that match the prefix
	var keys []string
	for name := range m.data {
		key, ok := strings.CutPrefix(name, bucketPrefix)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seenPrefixes := make(map[string]bool)
	count := 0
	for _, key := range keys {
		entry := key
		isPrefix := false
		if delimiter != "" {
			if i := strings.Index(key[len(prefix):], delimiter); i >= 0 {
				entry = key[:len(prefix)+i+len(delimiter)]
				isPrefix = true
			}
		}
		if entry <= after || seenPrefixes[entry] {
			continue
		}
		if count == limit {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(after)
			break
		}

		if isPrefix {
			seenPrefixes[entry] = true
			out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(entry)})
		} else {
			obj := m.data[bucketPrefix+key]
			out.Contents = append(out.Contents, types.Object{
				Key:          aws.String(key),
				Size:         aws.Int64(int64(len(obj.body))),
				LastModified: aws.Time(obj.modified),
			})
		}
		after = entry
		count++
	}
	out.KeyCount = aws.Int32(int32(count))

	return out, nil
}

func (m *MemoryS3Service) PutObject(ctx context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := m.failures[OpPutObject]; err != nil {
		return nil, err
	}
	var buf []byte
	if input.Body != nil {
		var err error
		buf, err = io.ReadAll(input.Body)
		if err != nil {
			return nil, err
		}
	}

	m.data[objectName(input.Bucket, input.Key)] = memoryObject{body: buf, modified: m.now()}
	return &s3.PutObjectOutput{}, nil
}

func (m *MemoryS3Service) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if err := m.failures[OpDeleteObject]; err != nil {
		return nil, err
	}
	delete(m.data, objectName(input.Bucket, input.Key))
	return &s3.DeleteObjectOutput{}, nil
}

var _ S3Service = (*MemoryS3Service)(nil)
