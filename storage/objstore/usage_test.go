package objstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meditrack.dev/duct/storage/objstore"
)

func TestUsageCost(t *testing.T) {
	usage := objstore.S3Usage{}
	for range 1_000 {
		usage.Record(objstore.OpGetObject)
	}
	assert.Equal(t, "$0.0004", usage.Cost())

	usage = objstore.S3Usage{}
	for range 1_000_000 {
		usage.Record(objstore.OpHeadObject)
	}
	assert.Equal(t, "$0.40", usage.Cost())

	usage = objstore.S3Usage{}
	for range 3 {
		usage.Record(objstore.OpGetObject)
		usage.Record(objstore.OpListObjectsV2)
	}
	assert.Equal(t, "$0.0000162", usage.Cost(), "ops are summed before dividing")

	usage = objstore.S3Usage{}
	assert.Equal(t, "$0", usage.Cost())
	usage.Record(objstore.OpGetObject)
	assert.Equal(t, "$0.0000004", usage.Cost(), "single calls are not rounded away")
	usage.Record(objstore.OpHeadObject)
	assert.Equal(t, "$0.0000008", usage.Cost())

	usage = objstore.S3Usage{}
	for range 1_000 {
		usage.Record(objstore.OpPutObject)
	}
	assert.Equal(t, "$0.005", usage.Cost())

	for range 1_000 {
		usage.Record(objstore.OpDeleteObject)
	}
	assert.Equal(t, "$0.005", usage.Cost(), "deletes are free")
}

func TestUsageCounts(t *testing.T) {
	var usage objstore.S3Usage
	assert.Equal(t, "", usage.String())
	assert.Equal(t, 0, usage.Total())

	usage.Record(objstore.OpPutObject)
	usage.Record(objstore.OpGetObject)
	usage.Record(objstore.OpGetObject)

	assert.Equal(t, 2, usage.Calls(objstore.OpGetObject))
	assert.Equal(t, 3, usage.Total())
	assert.Equal(t, "GetObject=2 PutObject=1", usage.String())
}
