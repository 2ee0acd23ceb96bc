package objstore

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
)

// S3Op names an S3 API call.
type S3Op string

const (
	OpGetObject     S3Op = "GetObject"
	OpHeadObject    S3Op = "HeadObject"
	OpListObjectsV2 S3Op = "ListObjectsV2"
	OpPutObject     S3Op = "PutObject"
	OpCopyObject    S3Op = "CopyObject"
	OpDeleteObject  S3Op = "DeleteObject"
)

// Request prices per 1,000 calls in microdollars, S3 Standard tier.
const (
	tier2PerThousand = 400   // GET, HEAD
	tier1PerThousand = 5_000 // PUT, COPY, LIST
)

func (op S3Op) pricePerThousand() int {
	switch op {
	case OpGetObject, OpHeadObject:
		return tier2PerThousand
	case OpListObjectsV2, OpPutObject, OpCopyObject:
		return tier1PerThousand
	default:
		// DELETE is free.
		return 0
	}
}

// S3Usage tallies the calls made by one S3 backend and mirrors them into the
// s3_requests_total counter. The zero value is ready to use.
type S3Usage struct {
	calls map[S3Op]int
}

func (u *S3Usage) Record(op S3Op) {
	if u.calls == nil {
		u.calls = make(map[S3Op]int)
	}
	u.calls[op]++
	metrics.GetOrCreateCounter(fmt.Sprintf(`s3_requests_total{op=%q}`, op)).Inc()
}

func (u *S3Usage) Calls(op S3Op) int {
	return u.calls[op]
}

// Total returns the number of calls of every kind.
func (u *S3Usage) Total() int {
	total := 0
	for _, n := range u.calls {
		total += n
	}
	return total
}

// String lists the per operation counts in a stable order, e.g.
// "GetObject=2 PutObject=1".
func (u *S3Usage) String() string {
	s := ""
	for _, op := range slices.Sorted(maps.Keys(u.calls)) {
		if s != "" {
			s += " "
		}
		s += fmt.Sprintf("%s=%d", op, u.calls[op])
	}
	return s
}

// Cost estimates the request charges in USD. Amounts under a cent are shown
// unrounded, e.g. "$0.0000004" for a single GET.
func (u *S3Usage) Cost() string {
	// Prices are microdollars per thousand calls, so the sum is in nanodollars.
	nanos := 0
	for op, n := range u.calls {
		nanos += n * op.pricePerThousand()
	}

	if nanos >= 10_000_000 {
		return fmt.Sprintf("$%d.%02d", nanos/1_000_000_000, (nanos%1_000_000_000)/10_000_000)
	}
	return "$" + strconv.FormatFloat(float64(nanos)/1e9, 'f', -1, 64)
}
