package telemetry

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// StorageOp counts one facade operation against a backend.
func StorageOp(backend, op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`storage_operations_total{backend=%q,op=%q}`, backend, op)).Inc()
}

// StorageError counts one failed facade operation against a backend.
func StorageError(backend, op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`storage_errors_total{backend=%q,op=%q}`, backend, op)).Inc()
}

func writtenBytes(backend string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`storage_written_bytes_total{backend=%q}`, backend))
}

func readBytes(backend string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`storage_read_bytes_total{backend=%q}`, backend))
}

// CountWrites returns a writer that adds the bytes written through w to the
// backend's written bytes counter.
func CountWrites(w io.WriteCloser, backend string) io.WriteCloser {
	return &countingWriter{WriteCloser: w, counter: writtenBytes(backend)}
}

// CountReads returns a reader that adds the bytes read through r to the
// backend's read bytes counter.
func CountReads(r io.ReadCloser, backend string) io.ReadCloser {
	return &countingReader{ReadCloser: r, counter: readBytes(backend)}
}

type countingWriter struct {
	io.WriteCloser
	counter *metrics.Counter
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.WriteCloser.Write(p)
	w.counter.Add(n)
	return n, err
}

// Abort forwards to the wrapped writer when it can discard its content, and
// closes it otherwise.
func (w *countingWriter) Abort() error {
	if a, ok := w.WriteCloser.(interface{ Abort() error }); ok {
		return a.Abort()
	}
	return w.WriteCloser.Close()
}

type countingReader struct {
	io.ReadCloser
	counter *metrics.Counter
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.counter.Add(n)
	return n, err
}
