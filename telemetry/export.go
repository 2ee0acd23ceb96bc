package telemetry

import (
	"fmt"
	"io"
	"os"

	"github.com/VictoriaMetrics/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteMetrics writes the storage counters followed by the prometheus
// registry in the Prometheus text exposition format.
func WriteMetrics(w io.Writer) error {
	metrics.WritePrometheus(w, false)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering prometheus metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func WriteMetricsFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file %s: %w", path, err)
	}
	if err := WriteMetrics(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
