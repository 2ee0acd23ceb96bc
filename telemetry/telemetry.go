package telemetry

import (
	"net/http"
	"net/http/httptrace"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(httpInFlight)
	prometheus.MustRegister(httpDuration)
	prometheus.MustRegister(httpQueueTime)
}

var (
	// Transport level metrics for remote storage clients

	httpInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storage_http_in_flight_requests",
			Help: "Current number of in-flight storage HTTP requests",
		},
		[]string{"client"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_http_duration_seconds",
			Help:    "Storage HTTP request duration distributions",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"client", "code"},
	)

	httpQueueTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_http_queue_seconds",
			Help:    "Time spent waiting for a connection before a storage request starts",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"client"},
	)
)

// MetricsTransport records in-flight requests, connection wait time and
// request durations for an HTTP based storage client such as S3.
type MetricsTransport struct {
	name     string
	wrapped  http.RoundTripper
	inFlight int64
}

func NewMetricsTransport(name string, wrapped http.RoundTripper) *MetricsTransport {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}
	return &MetricsTransport{
		name:    name,
		wrapped: wrapped,
	}
}

func (t *MetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	httpInFlight.WithLabelValues(t.name).Set(float64(atomic.AddInt64(&t.inFlight, 1)))
	defer func() {
		httpInFlight.WithLabelValues(t.name).Set(float64(atomic.AddInt64(&t.inFlight, -1)))
	}()

	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) {
			httpQueueTime.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := t.wrapped.RoundTrip(req)
	if err != nil {
		httpDuration.WithLabelValues(t.name, "error").Observe(time.Since(start).Seconds())
		return nil, err
	}

	httpDuration.WithLabelValues(t.name, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())
	return resp, nil
}

var _ http.RoundTripper = (*MetricsTransport)(nil)
