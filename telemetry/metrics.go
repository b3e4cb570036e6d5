// Package telemetry exposes the core's Prometheus metrics: agreement
// transitions, outbound send attempts, and idempotent-dispatch dedup
// hits. It mirrors the teacher's single-registry-plus-bind pattern,
// scaled down to this core's one concern instead of the private/http/
// group/client split a full node needs.
package telemetry

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	fluxlog "github.com/fluxmarket/core/common/log"
)

var (
	// Registry is the registry this package's collectors live in and the
	// one Start serves. The gRPC interceptor metrics set up by
	// grpc_prometheus.Register belong to prometheus' default registry, not
	// this one.
	Registry = prometheus.NewRegistry()

	// TransitionsTotal counts every attempted lifecycle transition the
	// façade applies, labeled by the operation name and whether it
	// succeeded.
	TransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agreement_transitions_total",
		Help: "Number of agreement lifecycle transitions attempted by the façade",
	}, []string{"operation", "result"})

	// SendAttemptsTotal counts every completed wire-message send the
	// protocol adapter makes, labeled by message kind and outcome; the
	// retries inside one send are counted once, as part of that send.
	SendAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_send_attempts_total",
		Help: "Number of outbound protocol message send attempts",
	}, []string{"kind", "result"})

	// SendLatencySeconds observes the time a successful send (including
	// any retries) took end to end, labeled by message kind.
	SendLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "protocol_send_latency_seconds",
		Help:    "Latency of a completed outbound protocol send, including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// DedupHitsTotal counts inbound messages the idempotency cache
	// recognized as a retransmission rather than applying again.
	DedupHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_dedup_hits_total",
		Help: "Number of inbound messages short-circuited by the idempotency cache",
	}, []string{"kind"})

	// ActiveWaiters gauges how many WaitForApproval callers are
	// currently blocked on a notifier.
	ActiveWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agreement_wait_callers",
		Help: "Number of callers currently blocked in WaitForApproval",
	})

	bound sync.Once
)

func bindMetrics(l fluxlog.Logger) {
	collectorsList := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		TransitionsTotal,
		SendAttemptsTotal,
		SendLatencySeconds,
		DedupHitsTotal,
		ActiveWaiters,
	}
	for _, c := range collectorsList {
		if err := Registry.Register(c); err != nil {
			l.Errorw("registering metric collector", "err", err)
		}
	}
}

// Start binds this package's collectors into Registry (once) and serves
// them at /metrics on bindAddr. The returned listener is already serving
// in a background goroutine.
func Start(l fluxlog.Logger, bindAddr string) (net.Listener, error) {
	bound.Do(func() { bindMetrics(l) })

	if !strings.Contains(bindAddr, ":") {
		bindAddr = "127.0.0.1:" + bindAddr
	}
	lis, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))

	srv := &http.Server{Addr: lis.Addr().String(), ReadHeaderTimeout: 3 * time.Second, Handler: mux}
	go func() {
		l.Warnw("metrics server stopped", "err", srv.Serve(lis))
	}()
	return lis, nil
}

// ObserveTransition records the outcome of one façade operation.
func ObserveTransition(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TransitionsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveSend records one completed (possibly retried) outbound send.
func ObserveSend(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SendAttemptsTotal.WithLabelValues(kind, result).Inc()
	if err == nil {
		SendLatencySeconds.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// ObserveDedupHit records one inbound message short-circuited by the
// idempotency cache.
func ObserveDedupHit(kind string) {
	DedupHitsTotal.WithLabelValues(kind).Inc()
}
