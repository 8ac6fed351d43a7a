// Package metrics exposes the kiosk's Prometheus collectors.
package metrics

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/omnikiosk/internal/dispense"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/ratelimit"
)

const defaultCollectInterval = 10 * time.Second

var (
	screenTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_screen_transitions_total",
			Help: "Total number of screen transitions",
		},
		[]string{"from", "to"},
	)
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_payments_total",
			Help: "Payments labeled by outcome",
		},
		[]string{"outcome"},
	)
	dispenseResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_dispense_results_total",
			Help: "Dispense webhook deliveries labeled by result",
		},
		[]string{"result"},
	)
	relayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_relay_requests_total",
			Help: "Relay requests labeled by relay and response status",
		},
		[]string{"relay", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kiosk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_ratelimit_checks_total",
			Help: "Rate limit checks by backend and result",
		},
		[]string{"backend", "result"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_errors_total",
			Help: "Total number of errors split by code and severity",
		},
		[]string{"code", "severity"},
	)
	kiosksByScreen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kiosk_sessions_by_screen",
			Help: "Number of kiosks currently on each screen",
		},
		[]string{"screen"},
	)
)

func init() {
	flow.RegisterTransitionRecorder(RecordScreenTransition)
	flow.RegisterPaymentRecorder(RecordPayment)
	dispense.RegisterResultRecorder(RecordDispense)
	ratelimit.RegisterCheckRecorder(RecordRateLimitCheck)
}

// RecordScreenTransition tracks flow screen changes.
func RecordScreenTransition(from, to string) {
	screenTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

func RecordPayment(outcome string) {
	paymentsTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

func RecordDispense(result string) {
	dispenseResultsTotal.WithLabelValues(orUnknown(result)).Inc()
}

// RecordRelay counts one relay answer by status code.
func RecordRelay(relay string, status int) {
	relayRequestsTotal.WithLabelValues(orUnknown(relay), strconv.Itoa(status)).Inc()
}

// RecordHTTPRequest observes the latency of one handled request.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	httpRequestDuration.WithLabelValues(orUnknown(route), method, strconv.Itoa(status)).Observe(duration.Seconds())
}

func RecordRateLimitCheck(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	rateLimitChecksTotal.WithLabelValues(orUnknown(backend), result).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(code, severity string) {
	errorsTotal.WithLabelValues(orUnknown(code), orUnknown(severity)).Inc()
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// ScreenCollector periodically counts stored kiosk snapshots per screen.
type ScreenCollector struct {
	store    flow.Store
	interval time.Duration
	log      *slog.Logger
}

// NewScreenCollector builds a collector bound to store.
func NewScreenCollector(store flow.Store, interval time.Duration, log *slog.Logger) *ScreenCollector {
	if interval <= 0 {
		interval = defaultCollectInterval
	}
	if log == nil {
		log = slog.Default()
	}

	return &ScreenCollector{store: store, interval: interval, log: log}
}

// Run polls the store every interval until ctx is cancelled.
func (c *ScreenCollector) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Collect(ctx); err != nil {
			c.log.Warn("screen collection failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect refreshes the per-screen gauge once. Every known screen is reported, zero included.
func (c *ScreenCollector) Collect(ctx context.Context) error {
	states, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	counts := make(map[flow.Screen]int, len(flow.Screens))
	for _, st := range states {
		if st != nil {
			counts[st.Screen]++
		}
	}

	kiosksByScreen.Reset()
	for _, screen := range flow.Screens {
		kiosksByScreen.WithLabelValues(string(screen)).Set(float64(counts[screen]))
		delete(counts, screen)
	}
	for screen, count := range counts {
		kiosksByScreen.WithLabelValues(orUnknown(string(screen))).Set(float64(count))
	}

	return nil
}
