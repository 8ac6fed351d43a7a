package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/Proton-105/omnikiosk/internal/health"
)

// ErrShuttingDown is returned by readiness once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// Probes answers liveness and readiness from the dependency checker.
type Probes struct {
	checker  *health.Checker
	log      *slog.Logger
	draining atomic.Bool
}

// NewProbes creates probes over checker. A nil checker makes readiness depend on shutdown only.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness reports that the process is serving.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness fails while draining or when any dependency check fails.
func (p *Probes) Readiness(ctx context.Context) error {
	_, err := p.Report(ctx)
	return err
}

// Report runs the dependency checks and returns them along with the readiness verdict.
func (p *Probes) Report(ctx context.Context) (health.Report, error) {
	if p.draining.Load() {
		return health.Report{Components: map[string]string{}}, ErrShuttingDown
	}

	if p.checker == nil {
		return health.Report{Healthy: true, Components: map[string]string{}}, nil
	}

	report := p.checker.Check(ctx)
	if report.Healthy {
		return report, nil
	}

	failed := make([]string, 0, len(report.Components))
	for name, status := range report.Components {
		if status != "OK" {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)

	return report, errors.New("unhealthy: " + strings.Join(failed, ", "))
}

// Drain makes readiness fail so load balancers stop routing before the listener closes.
func (p *Probes) Drain() {
	if !p.draining.Swap(true) {
		p.log.Info("readiness draining")
	}
}
