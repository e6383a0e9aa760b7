package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andy/billgrid/internal/domain"
	"github.com/andy/billgrid/internal/grid"
)

// Metrics are the gateway counters exported on the metrics endpoint
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Patches    prometheus.Counter
}

// NewMetrics creates the gateway metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billgrid",
			Subsystem: "gateway",
			Name:      "operations_total",
			Help:      "Line item persistence operations by operation and result.",
		}, []string{"op", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billgrid",
			Subsystem: "gateway",
			Name:      "operation_duration_seconds",
			Help:      "Latency of line item persistence operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Patches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "billgrid",
			Subsystem: "gateway",
			Name:      "patches_total",
			Help:      "Row patches sent in update batches.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Duration, m.Patches)
	}
	return m
}

// InstrumentedGateway records metrics around another gateway
type InstrumentedGateway struct {
	next    grid.Gateway
	metrics *Metrics
}

// Instrument wraps next so every call is counted and timed
func Instrument(next grid.Gateway, metrics *Metrics) *InstrumentedGateway {
	return &InstrumentedGateway{next: next, metrics: metrics}
}

func (g *InstrumentedGateway) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = domain.SaveErrorKindOf(err).String()
	}
	g.metrics.Operations.WithLabelValues(op, result).Inc()
	g.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (g *InstrumentedGateway) Load(ctx context.Context, billID string) ([]domain.LineItem, error) {
	start := time.Now()
	items, err := g.next.Load(ctx, billID)
	g.observe("load", start, err)
	return items, err
}

func (g *InstrumentedGateway) Create(ctx context.Context, billID string, fields domain.LineFields) (domain.LineItem, error) {
	start := time.Now()
	item, err := g.next.Create(ctx, billID, fields)
	g.observe("create", start, err)
	return item, err
}

func (g *InstrumentedGateway) Update(ctx context.Context, billID string, patches []domain.Patch) error {
	start := time.Now()
	err := g.next.Update(ctx, billID, patches)
	g.observe("update", start, err)
	if err == nil {
		g.metrics.Patches.Add(float64(len(patches)))
	}
	return err
}

func (g *InstrumentedGateway) Delete(ctx context.Context, billID string, ids []string) error {
	start := time.Now()
	err := g.next.Delete(ctx, billID, ids)
	g.observe("delete", start, err)
	return err
}

func (g *InstrumentedGateway) Duplicate(ctx context.Context, billID string, counts map[string]int) (int, error) {
	start := time.Now()
	n, err := g.next.Duplicate(ctx, billID, counts)
	g.observe("duplicate", start, err)
	return n, err
}

func (g *InstrumentedGateway) PartialUpdates() bool {
	return g.next.PartialUpdates()
}
