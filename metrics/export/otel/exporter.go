package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/metrics/export/internal/defs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() gatekeep.MetricsSnapshot
	AuditDropped() uint64
}

type policySource interface {
	Operations() []string
	Policy(operation string) (gatekeep.OperationPolicy, bool)
}

type observedCounter struct {
	id         gatekeep.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      gatekeep.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// Exporter keeps the instrument registration alive until Close.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	policyPoints metric.Int64ObservableGauge
}

func NewExporter(meter metric.Meter, engine *gatekeep.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers instruments on meter for source. If
// source also reports admission policies, a per-operation points gauge is
// published with an "operation" attribute.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(defs.Counters)),
		histograms: make([]observedHistogram, 0, len(defs.Histograms)),
	}
	observables := make([]metric.Observable, 0, len(defs.Counters)+len(defs.Histograms)*10+2)

	for _, def := range defs.Counters {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range defs.Histograms {
		h := observedHistogram{id: def.ID}
		for i, suffix := range defs.BoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countIns, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		h.count = countIns
		observables = append(observables, countIns)

		sumIns, err := meter.Float64ObservableGauge(def.Name+"_sum",
			metric.WithDescription("Histogram total observed duration."), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create histogram sum gauge %s_sum: %w", def.Name, err)
		}
		h.sum = sumIns
		observables = append(observables, sumIns)
		e.histograms = append(e.histograms, h)
	}

	dropped, err := meter.Int64ObservableCounter(defs.AuditDroppedName, metric.WithDescription(defs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	if _, ok := source.(policySource); ok {
		points, err := meter.Int64ObservableGauge(defs.PolicyPointsName, metric.WithDescription(defs.PolicyPointsHelp))
		if err != nil {
			return nil, fmt.Errorf("create policy gauge: %w", err)
		}
		e.policyPoints = points
		observables = append(observables, points)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration

	return e, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := defs.Cumulative(snapshot.Histograms[h.id])
		for i := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		observer.ObserveFloat64(h.sum, snapshot.HistogramSums[h.id].Seconds())
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if ps, ok := e.source.(policySource); ok && e.policyPoints != nil {
		for _, op := range ps.Operations() {
			policy, _ := ps.Policy(op)
			observer.ObserveInt64(e.policyPoints, int64(policy.Points),
				metric.WithAttributes(attribute.String("operation", op)))
		}
	}
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
