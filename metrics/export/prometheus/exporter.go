package prometheus

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/staynest/gatekeep"
	"github.com/staynest/gatekeep/metrics/export/internal/defs"
)

type metricsSource interface {
	MetricsSnapshot() gatekeep.MetricsSnapshot
	AuditDropped() uint64
}

// policySource is optionally implemented by sources that expose their
// admission configuration.
type policySource interface {
	Operations() []string
	Policy(operation string) (gatekeep.OperationPolicy, bool)
}

// Exporter serves engine metrics for scraping.
type Exporter struct {
	source metricsSource
}

// NewExporter reads from engine.
func NewExporter(engine *gatekeep.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource reads from any snapshot provider.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current exposition text, or "" when metrics are
// disabled and nothing was dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range defs.Counters {
		writeHeader(&b, def.Name, def.Help, "counter")
		writeSample(&b, def.Name, "", snapshot.Counters[def.ID])
	}

	for _, def := range defs.Histograms {
		writeHistogram(&b, def.Name, def.Help, defs.Cumulative(snapshot.Histograms[def.ID]), snapshot.HistogramSums[def.ID].Seconds())
	}

	writeHeader(&b, defs.AuditDroppedName, defs.AuditDroppedHelp, "counter")
	writeSample(&b, defs.AuditDroppedName, "", dropped)

	if ps, ok := p.source.(policySource); ok {
		writePolicies(&b, ps)
	}

	return b.String()
}

func writePolicies(b *strings.Builder, ps policySource) {
	ops := ps.Operations()
	if len(ops) == 0 {
		return
	}
	slices.Sort(ops)

	writeHeader(b, defs.PolicyPointsName, defs.PolicyPointsHelp, "gauge")
	for _, op := range ops {
		policy, _ := ps.Policy(op)
		writeSample(b, defs.PolicyPointsName, `operation="`+escapeLabel(op)+`"`, uint64(policy.Points))
	}

	writeHeader(b, defs.PolicyWindowName, defs.PolicyWindowHelp, "gauge")
	for _, op := range ops {
		policy, _ := ps.Policy(op)
		writeSample(b, defs.PolicyWindowName, `operation="`+escapeLabel(op)+`"`, uint64(policy.Window.Seconds()))
	}
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, labels string, value uint64) {
	b.WriteString(name)
	if labels != "" {
		b.WriteByte('{')
		b.WriteString(labels)
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64, sumSeconds float64) {
	writeHeader(b, name, help, "histogram")

	for i, le := range defs.Bounds {
		writeSample(b, name+"_bucket", `le="`+le+`"`, cumulative[i])
	}
	writeSample(b, name+"_count", "", cumulative[len(cumulative)-1])

	b.WriteString(name)
	b.WriteString("_sum ")
	b.WriteString(strconv.FormatFloat(sumSeconds, 'g', -1, 64))
	b.WriteByte('\n')
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}

func escapeLabel(v string) string {
	v = escapeHelp(v)
	return strings.ReplaceAll(v, `"`, `\"`)
}
