package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/metrics/export/internaldefs"
)

// Source is what the exporter reads. *goGuard.Engine satisfies it.
type Source interface {
	MetricsSnapshot() goGuard.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine counters in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New returns an exporter reading from source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// ServeHTTP writes the current exposition.
func (p *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(p.Render()))
}

// Render returns the exposition text. It is empty while metrics are disabled
// and nothing has been dropped.
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

	for _, def := range internaldefs.CounterDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		writeSample(&b, def.Name, "", snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(&b, def, internaldefs.CumulativeBuckets(raw))
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped because the dispatcher buffer was full.", "counter")
	writeSample(&b, internaldefs.AuditDroppedName, "", dropped)

	return b.String()
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
	b.WriteString(labels)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.HistogramDef, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, def.Name+"_bucket", `{le="`+le+`"}`, cumulative[i])
	}
	// Durations are bucketed only; the sum is not tracked.
	writeSample(b, def.Name+"_sum", "", 0)
	writeSample(b, def.Name+"_count", "", cumulative[internaldefs.BucketCount-1])
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
