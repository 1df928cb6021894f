package status

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/registry"
)

var (
	entriesDesc = prometheus.NewDesc(
		"expreg_entries",
		"Entries in the registry by section and run state.",
		[]string{"section", "state"}, nil,
	)
	diagnosticsDesc = prometheus.NewDesc(
		"expreg_diagnostics",
		"Entry diagnostics by kind and severity.",
		[]string{"kind", "severity"}, nil,
	)
	activeDesc = prometheus.NewDesc(
		"expreg_active_run",
		"Set to 1 for the entry that is currently running.",
		[]string{"name", "section"}, nil,
	)
)

// Collector reports registry contents at scrape time.
type Collector struct {
	reg *registry.Registry
}

// NewCollector returns a collector over reg.
func NewCollector(reg *registry.Registry) *Collector {
	return &Collector{reg: reg}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- entriesDesc
	ch <- diagnosticsDesc
	ch <- activeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	type sectionState struct {
		section string
		state   entry.RunState
	}
	counts := make(map[sectionState]int)
	for _, e := range c.reg.Entries() {
		counts[sectionState{e.SectionTitle(), e.State()}]++
	}
	for k, n := range counts {
		ch <- prometheus.MustNewConstMetric(entriesDesc, prometheus.GaugeValue, float64(n), k.section, k.state.String())
	}

	type kindSeverity struct {
		kind     entry.DiagnosticKind
		severity entry.Severity
	}
	diags := make(map[kindSeverity]int)
	for _, d := range c.reg.Diagnostics() {
		diags[kindSeverity{d.Kind, d.Severity}]++
	}
	for k, n := range diags {
		ch <- prometheus.MustNewConstMetric(diagnosticsDesc, prometheus.GaugeValue, float64(n), string(k.kind), string(k.severity))
	}

	if a, ok := c.reg.ActiveRun(); ok {
		ch <- prometheus.MustNewConstMetric(activeDesc, prometheus.GaugeValue, 1, a.Name, a.SectionTitle())
	}
}
