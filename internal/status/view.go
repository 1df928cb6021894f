// Package status exposes a loaded registry read-only: JSON views shared by
// the CLI and an HTTP server with a Prometheus collector.
package status

import (
	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/export"
	"github.com/expreg-labs/expreg/internal/registry"
)

// FieldView is one field as written in the log.
type FieldView struct {
	Key   string `json:"key"`
	Alias string `json:"alias,omitempty"`
	Kind  string `json:"kind"`
	Raw   string `json:"raw"`
	Line  int    `json:"line"`
}

// EntryView is the JSON form of an entry.
type EntryView struct {
	Name        string             `json:"name"`
	Section     string             `json:"section"`
	State       entry.RunState     `json:"state"`
	Marker      string             `json:"marker,omitempty"`
	Line        int                `json:"line"`
	Valid       bool               `json:"valid"`
	Fields      []FieldView        `json:"fields"`
	Config      map[string]any     `json:"config"`
	Diagnostics []entry.Diagnostic `json:"diagnostics,omitempty"`
}

// ViewEntry builds the view of e.
func ViewEntry(e *entry.Entry) EntryView {
	v := EntryView{
		Name:        e.Name,
		Section:     e.SectionTitle(),
		State:       e.State(),
		Marker:      e.Marker,
		Line:        e.Line,
		Valid:       e.Valid(),
		Fields:      make([]FieldView, 0, len(e.Fields)),
		Config:      export.Blob(e),
		Diagnostics: e.Diagnostics,
	}
	delete(v.Config, "name")
	for _, f := range e.Fields {
		v.Fields = append(v.Fields, FieldView{
			Key:   f.Key,
			Alias: f.Source,
			Kind:  f.Value.Kind.String(),
			Raw:   f.Value.Raw,
			Line:  f.Line,
		})
	}
	return v
}

// SectionSummary counts the entries of one section.
type SectionSummary struct {
	Title    string `json:"title"`
	Implicit bool   `json:"implicit,omitempty"`
	Entries  int    `json:"entries"`
}

// Summary is the registry overview served at /status and printed by
// "expreg status".
type Summary struct {
	Source        string           `json:"source,omitempty"`
	SchemaVersion string           `json:"schema_version"`
	Entries       int              `json:"entries"`
	Invalid       int              `json:"invalid"`
	Errors        int              `json:"errors"`
	Warnings      int              `json:"warnings"`
	ActiveRun     string           `json:"active_run,omitempty"`
	States        map[string]int   `json:"states"`
	Sections      []SectionSummary `json:"sections"`
}

// Summarize computes the overview of reg.
func Summarize(reg *registry.Registry, source string) Summary {
	s := Summary{
		Source:        source,
		SchemaVersion: reg.Schema().Version(),
		States:        make(map[string]int),
	}
	for _, e := range reg.Entries() {
		s.Entries++
		s.States[e.State().String()]++
		if !e.Valid() {
			s.Invalid++
		}
	}
	for _, d := range reg.Diagnostics() {
		if d.Severity == entry.SeverityError {
			s.Errors++
		} else {
			s.Warnings++
		}
	}
	if a, ok := reg.ActiveRun(); ok {
		s.ActiveRun = a.Name
	}
	for _, sec := range reg.SectionsInOrder() {
		s.Sections = append(s.Sections, SectionSummary{Title: sec.Title, Implicit: sec.Implicit, Entries: sec.Len()})
	}
	return s
}
