package entry

import (
	"fmt"
	"sync/atomic"

	"github.com/expreg-labs/expreg/internal/schema"
)

// RunState is the lifecycle state of an experiment.
type RunState int32

const (
	StateUnknown RunState = iota
	StatePending
	StateRunning
	StateCompleted
)

// String returns the lower-case state name.
func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ParseRunState converts a state name back into a RunState.
func ParseRunState(s string) (RunState, error) {
	switch s {
	case "unknown":
		return StateUnknown, nil
	case "pending":
		return StatePending, nil
	case "running":
		return StateRunning, nil
	case "completed":
		return StateCompleted, nil
	default:
		return StateUnknown, fmt.Errorf("unknown run state %q", s)
	}
}

// MarshalText encodes the state by name.
func (s RunState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *RunState) UnmarshalText(b []byte) error {
	st, err := ParseRunState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Severity ranks diagnostics.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind string

const (
	UnrecognizedField DiagnosticKind = "UnrecognizedField"
	MissingField      DiagnosticKind = "MissingField"
	InvalidValue      DiagnosticKind = "InvalidValue"
	DuplicateField    DiagnosticKind = "DuplicateField"
	MalformedLine     DiagnosticKind = "MalformedLine"
	DeprecatedField   DiagnosticKind = "DeprecatedField"
	OutOfSequence     DiagnosticKind = "OutOfSequence"
)

// Severity returns the default severity of the kind.
func (k DiagnosticKind) Severity() Severity {
	switch k {
	case UnrecognizedField, DeprecatedField, OutOfSequence:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Diagnostic is a non-fatal issue recorded against an entry.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind" yaml:"kind"`
	Severity Severity       `json:"severity" yaml:"severity"`
	Key      string         `json:"key,omitempty" yaml:"key,omitempty"`
	Line     int            `json:"line,omitempty" yaml:"line,omitempty"`
	Message  string         `json:"message" yaml:"message"`
}

// String renders the diagnostic on one line.
func (d Diagnostic) String() string {
	loc := ""
	if d.Line > 0 {
		loc = fmt.Sprintf("line %d: ", d.Line)
	}
	return fmt.Sprintf("%s%s %s: %s", loc, d.Severity, d.Kind, d.Message)
}

// Field is one key/value line of an entry. Source holds the key as written
// when it differs from Key (deprecated aliases).
type Field struct {
	Key    string
	Source string
	Value  schema.Value
	Line   int
}

// Section is a titled group of entries in log order. It holds references
// only; entries are owned by the registry.
type Section struct {
	Title    string
	Implicit bool
	Entries  []*Entry
}

// Len returns the number of entries in the section.
func (s *Section) Len() int { return len(s.Entries) }

// Entry is one named experiment configuration.
type Entry struct {
	Name        string
	Marker      string // free text after the header colon
	Line        int
	Fields      []Field
	Diagnostics []Diagnostic
	Section     *Section

	index map[string]int
	state atomic.Int32
}

// Get returns the value stored under a canonical key.
func (e *Entry) Get(key string) (schema.Value, bool) {
	i, ok := e.index[key]
	if !ok {
		return schema.Value{}, false
	}
	return e.Fields[i].Value, true
}

// Has reports whether key is present.
func (e *Entry) Has(key string) bool {
	_, ok := e.index[key]
	return ok
}

// Keys returns field keys in log order.
func (e *Entry) Keys() []string {
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.Key
	}
	return keys
}

// State returns the current run state. Safe for concurrent use.
func (e *Entry) State() RunState { return RunState(e.state.Load()) }

// SetState overwrites the run state. Only the registry's run tracker calls
// this outside of parsing.
func (e *Entry) SetState(s RunState) { e.state.Store(int32(s)) }

// Valid reports whether the entry carries no error-severity diagnostics.
func (e *Entry) Valid() bool {
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			return false
		}
	}
	return true
}

// HasDiagnostic reports whether a diagnostic of kind exists, optionally
// restricted to key when key is non-empty.
func (e *Entry) HasDiagnostic(kind DiagnosticKind, key string) bool {
	for _, d := range e.Diagnostics {
		if d.Kind == kind && (key == "" || d.Key == key) {
			return true
		}
	}
	return false
}

// SectionTitle returns the owning section's title, or "" when detached.
func (e *Entry) SectionTitle() string {
	if e.Section == nil {
		return ""
	}
	return e.Section.Title
}

// AddDiagnostic appends a diagnostic using the kind's default severity.
func (e *Entry) AddDiagnostic(kind DiagnosticKind, key string, line int, format string, args ...any) {
	e.Diagnostics = append(e.Diagnostics, Diagnostic{
		Kind:     kind,
		Severity: kind.Severity(),
		Key:      key,
		Line:     line,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (e *Entry) addField(f Field) {
	if e.index == nil {
		e.index = make(map[string]int)
	}
	e.index[f.Key] = len(e.Fields)
	e.Fields = append(e.Fields, f)
}
