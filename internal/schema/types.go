package schema

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the declared value kind of a field.
type Kind int

const (
	// KindText marks a value that was kept as raw text, either because its
	// key is unrecognized or because it could not be coerced.
	KindText Kind = iota
	KindInt
	KindFloat
	KindEnum
	KindPair
)

// String returns the lower-case kind name used in diagnostics and exports.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindPair:
		return "pair"
	default:
		return "text"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Requirement says whether a key must be present in every entry.
type Requirement int

const (
	Optional Requirement = iota
	Required
	// Deprecated keys are accepted as aliases of another key.
	Deprecated
)

// String returns the requirement name.
func (r Requirement) String() string {
	switch r {
	case Required:
		return "required"
	case Deprecated:
		return "deprecated"
	default:
		return "optional"
	}
}

// MarshalText encodes the requirement by name.
func (r Requirement) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Rule describes one recognized key.
type Rule struct {
	Key         string      `json:"key"`
	Kind        Kind        `json:"kind"`
	Requirement Requirement `json:"requirement"`
	AliasOf     string      `json:"alias_of,omitempty"` // canonical key, set only for Deprecated rules
	Enum        []string    `json:"enum,omitempty"`     // allowed values for KindEnum
	Since       string      `json:"since"`              // schema version that introduced the key
	Description string      `json:"description,omitempty"`
}

// Condition is satisfied when an entry's enum field Key equals Value.
type Condition struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// String renders the condition as key=value.
func (c Condition) String() string { return c.Key + "=" + c.Value }

// BoundPair ties two float keys together: both present or both absent,
// with Min strictly below Max. When RequiredWhen is set the pair must be
// present whenever the condition holds.
type BoundPair struct {
	Min          string     `json:"min"`
	Max          string     `json:"max"`
	RequiredWhen *Condition `json:"required_when,omitempty"`
}

// Pair is a hidden-layer width and depth, e.g. "256 x 2".
type Pair struct {
	Width int `json:"width" yaml:"width"`
	Depth int `json:"depth" yaml:"depth"`
}

// Layers expands the pair into one width per layer.
func (p Pair) Layers() []int {
	out := make([]int, p.Depth)
	for i := range out {
		out[i] = p.Width
	}
	return out
}

// String renders the pair in the log's "W x D" form.
func (p Pair) String() string { return fmt.Sprintf("%d x %d", p.Width, p.Depth) }

// Value is a field value. Raw always holds the text as it appeared in the
// log; the typed member matching Kind is set when coercion succeeded.
type Value struct {
	Kind  Kind
	Raw   string
	Int   int64
	Float float64
	Enum  string
	Pair  Pair
}

// Interface returns the typed Go value, or the raw text for KindText.
func (v Value) Interface() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindEnum:
		return v.Enum
	case KindPair:
		return v.Pair
	default:
		return v.Raw
	}
}

// Number returns the value as a float64 for integer and float kinds.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

// String returns a normalized rendering of the value.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		if math.IsInf(v.Float, 1) {
			return "inf"
		}
		if math.IsInf(v.Float, -1) {
			return "-inf"
		}
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindEnum:
		return v.Enum
	case KindPair:
		return v.Pair.String()
	default:
		return v.Raw
	}
}
