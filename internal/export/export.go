// Package export renders a registry entry as the plain key/value
// configuration a training driver consumes, and checks that configuration
// against an embedded JSON schema before it leaves the registry.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/schema"
)

// Format selects the output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatEnv  Format = "env"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatYAML, FormatJSON, FormatEnv:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want yaml, json or env)", s)
	}
}

// ErrInvalid is returned by Write when the blob fails schema validation.
var ErrInvalid = errors.New("configuration does not satisfy the export schema")

// InvalidError carries the schema issues behind ErrInvalid.
type InvalidError struct {
	Name   string
	Issues []ValidationIssue
}

func (e *InvalidError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.String()
	}
	return fmt.Sprintf("%s: %v: %s", e.Name, ErrInvalid, strings.Join(parts, "; "))
}

func (e *InvalidError) Unwrap() error { return ErrInvalid }

// plain converts a value into its JSON/YAML-friendly form. Infinities
// become the strings "inf" and "-inf"; pairs expand to one width per layer.
func plain(v schema.Value) any {
	switch v.Kind {
	case schema.KindFloat:
		if math.IsInf(v.Float, 0) {
			return v.String()
		}
		return v.Float
	case schema.KindPair:
		return v.Pair.Layers()
	default:
		return v.Interface()
	}
}

// Blob returns the entry as a flat map including its name.
func Blob(e *entry.Entry) map[string]any {
	out := make(map[string]any, len(e.Fields)+1)
	out["name"] = e.Name
	for _, f := range e.Fields {
		out[f.Key] = plain(f.Value)
	}
	return out
}

// Check validates the entry's blob and returns an *InvalidError on failure.
func Check(e *entry.Entry) error {
	res, err := Validate(Blob(e))
	if err != nil {
		return err
	}
	if !res.Valid {
		return &InvalidError{Name: e.Name, Issues: res.Issues}
	}
	return nil
}

// Write validates e and encodes it to w in format f.
func Write(w io.Writer, e *entry.Entry, f Format) error {
	if err := Check(e); err != nil {
		return err
	}
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Blob(e))
	case FormatEnv:
		return writeEnv(w, e)
	default:
		return writeYAML(w, e)
	}
}

// writeYAML keeps the keys in log order, which a map would lose.
func writeYAML(w io.Writer, e *entry.Entry) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k string, v any) error {
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return fmt.Errorf("encoding %s: %w", k, err)
		}
		if _, list := v.([]int); list {
			val.Style = yaml.FlowStyle
		}
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
		return nil
	}
	if err := add("name", e.Name); err != nil {
		return err
	}
	for _, f := range e.Fields {
		if err := add(f.Key, plain(f.Value)); err != nil {
			return err
		}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("writing YAML: %w", err)
	}
	return enc.Close()
}

func writeEnv(w io.Writer, e *entry.Entry) error {
	line := func(k, v string) error {
		_, err := fmt.Fprintf(w, "%s=%s\n", strings.ToUpper(k), v)
		return err
	}
	if err := line("name", e.Name); err != nil {
		return err
	}
	for _, f := range e.Fields {
		v := f.Value.String()
		if f.Value.Kind == schema.KindPair {
			layers := f.Value.Pair.Layers()
			parts := make([]string, len(layers))
			for i, l := range layers {
				parts[i] = strconv.Itoa(l)
			}
			v = strings.Join(parts, ",")
		}
		if err := line(f.Key, v); err != nil {
			return err
		}
	}
	return nil
}
