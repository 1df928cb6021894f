package scaffold

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/registry"
	"github.com/expreg-labs/expreg/internal/schema"
)

//go:embed templates/entry.tmpl
var entryTemplate string

var tmpl = template.Must(template.New("entry").Parse(entryTemplate))

// sectionRule is the separator written around new section titles.
const sectionRule = "==============="

// FieldLine is one "key: value" line of the generated entry.
type FieldLine struct {
	Key   string
	Value string
}

// EntryData holds the template variables.
type EntryData struct {
	Name    string
	Marker  string
	Section string // when set, a section header precedes the entry
	Rule    string
	Fields  []FieldLine
}

// Options controls Generate.
type Options struct {
	Name    string   // explicit name; default is the registry's next name for Prefix
	Prefix  string   // name prefix, e.g. "NEW_"
	From    string   // base entry; default is the last entry of the log
	Section string   // start a new section with this title
	Marker  string   // header marker, e.g. "<-- next"
	Set     []string // key=value overrides applied in order
}

// Result holds the outcome of a scaffold generation.
type Result struct {
	Name     string
	Text     string
	Warnings []string
}

// Generate renders a new entry for reg. The text is parsed back with the
// registry's schema; any diagnostics are returned as warnings.
func Generate(reg *registry.Registry, opts Options) (*Result, error) {
	name := opts.Name
	if name == "" {
		name = reg.NextName(opts.Prefix)
	}
	if _, exists := reg.Get(name); exists {
		return nil, fmt.Errorf("%s: %w", name, registry.ErrDuplicateName)
	}

	sch := reg.Schema()
	fields, err := baseFields(reg, opts.From)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: name}
	for _, kv := range opts.Set {
		key, value, ok := strings.Cut(kv, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, fmt.Errorf("override %q: want key=value", kv)
		}
		if rule, _, known := sch.Canonical(key); known {
			key = rule.Key
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is not in schema %s", key, sch.Version()))
		}
		fields = setField(fields, key, value)
	}

	data := EntryData{
		Name:    name,
		Marker:  opts.Marker,
		Section: opts.Section,
		Rule:    sectionRule,
		Fields:  fields,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("executing entry template: %w", err)
	}
	res.Text = strings.TrimRight(buf.String(), "\n") + "\n"

	body := res.Text
	firstLine := 1
	if opts.Section != "" {
		// Skip the section header so the parser sees the entry alone.
		idx := strings.Index(body, name+":")
		firstLine += strings.Count(body[:idx], "\n")
		body = body[idx:]
	}
	e, err := entry.NewParser(sch).ParseAt(body, firstLine)
	if err != nil {
		return nil, fmt.Errorf("generated entry does not parse: %w", err)
	}
	for _, d := range e.Diagnostics {
		res.Warnings = append(res.Warnings, d.String())
	}
	return res, nil
}

// baseFields copies the raw fields of the base entry, or returns the
// required keys with neutral values when the log is empty.
func baseFields(reg *registry.Registry, from string) ([]FieldLine, error) {
	var base *entry.Entry
	if from != "" {
		e, err := reg.Lookup(from)
		if err != nil {
			return nil, err
		}
		base = e
	} else if all := reg.Entries(); len(all) > 0 {
		base = all[len(all)-1]
	}

	var out []FieldLine
	if base != nil {
		for _, f := range base.Fields {
			out = append(out, FieldLine{Key: f.Key, Value: f.Value.Raw})
		}
		return out, nil
	}
	for _, r := range reg.Schema().Required() {
		out = append(out, FieldLine{Key: r.Key, Value: neutralValue(r)})
	}
	return out, nil
}

func neutralValue(r schema.Rule) string {
	switch r.Kind {
	case schema.KindEnum:
		if len(r.Enum) > 0 {
			return "'" + r.Enum[0] + "'"
		}
	case schema.KindPair:
		return "256 x 2"
	}
	return "0"
}

func setField(fields []FieldLine, key, value string) []FieldLine {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, FieldLine{Key: key, Value: value})
}

// Append writes text to the end of the log at path, separated from the
// previous record by one blank line.
func Append(path, text string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sep, err := separator(f)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(sep + text); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// separator returns the newlines needed so that the file ends with a blank
// line before the appended text.
func separator(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	size := info.Size()
	if size == 0 {
		return "", nil
	}
	n := int64(2)
	if size < n {
		n = size
	}
	tail := make([]byte, n)
	if _, err := f.ReadAt(tail, size-n); err != nil && err != io.EOF {
		return "", fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	switch {
	case bytes.HasSuffix(tail, []byte("\n\n")):
		return "", nil
	case bytes.HasSuffix(tail, []byte("\n")):
		return "\n", nil
	default:
		return "\n\n", nil
	}
}
