package entry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/expreg-labs/expreg/internal/schema"
)

// ErrParse marks a record whose structure cannot be read as an entry.
var ErrParse = errors.New("malformed record")

var (
	headerPattern = regexp.MustCompile(`^\s*([A-Za-z0-9][\w.\-]*)\s*:(.*)$`)
	doneLabel     = regexp.MustCompile(`(?i)\b(done|finished|completed?)\b`)
	pendingLabel  = regexp.MustCompile(`(?i)\b(next|queued|pending)\b`)
	runningLabel  = regexp.MustCompile(`(?i)\b(running|current(ly)?|now)\b`)
)

var arrows = []string{"<-", "←", "⇐"}

// Parser turns raw entry records into entries validated against a schema.
type Parser struct {
	schema *schema.Schema
}

// NewParser returns a parser for s. A nil schema means the latest schema.
func NewParser(s *schema.Schema) *Parser {
	if s == nil {
		s = schema.Default()
	}
	return &Parser{schema: s}
}

// Schema returns the schema the parser validates against.
func (p *Parser) Schema() *schema.Schema { return p.schema }

// Parse parses a record whose header is on line 1.
func (p *Parser) Parse(raw string) (*Entry, error) {
	return p.ParseAt(raw, 1)
}

// ParseAt parses a record whose first line is firstLine in the source log.
// Only a missing header is an error; every other problem becomes a
// diagnostic on the returned entry.
func (p *Parser) ParseAt(raw string, firstLine int) (*Entry, error) {
	lines := strings.Split(raw, "\n")

	hdr := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			hdr = i
			break
		}
	}
	if hdr < 0 {
		return nil, fmt.Errorf("%w: empty record", ErrParse)
	}
	m := headerPattern.FindStringSubmatch(lines[hdr])
	if m == nil {
		return nil, fmt.Errorf("%w: line %d: expected \"<name>:\" header, got %q", ErrParse, firstLine+hdr, strings.TrimSpace(lines[hdr]))
	}

	e := &Entry{
		Name:   m[1],
		Marker: strings.TrimSpace(m[2]),
		Line:   firstLine + hdr,
	}
	if st, ok := MarkerState(e.Marker); ok {
		e.SetState(st)
	}

	for i := hdr + 1; i < len(lines); i++ {
		p.parseLine(e, lines[i], firstLine+i)
	}
	p.checkRequired(e)
	p.checkBounds(e)
	return e, nil
}

func (p *Parser) parseLine(e *Entry, line string, lineNo int) {
	text := strings.TrimSpace(line)
	if text == "" || strings.HasPrefix(text, "#") {
		return
	}

	key, value, ok := splitKeyValue(text)
	if !ok {
		e.AddDiagnostic(MalformedLine, "", lineNo, "no ':' or '=' separator in %q", text)
		return
	}
	if key == "" {
		e.AddDiagnostic(MalformedLine, "", lineNo, "empty key in %q", text)
		return
	}

	rule, alias, known := p.schema.Canonical(key)
	if !known {
		msg := fmt.Sprintf("%q is not a recognized key", key)
		if since, ok := schema.Since(key); ok {
			msg += fmt.Sprintf(" in schema %s (introduced in %s)", p.schema.Version(), since)
		}
		e.AddDiagnostic(UnrecognizedField, key, lineNo, "%s", msg)
		p.store(e, Field{Key: key, Value: schema.Value{Kind: schema.KindText, Raw: value}, Line: lineNo})
		return
	}

	f := Field{Key: rule.Key, Line: lineNo}
	if alias {
		f.Source = key
		e.AddDiagnostic(DeprecatedField, key, lineNo, "%q is deprecated, use %q", key, rule.Key)
	}

	v, err := schema.Coerce(rule, value)
	if err != nil {
		e.AddDiagnostic(InvalidValue, rule.Key, lineNo, "%s: expected %s: %v", rule.Key, rule.Kind, err)
	}
	f.Value = v
	p.store(e, f)
}

// store adds f unless its key is already present, in which case the first
// value wins and a DuplicateField diagnostic is recorded.
func (p *Parser) store(e *Entry, f Field) {
	if i, dup := e.index[f.Key]; dup {
		first := e.Fields[i]
		e.AddDiagnostic(DuplicateField, f.Key, f.Line, "%s already set to %q on line %d, ignoring %q",
			f.Key, first.Value.Raw, first.Line, f.Value.Raw)
		return
	}
	e.addField(f)
}

func (p *Parser) checkRequired(e *Entry) {
	for _, r := range p.schema.Required() {
		if !e.Has(r.Key) {
			e.AddDiagnostic(MissingField, r.Key, e.Line, "required key %s is missing", r.Key)
		}
	}
}

func (p *Parser) checkBounds(e *Entry) {
	for _, b := range p.schema.Bounds() {
		lo, hasLo := e.Get(b.Min)
		hi, hasHi := e.Get(b.Max)

		switch {
		case hasLo && !hasHi:
			e.AddDiagnostic(MissingField, b.Max, e.Line, "%s is set but %s is missing", b.Min, b.Max)
		case hasHi && !hasLo:
			e.AddDiagnostic(MissingField, b.Min, e.Line, "%s is set but %s is missing", b.Max, b.Min)
		case hasLo && hasHi:
			l, lok := lo.Number()
			h, hok := hi.Number()
			if lok && hok && l >= h {
				e.AddDiagnostic(InvalidValue, b.Min, e.Line, "%s (%s) must be below %s (%s)", b.Min, lo, b.Max, hi)
			}
		case b.RequiredWhen != nil && conditionHolds(e, *b.RequiredWhen):
			for _, k := range []string{b.Min, b.Max} {
				e.AddDiagnostic(MissingField, k, e.Line, "%s is required when %s", k, b.RequiredWhen)
			}
		}
	}
}

func conditionHolds(e *Entry, c schema.Condition) bool {
	v, ok := e.Get(c.Key)
	return ok && v.Kind == schema.KindEnum && v.Enum == c.Value
}

// splitKeyValue splits on whichever of ':' or '=' comes first, unquotes the
// key, and strips an inline " #" comment and a trailing comma from the value.
func splitKeyValue(text string) (key, value string, ok bool) {
	idx := strings.IndexAny(text, ":=")
	if idx < 0 {
		return "", "", false
	}
	key = schema.Unquote(strings.TrimSpace(text[:idx]))
	value = strings.TrimSpace(text[idx+1:])
	if c := strings.Index(value, " #"); c >= 0 {
		value = strings.TrimSpace(value[:c])
	} else if strings.HasPrefix(value, "#") {
		value = ""
	}
	value = strings.TrimSpace(strings.TrimSuffix(value, ","))
	return key, value, true
}

// MarkerState interprets the free text after an entry header. An arrow or
// the word "running" marks the live run; "next"/"queued" mark a pending
// run and "done"/"finished" a completed one. Other text carries no state.
func MarkerState(marker string) (RunState, bool) {
	if marker == "" {
		return StateUnknown, false
	}
	switch {
	case doneLabel.MatchString(marker):
		return StateCompleted, true
	case pendingLabel.MatchString(marker):
		return StatePending, true
	case runningLabel.MatchString(marker):
		return StateRunning, true
	}
	for _, a := range arrows {
		if strings.Contains(marker, a) {
			return StateRunning, true
		}
	}
	return StateUnknown, false
}
