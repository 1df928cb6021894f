package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"sync"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/logfile"
	"github.com/expreg-labs/expreg/internal/schema"
)

var (
	ErrDuplicateName     = errors.New("duplicate entry name")
	ErrNotFound          = errors.New("entry not found")
	ErrInvalidTransition = errors.New("invalid run state transition")
)

var numberedName = regexp.MustCompile(`^(.*?)(\d+)$`)

// RecordError is a load failure isolated to one record.
type RecordError struct {
	Line int
	Name string
	Err  error
}

func (e *RecordError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Name, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// EntryDiagnostic pairs a diagnostic with the entry it belongs to.
type EntryDiagnostic struct {
	Entry   string `json:"entry"`
	Section string `json:"section"`
	entry.Diagnostic
}

// Option configures a Registry.
type Option func(*Registry)

// WithSchema validates entries against s instead of the latest schema.
func WithSchema(s *schema.Schema) Option {
	return func(r *Registry) { r.parser = entry.NewParser(s) }
}

// WithLogger sets the logger used for load progress.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithTransitionHook registers fn to receive every run-state transition
// after it has been applied.
func WithTransitionHook(fn func(Transition)) Option {
	return func(r *Registry) { r.hooks = append(r.hooks, fn) }
}

// Registry owns all sections and entries of one experiment log.
type Registry struct {
	mu       sync.RWMutex
	parser   *entry.Parser
	log      *slog.Logger
	entries  map[string]*entry.Entry
	order    []*entry.Entry
	sections SectionIndex
	tracker  *Tracker
	hooks    []func(Transition)
	lastNum  map[string]int
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		parser:  entry.NewParser(nil),
		log:     slog.New(slog.DiscardHandler),
		entries: make(map[string]*entry.Entry),
		lastNum: make(map[string]int),
	}
	for _, o := range opts {
		o(r)
	}
	r.tracker = newTracker(r.Get)
	return r
}

// Schema returns the schema entries are validated against.
func (r *Registry) Schema() *schema.Schema { return r.parser.Schema() }

// Load appends every record of the log read from src. Failures of single
// records do not stop the load; they are returned together as one joined
// error of *RecordError values.
func (r *Registry) Load(src io.Reader) error {
	recs, err := logfile.Read(src)
	if err != nil {
		return err
	}
	var errs []error
	for _, rec := range recs {
		if err := r.Append(rec); err != nil {
			errs = append(errs, err)
		}
	}
	r.log.Info("log loaded",
		"entries", r.Len(),
		"sections", len(r.SectionsInOrder()),
		"diagnostics", len(r.Diagnostics()),
		"rejected", len(errs))
	return errors.Join(errs...)
}

// Append consumes one record: section headers start a section, entries are
// parsed and attached, notes are ignored.
func (r *Registry) Append(rec logfile.Record) error {
	switch rec.Kind {
	case logfile.KindSection:
		r.mu.Lock()
		r.sections.BeginSection(rec.Title)
		r.mu.Unlock()
		r.log.Debug("section", "title", rec.Title, "line", rec.Line)
		return nil
	case logfile.KindEntry:
		_, err := r.AppendEntry(rec.Text, rec.Line)
		return err
	default:
		r.log.Debug("skipping note", "line", rec.Line)
		return nil
	}
}

// AppendEntry parses raw as an entry starting at line and adds it to the
// current section.
func (r *Registry) AppendEntry(raw string, line int) (*entry.Entry, error) {
	e, err := r.parser.ParseAt(raw, line)
	if err != nil {
		return nil, &RecordError{Line: line, Err: err}
	}

	r.mu.Lock()
	if _, dup := r.entries[e.Name]; dup {
		r.mu.Unlock()
		r.log.Warn("rejecting duplicate entry", "name", e.Name, "line", e.Line)
		return nil, &RecordError{Line: e.Line, Name: e.Name, Err: ErrDuplicateName}
	}
	r.checkSequence(e)
	r.sections.Attach(e)
	r.entries[e.Name] = e
	r.order = append(r.order, e)
	r.mu.Unlock()

	for _, d := range e.Diagnostics {
		r.log.Debug("diagnostic", "entry", e.Name, "kind", d.Kind, "key", d.Key, "line", d.Line)
	}

	if e.State() == entry.StateRunning {
		r.emit(r.tracker.observe(e))
	}
	return e, nil
}

// checkSequence warns when a numbered name does not increase within its
// prefix. Must be called with mu held.
func (r *Registry) checkSequence(e *entry.Entry) {
	m := numberedName.FindStringSubmatch(e.Name)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return
	}
	if last, seen := r.lastNum[m[1]]; seen && n <= last {
		e.AddDiagnostic(entry.OutOfSequence, "", e.Line, "%s follows %s%d; names are expected to increase", e.Name, m[1], last)
		return
	}
	r.lastNum[m[1]] = n
}

// Get returns the entry with the given name.
func (r *Registry) Get(name string) (*entry.Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Lookup is Get returning ErrNotFound for unknown names.
func (r *Registry) Lookup(name string) (*entry.Entry, error) {
	e, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return e, nil
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Entries returns all entries in log order.
func (r *Registry) Entries() []*entry.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*entry.Entry(nil), r.order...)
}

// SectionsInOrder returns sections in the order their headers appeared.
func (r *Registry) SectionsInOrder() []*entry.Section {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sections.Sections()
}

// Diagnostics returns every entry diagnostic in log order.
func (r *Registry) Diagnostics() []EntryDiagnostic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []EntryDiagnostic
	for _, e := range r.order {
		for _, d := range e.Diagnostics {
			out = append(out, EntryDiagnostic{Entry: e.Name, Section: e.SectionTitle(), Diagnostic: d})
		}
	}
	return out
}

// MarkRunning makes name the active run. Any previously running entry is
// completed first.
func (r *Registry) MarkRunning(name string) ([]Transition, error) {
	trs, err := r.tracker.MarkRunning(name)
	if err != nil {
		return nil, err
	}
	r.emit(trs)
	return trs, nil
}

// Complete marks the running entry name as completed.
func (r *Registry) Complete(name string) (Transition, error) {
	tr, err := r.tracker.Complete(name)
	if err != nil {
		return Transition{}, err
	}
	r.emit([]Transition{tr})
	return tr, nil
}

// ActiveRun returns the entry currently running, if any.
func (r *Registry) ActiveRun() (*entry.Entry, bool) {
	return r.tracker.ActiveRun()
}

// Replay reapplies previously recorded transitions, e.g. from the
// provenance store. Transitions that no longer apply are skipped and
// reported in the returned error.
func (r *Registry) Replay(trs []Transition) error {
	var errs []error
	for _, tr := range trs {
		var err error
		switch tr.To {
		case entry.StateRunning:
			_, err = r.tracker.MarkRunning(tr.Name)
		case entry.StateCompleted:
			e, ok := r.Get(tr.Name)
			if ok && e.State() == entry.StateCompleted {
				continue
			}
			_, err = r.tracker.Complete(tr.Name)
		default:
			continue
		}
		if err != nil {
			r.log.Warn("skipping recorded transition", "transition", tr.String(), "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NextName returns the next unused numbered name for prefix, e.g. NEW_13
// after NEW_12. An empty prefix reuses the prefix of the last entry.
func (r *Registry) NextName(prefix string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if prefix == "" && len(r.order) > 0 {
		if m := numberedName.FindStringSubmatch(r.order[len(r.order)-1].Name); m != nil {
			prefix = m[1]
		}
	}
	next := 0
	for _, e := range r.order {
		m := numberedName.FindStringSubmatch(e.Name)
		if m == nil || m[1] != prefix {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n >= next {
			next = n + 1
		}
	}
	return prefix + strconv.Itoa(next)
}

func (r *Registry) emit(trs []Transition) {
	for _, tr := range trs {
		r.log.Info("run state changed", "entry", tr.Name, "from", tr.From.String(), "to", tr.To.String())
		for _, h := range r.hooks {
			h(tr)
		}
	}
}
