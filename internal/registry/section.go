package registry

import "github.com/expreg-labs/expreg/internal/entry"

// UnsectionedTitle names the implicit section for entries that appear
// before the first header.
const UnsectionedTitle = "unsectioned"

// SectionIndex groups entries under the most recent section header.
type SectionIndex struct {
	sections []*entry.Section
	current  *entry.Section
}

// BeginSection starts a new section; later entries attach to it.
func (x *SectionIndex) BeginSection(title string) *entry.Section {
	s := &entry.Section{Title: title}
	x.sections = append(x.sections, s)
	x.current = s
	return s
}

// CurrentSection returns the section new entries attach to, creating the
// implicit one if no header has been seen.
func (x *SectionIndex) CurrentSection() *entry.Section {
	if x.current == nil {
		s := &entry.Section{Title: UnsectionedTitle, Implicit: true}
		x.sections = append(x.sections, s)
		x.current = s
	}
	return x.current
}

// Attach adds e to the current section and sets its back-reference.
func (x *SectionIndex) Attach(e *entry.Entry) {
	s := x.CurrentSection()
	s.Entries = append(s.Entries, e)
	e.Section = s
}

// Sections returns sections in the order they were begun.
func (x *SectionIndex) Sections() []*entry.Section {
	return append([]*entry.Section(nil), x.sections...)
}
