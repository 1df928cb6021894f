package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/schema"
)

func loadSample(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", "experiments.log"))
	if err != nil {
		t.Fatalf("opening sample log: %v", err)
	}
	defer f.Close()

	r := New(opts...)
	if err := r.Load(f); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return r
}

func entryBlock(name, marker string) string {
	return fmt.Sprintf("%s: %s\n    base_reward: 0\n    rmse_factor: 1\n    controller_mode: absolute\n", name, marker)
}

func TestLoad_SampleLog(t *testing.T) {
	old, err := schema.ForVersion(schema.V1_0)
	if err != nil {
		t.Fatal(err)
	}
	r := loadSample(t, WithSchema(old))

	entries := r.Entries()
	if len(entries) != 13 {
		t.Fatalf("entries = %d, want 13", len(entries))
	}
	for i, e := range entries {
		if want := fmt.Sprintf("NEW_%d", i); e.Name != want {
			t.Errorf("entries[%d] = %s, want %s", i, e.Name, want)
		}
	}

	sections := r.SectionsInOrder()
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	if got, want := strings.Join(titles, "|"), "unsectioned|HELLO WORLD|MEM UNITS"; got != want {
		t.Errorf("sections = %s, want %s", got, want)
	}
	if !sections[0].Implicit {
		t.Error("first section should be implicit")
	}

	var running []string
	for _, e := range entries {
		if e.State() == entry.StateRunning {
			running = append(running, e.Name)
		}
	}
	if len(running) != 1 || running[0] != "NEW_12" {
		t.Errorf("running = %v, want [NEW_12]", running)
	}
	if a, ok := r.ActiveRun(); !ok || a.Name != "NEW_12" {
		t.Errorf("ActiveRun() = %v, %v", a, ok)
	}

	unrecognized := map[string]bool{}
	for _, d := range r.Diagnostics() {
		if d.Kind == entry.UnrecognizedField {
			unrecognized[d.Key] = true
		}
	}
	if !unrecognized["areg_factor"] || !unrecognized["nreg_factor"] {
		t.Errorf("expected UnrecognizedField for areg_factor and nreg_factor, got %v", unrecognized)
	}
}

func TestLoad_SampleLogLatestSchemaIsClean(t *testing.T) {
	r := loadSample(t)
	if d := r.Diagnostics(); len(d) != 0 {
		t.Errorf("unexpected diagnostics: %v", d)
	}
	e, ok := r.Get("NEW_0")
	if !ok {
		t.Fatal("NEW_0 missing")
	}
	if v, _ := e.Get("start_steps"); v.Int != 10000 {
		t.Errorf("NEW_0 start_steps = %d, want 10000", v.Int)
	}
	if v, _ := e.Get("hidden_sizes"); v.Pair != (schema.Pair{Width: 256, Depth: 2}) {
		t.Errorf("NEW_0 hidden_sizes = %v", v.Pair)
	}
	if e.SectionTitle() != UnsectionedTitle {
		t.Errorf("NEW_0 section = %q", e.SectionTitle())
	}
}

func TestSections_OnlyFollowingEntries(t *testing.T) {
	log := "==========\nHELLO WORLD\n==========\n\n" +
		entryBlock("NEW_4", "") + "\n" + entryBlock("NEW_5", "") +
		"\n==========\nMEM UNITS\n==========\n\n" +
		entryBlock("NEW_9", "") + "\n" + entryBlock("NEW_10", "")

	r := New()
	if err := r.Load(strings.NewReader(log)); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	sections := r.SectionsInOrder()
	if len(sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(sections))
	}
	check := func(s *entry.Section, title string, names ...string) {
		t.Helper()
		if s.Title != title {
			t.Errorf("title = %q, want %q", s.Title, title)
		}
		if s.Len() != len(names) {
			t.Fatalf("%s has %d entries, want %d", title, s.Len(), len(names))
		}
		for i, n := range names {
			if s.Entries[i].Name != n {
				t.Errorf("%s[%d] = %s, want %s", title, i, s.Entries[i].Name, n)
			}
			if s.Entries[i].Section != s {
				t.Errorf("%s back-reference wrong", n)
			}
		}
	}
	check(sections[0], "HELLO WORLD", "NEW_4", "NEW_5")
	check(sections[1], "MEM UNITS", "NEW_9", "NEW_10")
}

func TestAppend_DuplicateName(t *testing.T) {
	log := entryBlock("NEW_1", "") + "\n" + entryBlock("NEW_2", "") + "\n" + entryBlock("NEW_1", "") + "\n" + entryBlock("NEW_3", "")

	r := New()
	err := r.Load(strings.NewReader(log))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Load error = %v, want ErrDuplicateName", err)
	}
	var rec *RecordError
	if !errors.As(err, &rec) || rec.Name != "NEW_1" || rec.Line != 11 {
		t.Errorf("RecordError = %+v", rec)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3 (load continues past the duplicate)", r.Len())
	}
	if _, ok := r.Get("NEW_3"); !ok {
		t.Error("NEW_3 should load after the duplicate")
	}
}

func TestMarkRunning_CompletesPrevious(t *testing.T) {
	r := loadSample(t)

	trs, err := r.MarkRunning("NEW_3")
	if err != nil {
		t.Fatalf("MarkRunning error: %v", err)
	}
	if len(trs) != 2 {
		t.Fatalf("transitions = %v, want 2", trs)
	}
	if trs[0].Name != "NEW_12" || trs[0].From != entry.StateRunning || trs[0].To != entry.StateCompleted {
		t.Errorf("first transition = %s", trs[0])
	}
	if trs[1].Name != "NEW_3" || trs[1].From != entry.StateUnknown || trs[1].To != entry.StateRunning {
		t.Errorf("second transition = %s", trs[1])
	}

	prev, _ := r.Get("NEW_12")
	if prev.State() != entry.StateCompleted {
		t.Errorf("NEW_12 state = %s, want completed", prev.State())
	}
	if a, _ := r.ActiveRun(); a.Name != "NEW_3" {
		t.Errorf("ActiveRun = %s, want NEW_3", a.Name)
	}

	if trs, err := r.MarkRunning("NEW_3"); err != nil || len(trs) != 0 {
		t.Errorf("re-marking the active run = %v, %v; want no-op", trs, err)
	}
}

func TestMarkRunning_Errors(t *testing.T) {
	r := loadSample(t)

	_, err := r.MarkRunning("NEW_99")
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown name error = %v", err)
	}

	if _, err := r.MarkRunning("NEW_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.MarkRunning("NEW_12"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("restarting a completed entry error = %v", err)
	}
	if a, _ := r.ActiveRun(); a.Name != "NEW_1" {
		t.Errorf("failed transition changed the active run to %s", a.Name)
	}
}

func TestComplete(t *testing.T) {
	r := loadSample(t)

	tr, err := r.Complete("NEW_12")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if tr.To != entry.StateCompleted {
		t.Errorf("transition = %s", tr)
	}
	if _, ok := r.ActiveRun(); ok {
		t.Error("no run should be active after completion")
	}
	if _, err := r.Complete("NEW_12"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Complete error = %v", err)
	}
}

func TestLoad_TwoRunningMarkersKeepsLast(t *testing.T) {
	log := entryBlock("NEW_1", "<-- running") + "\n" + entryBlock("NEW_2", "<-- RUNNING")

	var got []Transition
	r := New(WithTransitionHook(func(tr Transition) { got = append(got, tr) }))
	if err := r.Load(strings.NewReader(log)); err != nil {
		t.Fatal(err)
	}
	first, _ := r.Get("NEW_1")
	if first.State() != entry.StateCompleted {
		t.Errorf("NEW_1 state = %s, want completed", first.State())
	}
	if a, _ := r.ActiveRun(); a.Name != "NEW_2" {
		t.Errorf("ActiveRun = %s, want NEW_2", a.Name)
	}
	if len(got) != 1 || got[0].Name != "NEW_1" {
		t.Errorf("hook transitions = %v", got)
	}
}

func TestMarkRunning_ConcurrentCallersKeepOneRunning(t *testing.T) {
	r := loadSample(t)
	names := []string{"NEW_0", "NEW_1", "NEW_2", "NEW_3", "NEW_4", "NEW_5"}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			_, _ = r.MarkRunning(n)
		}(n)
	}
	wg.Wait()

	running := 0
	for _, e := range r.Entries() {
		if e.State() == entry.StateRunning {
			running++
		}
	}
	if running != 1 {
		t.Errorf("running entries = %d, want 1", running)
	}
}

func TestReplay(t *testing.T) {
	r := loadSample(t)
	trs := []Transition{
		{Name: "NEW_12", From: entry.StateRunning, To: entry.StateCompleted},
		{Name: "NEW_5", From: entry.StateUnknown, To: entry.StateRunning},
		{Name: "GONE_1", From: entry.StateUnknown, To: entry.StateRunning},
	}
	err := r.Replay(trs)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Replay error = %v, want ErrNotFound for GONE_1", err)
	}
	if a, _ := r.ActiveRun(); a.Name != "NEW_5" {
		t.Errorf("ActiveRun = %s, want NEW_5", a.Name)
	}
}

func TestOutOfSequenceWarning(t *testing.T) {
	log := entryBlock("NEW_3", "") + "\n" + entryBlock("NEW_2", "")
	r := New()
	if err := r.Load(strings.NewReader(log)); err != nil {
		t.Fatal(err)
	}
	e, _ := r.Get("NEW_2")
	if !e.HasDiagnostic(entry.OutOfSequence, "") {
		t.Errorf("expected OutOfSequence, got %v", e.Diagnostics)
	}
	if !e.Valid() {
		t.Error("OutOfSequence is a warning")
	}
}

func TestNextName(t *testing.T) {
	r := loadSample(t)
	if got := r.NextName(""); got != "NEW_13" {
		t.Errorf("NextName(\"\") = %s, want NEW_13", got)
	}
	if got := r.NextName("ABL_"); got != "ABL_0" {
		t.Errorf("NextName(ABL_) = %s, want ABL_0", got)
	}
}

func TestLookup_NotFound(t *testing.T) {
	_, err := New().Lookup("NEW_0")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup error = %v", err)
	}
}

func TestLoad_IgnoresTrailingNotes(t *testing.T) {
	r := loadSample(t)
	for _, e := range r.Entries() {
		if strings.HasPrefix(e.Name, "Questions") {
			t.Errorf("trailing note parsed as entry %s", e.Name)
		}
	}
}

func TestLoad_SeparatorBeforeEntryKeepsEntry(t *testing.T) {
	log := entryBlock("NEW_0", "") + "==========\n" + entryBlock("NEW_1", "") + "\n" + entryBlock("NEW_2", "")
	r := New()
	if err := r.Load(strings.NewReader(log)); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("entries = %d, want 3", r.Len())
	}
	sections := r.SectionsInOrder()
	if len(sections) != 1 || sections[0].Title != UnsectionedTitle {
		t.Errorf("sections = %d, want only %q", len(sections), UnsectionedTitle)
	}
	if e, _ := r.Get("NEW_1"); e == nil || !e.Valid() {
		t.Errorf("NEW_1 = %+v", e)
	}
}

func TestLoad_TrailingIndentedNoteHasNoDiagnostics(t *testing.T) {
	log := entryBlock("NEW_0", "") + "\nQuestions:\n    more start_steps: 20?\n"
	r := New()
	if err := r.Load(strings.NewReader(log)); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("entries = %d, want 1", r.Len())
	}
	if d := r.Diagnostics(); len(d) != 0 {
		t.Errorf("diagnostics = %v", d)
	}
}
