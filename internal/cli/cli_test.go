package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/expreg-labs/expreg/internal/registry"
	"github.com/expreg-labs/expreg/internal/status"
)

// setup isolates the config dir and returns a private copy of the sample log.
func setup(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("EXPREG_HOME", home)

	data, err := os.ReadFile(filepath.Join("testdata", "experiments.log"))
	if err != nil {
		t.Fatalf("reading sample log: %v", err)
	}
	path := filepath.Join(t.TempDir(), "experiments.log")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, stderr bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestCheck(t *testing.T) {
	log := setup(t)

	out := mustExecute(t, "check", "-f", log)
	if !strings.Contains(out, "13 entries, 0 errors, 0 warnings, 0 rejected records") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	// Under 1.0.0 the MEM UNITS factors are unrecognized: warnings only.
	out = mustExecute(t, "check", "-f", log, "--schema-version", "1.0.0")
	if !strings.Contains(out, "UnrecognizedField") || !strings.Contains(out, "areg_factor") {
		t.Errorf("expected UnrecognizedField for areg_factor:\n%s", out)
	}

	_, err := execute(t, "check", "-f", log, "--schema-version", "1.0.0", "--strict")
	if !errors.Is(err, errCheckFailed) {
		t.Errorf("strict check error = %v, want errCheckFailed", err)
	}
}

func TestCheck_RejectedRecordFails(t *testing.T) {
	log := setup(t)
	f, err := os.OpenFile(log, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("\nNEW_3:\n    base_reward: 1\n    rmse_factor: 1\n    controller_mode: absolute\n")
	f.Close()

	out, err := execute(t, "check", "-f", log, "--json")
	if !errors.Is(err, errCheckFailed) {
		t.Fatalf("check error = %v, want errCheckFailed", err)
	}
	var res checkResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(res.Rejected) != 1 || !strings.Contains(res.Rejected[0], "NEW_3") {
		t.Errorf("rejected = %v", res.Rejected)
	}
}

func TestRunAndFinish_PersistAcrossInvocations(t *testing.T) {
	log := setup(t)

	out := mustExecute(t, "run", "NEW_3", "-f", log)
	if !strings.Contains(out, "NEW_12: running -> completed") || !strings.Contains(out, "NEW_3: unknown -> running") {
		t.Errorf("run output:\n%s", out)
	}

	var sum status.Summary
	if err := json.Unmarshal([]byte(mustExecute(t, "status", "-f", log, "--json")), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.ActiveRun != "NEW_3" {
		t.Errorf("active run after reload = %q, want NEW_3", sum.ActiveRun)
	}
	if sum.States["completed"] != 1 {
		t.Errorf("states = %v", sum.States)
	}

	mustExecute(t, "finish", "NEW_3", "-f", log)
	sum = status.Summary{}
	if err := json.Unmarshal([]byte(mustExecute(t, "status", "-f", log, "--json")), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.ActiveRun != "" {
		t.Errorf("active run after finish = %q", sum.ActiveRun)
	}

	// NEW_12 was completed by the first run; it cannot run again.
	if _, err := execute(t, "run", "NEW_12", "-f", log); !errors.Is(err, registry.ErrInvalidTransition) {
		t.Errorf("restarting NEW_12 error = %v", err)
	}
}

func TestRun_UnknownEntry(t *testing.T) {
	log := setup(t)
	_, err := execute(t, "run", "NEW_99", "-f", log)
	if !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExport_DefaultsToActiveRun(t *testing.T) {
	log := setup(t)
	out := mustExecute(t, "export", "-f", log, "--format", "env")
	for _, want := range []string{"NAME=NEW_12\n", "CONTROLLER_MODE=incremental\n", "HIDDEN_SIZES=256,256\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}

	dst := filepath.Join(t.TempDir(), "new_0.json")
	mustExecute(t, "export", "NEW_0", "-f", log, "--format", "json", "-o", dst)
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		t.Fatalf("exported file is not JSON: %v", err)
	}
	if blob["start_steps"] != 10000.0 {
		t.Errorf("start_steps = %v", blob["start_steps"])
	}
}

func TestShow_FormatsIntegers(t *testing.T) {
	log := setup(t)
	out := mustExecute(t, "show", "NEW_0", "-f", log)
	if !strings.Contains(out, "10,000") {
		t.Errorf("start_steps not formatted:\n%s", out)
	}
	if !strings.Contains(out, `section "unsectioned"`) {
		t.Errorf("section missing:\n%s", out)
	}
}

func TestListSectionsAndNext(t *testing.T) {
	log := setup(t)

	out := mustExecute(t, "list", "-f", log, "--section", "HELLO WORLD")
	for _, name := range []string{"NEW_4", "NEW_8"} {
		if !strings.Contains(out, name) {
			t.Errorf("list missing %s:\n%s", name, out)
		}
	}
	if strings.Contains(out, "NEW_9") {
		t.Errorf("list leaked other sections:\n%s", out)
	}

	out = mustExecute(t, "sections", "-f", log)
	if !strings.Contains(out, "unsectioned (implicit)") || !strings.Contains(out, "MEM UNITS") {
		t.Errorf("sections output:\n%s", out)
	}

	if out := mustExecute(t, "next", "-f", log); strings.TrimSpace(out) != "NEW_13" {
		t.Errorf("next = %q", out)
	}
}

func TestHistory_ShowsEdits(t *testing.T) {
	log := setup(t)
	mustExecute(t, "check", "-f", log)

	data, _ := os.ReadFile(log)
	edited := strings.Replace(string(data), "start_steps: 20,000", "start_steps: 30,000", 1)
	if err := os.WriteFile(log, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	mustExecute(t, "check", "-f", log)

	out := mustExecute(t, "history", "NEW_1", "-f", log)
	if !strings.Contains(out, "start_steps") {
		t.Errorf("history does not show the edit:\n%s", out)
	}
}

func TestNew_AppendsNextEntry(t *testing.T) {
	log := setup(t)

	out := mustExecute(t, "new", "-f", log, "--dry-run", "--set", "epochs=75")
	if !strings.HasPrefix(out, "NEW_13:\n") || !strings.Contains(out, "    epochs: 75\n") {
		t.Errorf("dry run output:\n%s", out)
	}
	if data, _ := os.ReadFile(log); strings.Contains(string(data), "NEW_13") {
		t.Fatal("dry run wrote to the log")
	}

	mustExecute(t, "new", "-f", log, "--set", "epochs=75")
	out = mustExecute(t, "show", "NEW_13", "-f", log)
	if !strings.Contains(out, "MEM UNITS") || !strings.Contains(out, "75") {
		t.Errorf("appended entry:\n%s", out)
	}
	if out := mustExecute(t, "next", "-f", log); strings.TrimSpace(out) != "NEW_14" {
		t.Errorf("next after new = %q", out)
	}
}

func TestSchema(t *testing.T) {
	setup(t)
	out := mustExecute(t, "schema", "--schema-version", "1.0.0")
	if strings.Contains(out, "areg_factor") {
		t.Errorf("1.0.0 schema lists areg_factor:\n%s", out)
	}
	if !strings.Contains(out, "required when controller_mode=incremental") {
		t.Errorf("bound condition missing:\n%s", out)
	}
}

func TestChangedKeys(t *testing.T) {
	got := changedKeys(
		map[string]string{"a": "1", "b": "2", "c": "3"},
		map[string]string{"a": "1", "b": "5", "d": "4"},
	)
	if strings.Join(got, ",") != "b,c,d" {
		t.Errorf("changedKeys = %v", got)
	}
}
