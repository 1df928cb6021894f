//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/expreg-labs/expreg/internal/entry"
	"github.com/expreg-labs/expreg/internal/export"
	"github.com/expreg-labs/expreg/internal/registry"
	"github.com/expreg-labs/expreg/internal/status"
)

func TestFullFlowLoadRunReload(t *testing.T) {
	env := setupTestEnv(t)
	st := openStore(t, env)
	ctx := context.Background()

	reg := load(t, env, st)
	if reg.Len() != 3 {
		t.Fatalf("entries = %d, want 3", reg.Len())
	}
	if _, err := st.RecordLoad(ctx, env.LogPath, reg); err != nil {
		t.Fatalf("RecordLoad: %v", err)
	}
	assertFileExists(t, env.DBPath)

	if _, err := reg.MarkRunning("NEW_0"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	// A second process sees the same run state.
	again := load(t, env, st)
	active, ok := again.ActiveRun()
	if !ok || active.Name != "NEW_0" {
		t.Fatalf("active run after reload = %v", active)
	}
	prev, _ := again.Get("NEW_2")
	if prev.State() != entry.StateCompleted {
		t.Errorf("NEW_2 state = %s, want completed", prev.State())
	}

	if _, err := again.Complete("NEW_0"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	third := load(t, env, st)
	if _, ok := third.ActiveRun(); ok {
		t.Error("no run should be active after completion")
	}
	if _, err := third.MarkRunning("NEW_0"); !errors.Is(err, registry.ErrInvalidTransition) {
		t.Errorf("restarting NEW_0 error = %v", err)
	}
}

func TestFullFlowEditedLogKeepsHistory(t *testing.T) {
	env := setupTestEnv(t)
	st := openStore(t, env)
	ctx := context.Background()

	if _, err := st.RecordLoad(ctx, env.LogPath, load(t, env, st)); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(env.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, env.LogPath, strings.Replace(string(data), "start_steps: 10,000", "start_steps: 25,000", 1))
	if _, err := st.RecordLoad(ctx, env.LogPath, load(t, env, st)); err != nil {
		t.Fatal(err)
	}

	hist, err := st.History(ctx, env.LogPath, "NEW_0")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Fields["start_steps"] != "10,000" || hist[1].Fields["start_steps"] != "25,000" {
		t.Errorf("history = %+v", hist)
	}
}

func TestFullFlowExportActiveRun(t *testing.T) {
	env := setupTestEnv(t)
	reg := load(t, env, openStore(t, env))

	active, ok := reg.ActiveRun()
	if !ok {
		t.Fatal("sample log marks NEW_2 running")
	}
	if !active.HasDiagnostic(entry.DeprecatedField, "hid") {
		t.Errorf("expected DeprecatedField for hid, got %v", active.Diagnostics)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, active, export.FormatJSON); err != nil {
		t.Fatalf("export.Write: %v", err)
	}
	var blob map[string]any
	if err := json.Unmarshal(buf.Bytes(), &blob); err != nil {
		t.Fatal(err)
	}
	if blob["controller_mode"] != "incremental" || blob["action_min"] != -0.05 {
		t.Errorf("blob = %v", blob)
	}
	layers, _ := blob["hidden_sizes"].([]any)
	if len(layers) != 2 {
		t.Errorf("hidden_sizes = %v", blob["hidden_sizes"])
	}

	nonInf, _ := reg.Get("NEW_1")
	if err := export.Check(nonInf); err != nil {
		t.Errorf("NEW_1 with infinite observation bounds should export: %v", err)
	}
}

func TestFullFlowStatusServer(t *testing.T) {
	env := setupTestEnv(t)
	reg := load(t, env, openStore(t, env))

	ts := httptest.NewServer(status.NewServer(reg, env.LogPath, nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sum status.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.ActiveRun != "NEW_2" || sum.Entries != 3 || len(sum.Sections) != 2 {
		t.Errorf("summary = %+v", sum)
	}
}
