//go:build integration

package integration_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/expreg-labs/expreg/internal/registry"
	"github.com/expreg-labs/expreg/internal/store"
)

// testEnv holds paths to an isolated experiment log and database.
type testEnv struct {
	HomeDir string // EXPREG_HOME
	LogPath string // experiment log under test
	DBPath  string // provenance database
}

// setupTestEnv creates isolated temp directories, sets EXPREG_HOME and
// writes the sample log. The env var is restored after the test.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{HomeDir: t.TempDir()}
	env.LogPath = filepath.Join(t.TempDir(), "experiments.log")
	env.DBPath = filepath.Join(env.HomeDir, "expreg.db")
	t.Setenv("EXPREG_HOME", env.HomeDir)

	writeFile(t, env.LogPath, sampleLog)
	return env
}

// load parses the log and replays what st recorded, the way the CLI does.
// Transitions made on the returned registry are recorded in st.
func load(t *testing.T, env *testEnv, st *store.Store) *registry.Registry {
	t.Helper()
	ctx := context.Background()

	recording := false
	reg := registry.New(registry.WithTransitionHook(func(tr registry.Transition) {
		if !recording {
			return
		}
		if err := st.RecordTransition(ctx, env.LogPath, tr); err != nil {
			t.Errorf("RecordTransition: %v", err)
		}
	}))

	f, err := os.Open(env.LogPath)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	defer f.Close()
	if err := reg.Load(f); err != nil {
		t.Fatalf("Load: %v", err)
	}

	trs, err := st.Transitions(ctx, env.LogPath)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if err := reg.Replay(trs); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	recording = true
	return reg
}

func openStore(t *testing.T, env *testEnv) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), env.DBPath, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected file to exist: %s", path)
		return
	}
	if info.IsDir() {
		t.Errorf("expected file but got directory: %s", path)
	}
}

const sampleLog = `NEW_0:
    base_reward: 1
    rmse_factor: 1
    controller_mode: 'absolute'
    start_steps: 10,000
    hidden_sizes: 256 x 2

===============
HELLO WORLD
===============

NEW_1:
    base_reward: 0.5
    rmse_factor: 2
    controller_mode: 'incremental'
    action_min: -0.1
    action_max: 0.1
    obs_min: -inf
    obs_max: inf

NEW_2:    <-- RUNNING
    base_reward: 0
    rmse_factor: 2
    areg_factor: 0.0
    nreg_factor: 4.0
    controller_mode = 'incremental'
    action_min = -0.05
    action_max = 0.05
    hid: [128, 128]

Questions:
More start_steps?
`
