package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EXPREG_HOME", dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolate(t)
	if err := Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := Get(KeyLogLevel); got != "warn" {
		t.Errorf("log.level = %q, want warn", got)
	}
	if got := Get(KeyDB); got != filepath.Join(dir, "expreg.db") {
		t.Errorf("db = %q", got)
	}
	if GetBool(KeyStrict) {
		t.Error("strict should default to false")
	}
}

func TestLoad_EnvOverridesNestedKey(t *testing.T) {
	isolate(t)
	t.Setenv("EXPREG_LOG_LEVEL", "debug")
	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if got := Get(KeyLogLevel); got != "debug" {
		t.Errorf("log.level = %q, want debug", got)
	}
}

func TestSet_PersistsAndReloads(t *testing.T) {
	dir := isolate(t)
	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if err := Set(KeySchemaVersion, "1.0.0"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := Set(KeyStrict, "true"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "schema_version: 1.0.0") {
		t.Errorf("config file:\n%s", data)
	}

	viper.Reset()
	if err := Load(); err != nil {
		t.Fatal(err)
	}
	if got := Get(KeySchemaVersion); got != "1.0.0" {
		t.Errorf("schema_version after reload = %q", got)
	}
	if !GetBool(KeyStrict) {
		t.Error("strict after reload = false")
	}
}

func TestSet_Rejects(t *testing.T) {
	isolate(t)
	tests := []struct{ key, value string }{
		{"colour", "blue"},
		{KeySchemaVersion, "0.9.0"},
		{KeyStrict, "maybe"},
		{KeyLogLevel, "loud"},
		{KeyLogFormat, "xml"},
		{KeyDB, " "},
	}
	for _, tt := range tests {
		if err := Set(tt.key, tt.value); err == nil {
			t.Errorf("Set(%q, %q) expected error", tt.key, tt.value)
		}
	}
}
