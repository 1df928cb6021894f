package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/expreg-labs/expreg/internal/branding"
	"github.com/expreg-labs/expreg/internal/logging"
	"github.com/expreg-labs/expreg/internal/schema"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys understood by the config layer.
const (
	KeyFile          = "file"
	KeySchemaVersion = "schema_version"
	KeyStrict        = "strict"
	KeyDB            = "db"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyServeAddr     = "serve.addr"
)

// Keys lists every settable key in display order.
var Keys = []string{KeyFile, KeySchemaVersion, KeyStrict, KeyDB, KeyLogLevel, KeyLogFormat, KeyServeAddr}

// Dir returns the path to the config directory (~/.expreg/). EXPREG_HOME
// overrides it.
func Dir() string {
	if dir := os.Getenv(branding.EnvVar("HOME")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.expreg/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// DefaultDB returns the default provenance database path.
func DefaultDB() string {
	return filepath.Join(Dir(), "expreg.db")
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
// A missing config file is not an error; a malformed one is.
func Load() error {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(KeyFile, "experiments.log")
	viper.SetDefault(KeySchemaVersion, schema.Latest)
	viper.SetDefault(KeyStrict, false)
	viper.SetDefault(KeyDB, DefaultDB())
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyLogFormat, logging.FormatText)
	viper.SetDefault(KeyServeAddr, "127.0.0.1:8087")

	if err := viper.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(FilePath()); os.IsNotExist(statErr) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", FilePath(), err)
	}
	return nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// GetBool returns a boolean config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Validate checks that value is acceptable for key.
func Validate(key, value string) error {
	switch key {
	case KeySchemaVersion:
		_, err := schema.ForVersion(value)
		return err
	case KeyStrict:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false, got %q", key, value)
		}
	case KeyLogLevel:
		_, err := logging.ParseLevel(value)
		return err
	case KeyLogFormat:
		if value != logging.FormatText && value != logging.FormatJSON {
			return fmt.Errorf("%s must be %s or %s, got %q", key, logging.FormatText, logging.FormatJSON, value)
		}
	case KeyFile, KeyDB, KeyServeAddr:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	default:
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// Set validates and writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("unknown config key %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := EnsureDir(); err != nil {
		return err
	}

	if key == KeyStrict {
		b, _ := strconv.ParseBool(value)
		viper.Set(key, b)
	} else {
		viper.Set(key, value)
	}

	configFile := FilePath()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
