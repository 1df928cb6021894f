// Package config manages user-level settings stored at ~/.expreg/config.yaml.
// Values come from the config file, EXPREG_* environment variables and
// defaults, in that order of precedence below command-line flags.
package config
