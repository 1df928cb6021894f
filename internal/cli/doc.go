// Package cli defines the Cobra command tree for the expreg CLI. Each file
// in this package registers one top-level command (check, list, run, export,
// etc.) with the root command. Commands load the experiment log through a
// session and delegate to the registry, export, store and status packages;
// they only handle flag parsing and output formatting.
package cli
