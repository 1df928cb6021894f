// Package entry holds the experiment configuration data model (entries,
// sections, diagnostics, run states) and the parser that turns one raw log
// record into a typed entry.
//
// Parsing never discards information: unknown keys, bad values and
// malformed lines are kept on the entry and reported as diagnostics so the
// caller can decide what is fatal.
package entry
