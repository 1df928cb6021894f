// Package scaffold generates new experiment log entries from an embedded
// template. It powers the "expreg new" command: the next free name, the
// fields of a base entry with overrides applied, and an optional section
// header, checked against the field schema before anything is written.
package scaffold
