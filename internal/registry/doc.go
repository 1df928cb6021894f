// Package registry is the aggregate root of the experiment log: it owns
// every parsed entry, groups them into sections in log order, and tracks
// which single entry is currently running.
//
// A registry is filled by one sequential load pass and is read-only
// afterwards, except for run-state transitions, which are serialized.
package registry
