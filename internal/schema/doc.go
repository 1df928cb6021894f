// Package schema defines the recognized hyperparameter keys of an experiment
// log entry: their value kinds, whether they are required, optional or a
// deprecated alias, and the conditional constraints between keys (bound
// pairs, keys that only matter under a given controller mode).
//
// The rule table is fixed at build time and versioned with semantic
// versions, so a registry can be pinned to the schema it was written against
// and report newer keys as unrecognized.
package schema
