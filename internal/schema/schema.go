package schema

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Schema versions. 1.1.0 split the regularization factor into an
// action-magnitude term and a nudge term.
const (
	V1_0   = "1.0.0"
	V1_1   = "1.1.0"
	Latest = V1_1
)

// Controller modes.
const (
	ModeAbsolute    = "absolute"
	ModeIncremental = "incremental"
)

// Canonical key names referenced outside the table.
const (
	KeyControllerMode = "controller_mode"
	KeyActionMin      = "action_min"
	KeyActionMax      = "action_max"
	KeyObsMin         = "obs_min"
	KeyObsMax         = "obs_max"
	KeyHiddenSizes    = "hidden_sizes"
	KeyStartSteps     = "start_steps"
)

// Versions lists every published schema version in ascending order.
var Versions = []string{V1_0, V1_1}

var table = []Rule{
	{Key: "base_reward", Kind: KindFloat, Requirement: Required, Since: V1_0, Description: "Baseline reward offset"},
	{Key: "rmse_factor", Kind: KindFloat, Requirement: Required, Since: V1_0, Description: "Weight of the output error term"},
	{Key: "reg_factor", Kind: KindFloat, Since: V1_0, Description: "Action regularization weight"},
	{Key: "areg_factor", Kind: KindFloat, Since: V1_1, Description: "Action-magnitude regularization weight"},
	{Key: "nreg_factor", Kind: KindFloat, Since: V1_1, Description: "Nudge regularization weight"},
	{Key: KeyStartSteps, Kind: KindInt, Since: V1_0, Description: "Steps of uniform-random actions before using the policy"},
	{Key: "epochs", Kind: KindInt, Since: V1_0, Description: "Number of training epochs"},
	{Key: "steps_per_epoch", Kind: KindInt, Since: V1_0, Description: "Environment steps per epoch"},
	{Key: "update_after", Kind: KindInt, Since: V1_0, Description: "Steps collected before the first update"},
	{Key: "update_every", Kind: KindInt, Since: V1_0, Description: "Steps between update rounds"},
	{Key: "max_ep_len", Kind: KindInt, Since: V1_0, Description: "Maximum episode length"},
	{Key: "num_test_episodes", Kind: KindInt, Since: V1_0, Description: "Test episodes per epoch"},
	{Key: "seed", Kind: KindInt, Since: V1_0, Description: "Random seed"},
	{Key: "trim_batches_start", Kind: KindInt, Since: V1_0, Description: "Batches skipped at the start of the dataset"},
	{Key: "trim_batches_end", Kind: KindInt, Since: V1_0, Description: "Batches skipped at the end of the dataset"},
	{Key: "verbosity", Kind: KindInt, Since: V1_0, Description: "Environment verbosity (0-2)"},
	{Key: "gamma", Kind: KindFloat, Since: V1_0, Description: "Discount factor"},
	{Key: "act_noise", Kind: KindFloat, Since: V1_0, Description: "Exploration noise stddev"},
	{Key: KeyActionMin, Kind: KindFloat, Since: V1_0, Description: "Lower action bound"},
	{Key: KeyActionMax, Kind: KindFloat, Since: V1_0, Description: "Upper action bound"},
	{Key: KeyObsMin, Kind: KindFloat, Since: V1_0, Description: "Lower observation bound"},
	{Key: KeyObsMax, Kind: KindFloat, Since: V1_0, Description: "Upper observation bound"},
	{Key: KeyHiddenSizes, Kind: KindPair, Since: V1_0, Description: "Hidden layer width x depth"},
	{Key: KeyControllerMode, Kind: KindEnum, Requirement: Required, Enum: []string{ModeAbsolute, ModeIncremental}, Since: V1_0, Description: "Controller variant"},
	{Key: "data_mode", Kind: KindEnum, Enum: []string{"all", "train", "test", "val"}, Since: V1_0, Description: "Dataset split"},
	{Key: "step_index_mode", Kind: KindEnum, Enum: []string{"sequential", "random"}, Since: V1_0, Description: "Playhead stepping"},
	{Key: "reset_index_mode", Kind: KindEnum, Enum: []string{"zero", "random"}, Since: V1_0, Description: "Playhead reset"},
	{Key: "hidden_size", Kind: KindPair, Requirement: Deprecated, AliasOf: KeyHiddenSizes, Since: V1_0},
	{Key: "hid", Kind: KindPair, Requirement: Deprecated, AliasOf: KeyHiddenSizes, Since: V1_0},
	{Key: "seed_value", Kind: KindInt, Requirement: Deprecated, AliasOf: "seed", Since: V1_0},
}

var bounds = []BoundPair{
	{Min: KeyActionMin, Max: KeyActionMax, RequiredWhen: &Condition{Key: KeyControllerMode, Value: ModeIncremental}},
	{Min: KeyObsMin, Max: KeyObsMax},
}

// Schema is a read-only view of the rule table at one version.
type Schema struct {
	version *semver.Version
	rules   map[string]Rule
	order   []string
	bounds  []BoundPair
}

var (
	latestOnce   sync.Once
	latestSchema *Schema
)

// Default returns the schema at the latest version.
func Default() *Schema {
	latestOnce.Do(func() {
		s, err := ForVersion(Latest)
		if err != nil {
			panic(fmt.Sprintf("schema: building latest schema: %v", err))
		}
		latestSchema = s
	})
	return latestSchema
}

// ForVersion returns the schema containing every rule introduced at or
// before version. "latest" and a leading "v" are accepted.
func ForVersion(version string) (*Schema, error) {
	if version == "" || strings.EqualFold(version, "latest") {
		version = Latest
	}
	want, err := semver.NewVersion(strings.TrimPrefix(version, "v"))
	if err != nil {
		return nil, fmt.Errorf("parsing schema version %q: %w", version, err)
	}
	oldest := semver.MustParse(Versions[0])
	if want.LessThan(oldest) {
		return nil, fmt.Errorf("schema version %s predates the first schema %s", want, oldest)
	}

	s := &Schema{version: want, rules: make(map[string]Rule, len(table))}
	for _, r := range table {
		since := semver.MustParse(r.Since)
		if since.GreaterThan(want) {
			continue
		}
		s.rules[r.Key] = r
		s.order = append(s.order, r.Key)
	}
	for _, b := range bounds {
		_, minOK := s.rules[b.Min]
		_, maxOK := s.rules[b.Max]
		if minOK && maxOK {
			s.bounds = append(s.bounds, b)
		}
	}
	return s, nil
}

// Version returns the schema version string.
func (s *Schema) Version() string { return s.version.String() }

// Lookup returns the rule for an exact key.
func (s *Schema) Lookup(key string) (Rule, bool) {
	r, ok := s.rules[key]
	return r, ok
}

// Canonical resolves key through a deprecated alias to the rule that owns
// the value. The second result reports whether key was an alias.
func (s *Schema) Canonical(key string) (rule Rule, alias bool, ok bool) {
	r, ok := s.rules[key]
	if !ok {
		return Rule{}, false, false
	}
	if r.Requirement != Deprecated {
		return r, false, true
	}
	target, ok := s.rules[r.AliasOf]
	if !ok {
		return Rule{}, false, false
	}
	return target, true, true
}

// Rules returns every rule in table order.
func (s *Schema) Rules() []Rule {
	out := make([]Rule, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.rules[k])
	}
	return out
}

// Required returns the keys every entry must carry.
func (s *Schema) Required() []Rule {
	var out []Rule
	for _, k := range s.order {
		if r := s.rules[k]; r.Requirement == Required {
			out = append(out, r)
		}
	}
	return out
}

// Bounds returns the bound-pair constraints whose keys exist at this version.
func (s *Schema) Bounds() []BoundPair {
	return append([]BoundPair(nil), s.bounds...)
}

// Since reports the version that introduced key in the full table, which
// lets callers explain why a key is unrecognized at an older version.
func Since(key string) (string, bool) {
	for _, r := range table {
		if r.Key == key {
			return r.Since, true
		}
	}
	return "", false
}
