package condition

import (
	"fmt"
	"time"

	"github.com/justapithecus/leprechaun/types"
)

// Condition kind names accepted in the `condition` key.
const (
	KindWhenIdle   = "when-idle"
	KindOnSchedule = "on-schedule"
)

// Spec is the configuration form of a condition. It is embedded inline in
// miner entries, so its keys sit next to the miner's own keys.
type Spec struct {
	Condition     string   `yaml:"condition,omitempty" json:"condition,omitempty"`
	IdleMinutes   *float64 `yaml:"idle-minutes,omitempty" json:"idle-minutes,omitempty"`
	Days          []string `yaml:"days,omitempty" json:"days,omitempty"`
	FromTime      string   `yaml:"from-time,omitempty" json:"from-time,omitempty"`
	UntilTime     string   `yaml:"until-time,omitempty" json:"until-time,omitempty"`
	Conditions    []Spec   `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	ConditionsAnd []Spec   `yaml:"conditions-and,omitempty" json:"conditions-and,omitempty"`
	ConditionsOr  []Spec   `yaml:"conditions-or,omitempty" json:"conditions-or,omitempty"`
}

// IsZero reports whether the spec declares no condition at all.
func (s Spec) IsZero() bool {
	return s.Condition == "" &&
		s.Conditions == nil && s.ConditionsAnd == nil && s.ConditionsOr == nil &&
		s.IdleMinutes == nil && s.Days == nil && s.FromTime == "" && s.UntilTime == ""
}

// Parse builds a Condition from spec. A zero spec yields (nil, nil), which
// callers treat as "always allowed".
func Parse(spec Spec, env Env) (Condition, error) {
	if spec.IsZero() {
		return nil, nil
	}
	return parse(spec, env, "")
}

func parse(spec Spec, env Env, path string) (Condition, error) {
	forms := 0
	for _, present := range []bool{
		spec.Condition != "",
		spec.Conditions != nil,
		spec.ConditionsAnd != nil,
		spec.ConditionsOr != nil,
	} {
		if present {
			forms++
		}
	}
	if forms == 0 {
		return nil, invalidAt(path, "condition", "missing 'condition' key")
	}
	if forms > 1 {
		return nil, invalidAt(path, "condition", "use only one of 'condition', 'conditions', 'conditions-and', 'conditions-or'")
	}

	switch {
	case spec.Conditions != nil:
		return parseComposite(spec, spec.Conditions, env, path, "conditions", true)
	case spec.ConditionsAnd != nil:
		return parseComposite(spec, spec.ConditionsAnd, env, path, "conditions-and", true)
	case spec.ConditionsOr != nil:
		return parseComposite(spec, spec.ConditionsOr, env, path, "conditions-or", false)
	}

	switch spec.Condition {
	case KindWhenIdle:
		if spec.Days != nil || spec.FromTime != "" || spec.UntilTime != "" {
			return nil, invalidAt(path, "condition", "'days', 'from-time' and 'until-time' are only valid for on-schedule")
		}
		if spec.IdleMinutes == nil {
			return nil, invalidAt(path, "idle-minutes", "required for when-idle")
		}
		minutes := *spec.IdleMinutes
		if !(minutes > 0) {
			return nil, invalidAt(path, "idle-minutes", fmt.Sprintf("idle time must be positive (got %v)", minutes))
		}
		c, err := NewIdle(time.Duration(minutes*float64(time.Minute)), env.Idle)
		return wrapAt(path, c, err)

	case KindOnSchedule:
		if spec.IdleMinutes != nil {
			return nil, invalidAt(path, "idle-minutes", "only valid for when-idle")
		}
		c, err := NewSchedule(spec.Days, spec.FromTime, spec.UntilTime, env.now())
		return wrapAt(path, c, err)

	default:
		return nil, invalidAt(path, "condition", fmt.Sprintf("unknown condition %q (want %s or %s)", spec.Condition, KindWhenIdle, KindOnSchedule))
	}
}

func parseComposite(spec Spec, children []Spec, env Env, path, key string, and bool) (Condition, error) {
	if spec.IdleMinutes != nil || spec.Days != nil || spec.FromTime != "" || spec.UntilTime != "" {
		return nil, invalidAt(path, key, "leaf keys are not allowed next to a condition list")
	}
	components := make([]Condition, 0, len(children))
	for i, child := range children {
		c, err := parse(child, env, fmt.Sprintf("%s%s[%d].", path, key, i))
		if err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if and {
		return NewAnd(components...), nil
	}
	return NewOr(components...), nil
}

func invalidAt(path, field, msg string) error {
	return types.NewInvalidConfig(path+field, "%s", msg)
}

// wrapAt prefixes constructor field names with the nesting path.
func wrapAt[C Condition](path string, c C, err error) (Condition, error) {
	if err == nil {
		return c, nil
	}
	if ice, ok := err.(*types.InvalidConfigError); ok && path != "" {
		clone := *ice
		clone.Field = path + clone.Field
		return nil, &clone
	}
	return nil, err
}
