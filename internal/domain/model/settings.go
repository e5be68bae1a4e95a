package model

import "sort"

// Thresholds drive the dedupe decision policy.
type Thresholds struct {
	AutoMerge float64 `json:"auto_merge_threshold"`
	NoMatch   float64 `json:"no_match_threshold"`
}

// Validate enforces 0 <= no_match <= auto_merge <= 1.
func (t Thresholds) Validate() error {
	switch {
	case t.AutoMerge < 0 || t.AutoMerge > 1:
		return NewKind("thresholds", ErrConfiguration, "auto_merge_threshold %.3f outside [0,1]", t.AutoMerge)
	case t.NoMatch < 0 || t.NoMatch > 1:
		return NewKind("thresholds", ErrConfiguration, "no_match_threshold %.3f outside [0,1]", t.NoMatch)
	case t.NoMatch > t.AutoMerge:
		return NewKind("thresholds", ErrConfiguration,
			"no_match_threshold %.3f above auto_merge_threshold %.3f", t.NoMatch, t.AutoMerge)
	}
	return nil
}

// Classify maps a best score to the outcome the policy demands. A PENDING
// result is reported as OutcomeNone.
func (t Thresholds) Classify(score float64) Outcome {
	switch {
	case score >= t.AutoMerge:
		return OutcomeMerge
	case score < t.NoMatch:
		return OutcomeNewEntity
	default:
		return OutcomeNone
	}
}

// Settings is the operator-editable runtime configuration.
type Settings struct {
	Thresholds Thresholds      `json:"thresholds"`
	Connectors map[string]bool `json:"connectors"`
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.Connectors = make(map[string]bool, len(s.Connectors))
	for k, v := range s.Connectors {
		c.Connectors[k] = v
	}
	return c
}

// Enabled lists enabled connector ids in sorted order.
func (s Settings) Enabled() []string {
	var out []string
	for id, on := range s.Connectors {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
