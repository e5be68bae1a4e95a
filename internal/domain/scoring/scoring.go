// Package scoring computes the similarity between a candidate record and a
// talent profile and derives blocking keys for candidate selection.
package scoring

import (
	"math"
	"strings"

	"github.com/okian/scout/internal/domain/model"
)

// Default attribute weights.
const (
	defaultNameWeight        = 0.45
	defaultAffiliationWeight = 0.2
	defaultIdentifierWeight  = 0.25
	defaultMetricsWeight     = 0.1

	// initialMatch scores a single-letter token against a word it abbreviates.
	initialMatch = 0.9
	// containedAffiliation scores one affiliation nested in the other.
	containedAffiliation = 0.8
)

// Weights are relative attribute weights. Only attributes present on both
// sides take part in the weighted mean.
type Weights struct {
	Name        float64
	Affiliation float64
	Identifiers float64
	Metrics     float64
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		Name:        defaultNameWeight,
		Affiliation: defaultAffiliationWeight,
		Identifiers: defaultIdentifierWeight,
		Metrics:     defaultMetricsWeight,
	}
}

// Scorer computes a confidence in [0,1] that rec describes profile.
type Scorer interface {
	Score(rec model.CandidateRecord, profile model.TalentProfile) float64
}

// Option applies a configuration option to the SimilarityScorer.
type Option func(*SimilarityScorer)

// WithWeights overrides the attribute weights. Negative weights are ignored.
func WithWeights(w Weights) Option {
	return func(s *SimilarityScorer) {
		if w.Name >= 0 && w.Affiliation >= 0 && w.Identifiers >= 0 && w.Metrics >= 0 &&
			w.Name+w.Affiliation+w.Identifiers+w.Metrics > 0 {
			s.weights = w
		}
	}
}

// SimilarityScorer implements Scorer as a weighted mean of per-attribute
// similarities.
type SimilarityScorer struct {
	weights Weights
}

// NewSimilarityScorer creates a scorer with configuration options.
func NewSimilarityScorer(opts ...Option) *SimilarityScorer {
	s := &SimilarityScorer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the active weights.
func (s *SimilarityScorer) Weights() Weights { return s.weights }

// Score implements Scorer.
func (s *SimilarityScorer) Score(rec model.CandidateRecord, profile model.TalentProfile) float64 {
	a, b := rec.Attributes, profile.Attributes
	var sum, total float64
	add := func(weight, sim float64, ok bool) {
		if ok && weight > 0 {
			sum += weight * sim
			total += weight
		}
	}
	name, ok := NameSimilarity(a.Name, b.Name)
	add(s.weights.Name, name, ok)
	aff, ok := AffiliationSimilarity(a.Affiliation, b.Affiliation)
	add(s.weights.Affiliation, aff, ok)
	ids, ok := IdentifierOverlap(a.Identifiers(), b.Identifiers())
	add(s.weights.Identifiers, ids, ok)
	metrics, ok := MetricProximity(a.Metrics, b.Metrics)
	add(s.weights.Metrics, metrics, ok)
	if total == 0 {
		return 0
	}
	return clamp(sum / total)
}

// NameSimilarity compares two names. Token-aligned matching lets an
// initial stand for a full word ("J. Cruz" ~ "Joao Cruz"); the whole-string
// edit ratio catches transpositions inside a single token. The larger wins.
func NameSimilarity(a, b string) (float64, bool) {
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0, false
	}
	whole := Ratio(strings.Join(ta, " "), strings.Join(tb, " "))
	return math.Max(whole, tokenSimilarity(ta, tb)), true
}

// tokenSimilarity aligns tokens greedily and averages over the longer name,
// so missing tokens count against the match.
func tokenSimilarity(ta, tb []string) float64 {
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	used := make([]bool, len(tb))
	var sum float64
	for _, x := range ta {
		best, at := 0.0, -1
		for j, y := range tb {
			if used[j] {
				continue
			}
			if sim := tokenPair(x, y); sim > best {
				best, at = sim, j
			}
		}
		if at >= 0 {
			used[at] = true
			sum += best
		}
	}
	// Unmatched extra tokens in the longer name (middle names) weigh half.
	extra := float64(len(tb)-len(ta)) * 0.5
	return sum / (float64(len(ta)) + extra)
}

func tokenPair(x, y string) float64 {
	if x == y {
		return 1
	}
	rx, ry := []rune(x), []rune(y)
	if (len(rx) == 1 || len(ry) == 1) && rx[0] == ry[0] {
		return initialMatch
	}
	return Ratio(x, y)
}

// AffiliationSimilarity is 1 for equal folded affiliations and
// containedAffiliation when one's tokens are a subset of the other's.
// Otherwise it falls back to token overlap.
func AffiliationSimilarity(a, b string) (float64, bool) {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0, false
	}
	if fa == fb {
		return 1, true
	}
	ta, tb := strings.Fields(fa), strings.Fields(fb)
	inter := 0
	set := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		set[t] = struct{}{}
	}
	for _, t := range ta {
		if _, ok := set[t]; ok {
			inter++
		}
	}
	if inter == min(len(ta), len(tb)) {
		return containedAffiliation, true
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union), true
}

// IdentifierOverlap is 1 when any hard identifier is shared and 0 when
// both sides have identifiers but none match.
func IdentifierOverlap(a, b []string) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; ok {
			return 1, true
		}
	}
	return 0, true
}

// MetricProximity averages 1-|x-y|/max(|x|,|y|) over shared metrics.
func MetricProximity(a, b map[string]float64) (float64, bool) {
	var sum float64
	n := 0
	for k, x := range a {
		y, ok := b[k]
		if !ok {
			continue
		}
		n++
		denom := math.Max(math.Abs(x), math.Abs(y))
		if denom == 0 {
			sum++
			continue
		}
		sum += clamp(1 - math.Abs(x-y)/denom)
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
