package scoring

import (
	"time"

	"github.com/okian/scout/internal/domain/model"
)

// Signal components and their points.
const (
	TierInstitutional = "institutional"
	TierCommunity     = "community"
	TierSocial        = "social"
	ComponentRecency  = "recency"

	institutionalPoints = 40.0
	communityPoints     = 30.0
	socialPoints        = 20.0
	recencyPoints       = 10.0
)

var tierPoints = map[string]float64{
	TierInstitutional: institutionalPoints,
	TierCommunity:     communityPoints,
	TierSocial:        socialPoints,
}

// SignalScorer rates how strongly the sources behind a profile vouch for
// it. Each tier contributes once, whatever the number of sources in it, and
// recency decays with the age of the profile.
type SignalScorer struct {
	tiers map[string]string
	now   func() time.Time
}

// NewSignalScorer creates a scorer from a connector id to tier mapping.
// Connectors with no or an unknown tier contribute nothing.
func NewSignalScorer(tiers map[string]string, now func() time.Time) *SignalScorer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	m := make(map[string]string, len(tiers))
	for id, tier := range tiers {
		if _, ok := tierPoints[tier]; ok {
			m[id] = tier
		}
	}
	return &SignalScorer{tiers: m, now: now}
}

// Score computes the signal of p. The total is at most 100.
func (s *SignalScorer) Score(p model.TalentProfile) model.Signal {
	breakdown := map[string]float64{
		TierInstitutional: 0,
		TierCommunity:     0,
		TierSocial:        0,
		ComponentRecency:  recencyPoints * RecencyWeight(p.CreatedAt, s.now()),
	}
	for _, l := range p.Provenance {
		if tier, ok := s.tiers[l.SourceID]; ok {
			breakdown[tier] = tierPoints[tier]
		}
	}
	total := 0.0
	for _, v := range breakdown {
		total += v
	}
	return model.Signal{Score: total, Breakdown: breakdown}
}

// Annotate sets the signal of p and returns it.
func (s *SignalScorer) Annotate(p model.TalentProfile) model.TalentProfile {
	sig := s.Score(p)
	p.Signal = &sig
	return p
}

// RecencyWeight is 1 for a first sighting within 30 days, 0.5 within 90
// days and 0.2 after that.
func RecencyWeight(firstSeen, now time.Time) float64 {
	days := int(now.Sub(firstSeen).Hours() / 24)
	switch {
	case days <= 30:
		return 1
	case days <= 90:
		return 0.5
	default:
		return 0.2
	}
}
