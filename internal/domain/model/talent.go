package model

import (
	"sort"
	"time"
)

// SourceLink is one provenance entry of a TalentProfile.
type SourceLink struct {
	RecordID    string    `json:"record_id"`
	SourceID    string    `json:"source_id"`
	NativeID    string    `json:"native_id"`
	CandidateID string    `json:"candidate_id"`
	ContentHash string    `json:"content_hash,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
}

// SameItem reports whether l and o point at the same source item.
func (l SourceLink) SameItem(o SourceLink) bool {
	return l.NativeID != "" && l.SourceID == o.SourceID && l.NativeID == o.NativeID
}

// TalentProfile is the canonical, deduplicated entity for one real talent.
// It is mutated only through accepted merges and never hard-deleted.
type TalentProfile struct {
	ID             string       `json:"id"`
	Attributes     Attributes   `json:"attributes"`
	Provenance     []SourceLink `json:"provenance"`
	Version        int64        `json:"version"`
	OriginRecordID string       `json:"origin_record_id"`
	Archived       bool         `json:"archived"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`

	// Signal is derived from provenance when the profile is read.
	Signal *Signal `json:"signal,omitempty"`
}

// Signal is the talent signal score with its per-component breakdown.
type Signal struct {
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown"`
}

// HasRecord reports whether recordID already contributes to the profile.
func (p *TalentProfile) HasRecord(recordID string) bool {
	for _, l := range p.Provenance {
		if l.RecordID == recordID {
			return true
		}
	}
	return false
}

// LinkFor returns the provenance entry carrying the same source item as link.
func (p *TalentProfile) LinkFor(link SourceLink) (SourceLink, bool) {
	for _, l := range p.Provenance {
		if l.SameItem(link) {
			return l, true
		}
	}
	return SourceLink{}, false
}

// Link attaches rec, merges its attributes and bumps the version. A source
// item that is already linked with the same content hash is left alone; a
// changed one replaces its earlier entry in place. It returns false when
// the profile did not change.
func (p *TalentProfile) Link(rec CandidateRecord, link SourceLink, now time.Time) bool {
	if p.HasRecord(rec.ID) {
		return false
	}
	if link.LinkedAt.IsZero() {
		link.LinkedAt = now
	}
	replaced := false
	for i, l := range p.Provenance {
		if !l.SameItem(link) {
			continue
		}
		if l.ContentHash == link.ContentHash {
			return false
		}
		p.Provenance[i] = link
		replaced = true
		break
	}
	if !replaced {
		p.Provenance = append(p.Provenance, link)
	}
	p.Attributes = p.Attributes.Absorb(rec.Attributes)
	p.Version++
	p.UpdatedAt = now
	return true
}

// Unlink removes the provenance entry for recordID and bumps the version.
// Attributes already merged are kept; provenance is the source of truth for
// which records contribute.
func (p *TalentProfile) Unlink(recordID string, now time.Time) bool {
	for i, l := range p.Provenance {
		if l.RecordID == recordID {
			p.Provenance = append(p.Provenance[:i:i], p.Provenance[i+1:]...)
			p.Version++
			p.UpdatedAt = now
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (p *TalentProfile) Clone() TalentProfile {
	c := *p
	c.Attributes = p.Attributes.Clone()
	c.Provenance = append([]SourceLink(nil), p.Provenance...)
	return c
}

// NewProfile builds a version 1 profile whose first provenance entry is rec.
func NewProfile(id string, rec CandidateRecord, link SourceLink, now time.Time) TalentProfile {
	if link.LinkedAt.IsZero() {
		link.LinkedAt = now
	}
	return TalentProfile{
		ID:             id,
		Attributes:     rec.Attributes.Clone(),
		Provenance:     []SourceLink{link},
		Version:        1,
		OriginRecordID: rec.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ScoredProfile pairs a profile with its similarity to a record.
type ScoredProfile struct {
	ProfileID  string
	Provenance int
	Score      float64
}

// Best picks the highest score. Ties prefer more provenance links, then the
// lowest profile id.
func Best(scored []ScoredProfile) (ScoredProfile, bool) {
	if len(scored) == 0 {
		return ScoredProfile{}, false
	}
	ranked := append([]ScoredProfile(nil), scored...)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Provenance != b.Provenance {
			return a.Provenance > b.Provenance
		}
		return a.ProfileID < b.ProfileID
	})
	return ranked[0], true
}
