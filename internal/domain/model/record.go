// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// recordNamespace scopes deterministic candidate record ids.
var recordNamespace = uuid.MustParse("6f1c2b8e-3f7a-4c1e-9a57-2d4b8c0e9f13")

// RecordID derives a stable candidate record id from the run, the source and
// the source-native id, so a redelivered execution re-ingests the same ids.
func RecordID(runID, sourceID, nativeID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(runID+"\x00"+sourceID+"\x00"+nativeID)).String()
}

// Attributes is the canonical attribute set extracted from a source.
type Attributes struct {
	Name        string             `json:"name"`
	Affiliation string             `json:"affiliation,omitempty"`
	Discipline  []string           `json:"discipline,omitempty"`
	Themes      []string           `json:"themes,omitempty"`
	Bio         string             `json:"bio,omitempty"`
	Email       string             `json:"email,omitempty"`
	Phone       string             `json:"phone,omitempty"`
	Links       []string           `json:"links,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
}

// Fingerprint hashes the attribute content. Equal attributes give equal
// fingerprints.
func (a Attributes) Fingerprint() string {
	b, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return uuid.NewSHA1(recordNamespace, b).String()
}

// Identifiers returns the hard identifiers (email, phone, links) used for
// blocking and identifier overlap, sorted and de-duplicated.
func (a Attributes) Identifiers() []string {
	seen := make(map[string]struct{})
	add := func(prefix, v string) {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			seen[prefix+v] = struct{}{}
		}
	}
	add("email:", a.Email)
	add("phone:", a.Phone)
	for _, l := range a.Links {
		add("link:", strings.TrimSuffix(l, "/"))
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	c := a
	c.Discipline = append([]string(nil), a.Discipline...)
	c.Themes = append([]string(nil), a.Themes...)
	c.Links = append([]string(nil), a.Links...)
	if a.Metrics != nil {
		c.Metrics = make(map[string]float64, len(a.Metrics))
		for k, v := range a.Metrics {
			c.Metrics[k] = v
		}
	}
	return c
}

// Absorb merges other into a: empty scalar fields are filled, list fields
// are unioned and metrics take the incoming value.
func (a Attributes) Absorb(other Attributes) Attributes {
	out := a.Clone()
	if out.Name == "" {
		out.Name = other.Name
	}
	if out.Affiliation == "" {
		out.Affiliation = other.Affiliation
	}
	if out.Email == "" {
		out.Email = other.Email
	}
	if out.Phone == "" {
		out.Phone = other.Phone
	}
	if out.Bio == "" {
		out.Bio = other.Bio
	}
	out.Discipline = union(out.Discipline, other.Discipline)
	out.Themes = union(out.Themes, other.Themes)
	out.Links = union(out.Links, other.Links)
	if len(other.Metrics) > 0 && out.Metrics == nil {
		out.Metrics = make(map[string]float64, len(other.Metrics))
	}
	for k, v := range other.Metrics {
		out.Metrics[k] = v
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok || s == "" {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// CandidateID derives the id of the generation-th candidate for a record.
// Generation 0 is the engine's decision; each operator reopen adds one.
func CandidateID(recordID string, generation int) string {
	return uuid.NewSHA1(recordNamespace, []byte("candidate\x00"+recordID+"\x00"+strconv.Itoa(generation))).String()
}

// CandidateRecord is a normalized record from a connector, not yet resolved
// to an identity. It is immutable after creation except for archival.
type CandidateRecord struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	NativeID   string     `json:"native_id"`
	RunID      string     `json:"run_id,omitempty"`
	Attributes Attributes `json:"attributes"`
	IngestedAt time.Time  `json:"ingested_at"`
	Archived   bool       `json:"archived"`
	ArchivedAt time.Time  `json:"archived_at,omitempty"`

	// ResolveError is set when resolution failed for good; the record then
	// has no candidate.
	ResolveError string `json:"resolve_error,omitempty"`
}

// Ref returns the provenance reference of this record.
func (r CandidateRecord) Ref() RecordRef {
	return RecordRef{RecordID: r.ID, SourceID: r.SourceID, NativeID: r.NativeID}
}

// Link builds the provenance entry attaching r through candidateID.
func (r CandidateRecord) Link(candidateID string, at time.Time) SourceLink {
	return SourceLink{
		RecordID:    r.ID,
		SourceID:    r.SourceID,
		NativeID:    r.NativeID,
		CandidateID: candidateID,
		ContentHash: r.Attributes.Fingerprint(),
		LinkedAt:    at,
	}
}

// RecordRef points at the source contribution of one candidate record.
type RecordRef struct {
	RecordID string `json:"record_id"`
	SourceID string `json:"source_id"`
	NativeID string `json:"native_id"`
}
