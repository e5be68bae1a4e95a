// Package repository implements the Talent Directory Store and the
// candidate record store.
package repository

import (
	"context"
	"iter"

	"github.com/okian/scout/internal/domain/model"
)

// Directory is the canonical talent directory. Writes to one profile are
// serialized; reads of a profile observe every write that returned before.
type Directory interface {
	// Get returns the profile with id or ErrNotFound.
	Get(ctx context.Context, id string) (model.TalentProfile, error)

	// ProfileForRecord returns the profile rec currently contributes to.
	ProfileForRecord(ctx context.Context, recordID string) (model.TalentProfile, error)

	// ProfileForSource returns the non-archived profile that already carries
	// the source item sourceID/nativeID.
	ProfileForSource(ctx context.Context, sourceID, nativeID string) (model.TalentProfile, error)

	// Create builds a new profile from rec. It is idempotent by origin
	// record: creating from the same record again returns the existing
	// profile unchanged.
	Create(ctx context.Context, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)

	// UpsertProvenance attaches rec to profile id, merges its attributes and
	// increments the version. Re-attaching the same record, or the same
	// source item with an unchanged content hash, is a no-op. A source item
	// whose content changed replaces its earlier provenance entry.
	UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)

	// DetachProvenance removes recordID from profile id. A profile left
	// without provenance is archived.
	DetachProvenance(ctx context.Context, id, recordID string) (model.TalentProfile, error)

	// Archive soft-archives a profile. Archived profiles are skipped by
	// blocking and hidden from search unless requested.
	Archive(ctx context.Context, id string) (model.TalentProfile, error)

	// Block returns non-archived profiles indexed under any of keys, ordered
	// by id and capped at limit (0 = unbounded).
	Block(ctx context.Context, keys []string, limit int) ([]model.TalentProfile, error)

	// Search lists profiles matching filter.
	Search(ctx context.Context, filter Filter) (Page, error)

	// Count returns the number of non-archived profiles.
	Count(ctx context.Context) int
}

// Filter narrows Search.
type Filter struct {
	// Query matches folded names, affiliations and identifiers by substring.
	Query           string
	Affiliation     string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// Page is one page of Search results.
type Page struct {
	Items    []model.TalentProfile
	Total    int
	Page     int
	PageSize int
}

// RecordStore persists candidate records.
type RecordStore interface {
	// Put stores rec. It returns false when a record with the same id
	// already exists, leaving the stored record untouched.
	Put(ctx context.Context, rec model.CandidateRecord) (bool, error)
	Get(ctx context.Context, id string) (model.CandidateRecord, error)
	// Archive marks a record archived with no directory effect.
	Archive(ctx context.Context, id string) (model.CandidateRecord, error)
	// ByExecution lists the records ingested by one connector execution.
	ByExecution(ctx context.Context, runID, connectorID string) ([]model.CandidateRecord, error)
	// MarkUnresolved records why resolution of a record failed for good. An
	// empty reason clears the mark.
	MarkUnresolved(ctx context.Context, id, reason string) (model.CandidateRecord, error)
	// Unresolved counts marked records of a run per connector.
	Unresolved(ctx context.Context, runID string) (map[string]int, error)
	// All yields every stored record in ingestion order.
	All(ctx context.Context) iter.Seq2[model.CandidateRecord, error]
	Count(ctx context.Context) int
}
