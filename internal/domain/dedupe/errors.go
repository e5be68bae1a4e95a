package dedupe

import "errors"

// Sentinel errors for the deduplication engine.
var (
	// ErrNoReviewQueue reports an ambiguous candidate with nowhere to go.
	ErrNoReviewQueue = errors.New("no review queue configured")
	// ErrEmptyRecord reports a record without an id.
	ErrEmptyRecord = errors.New("candidate record has no id")
)
