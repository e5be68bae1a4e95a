package inbox

import "errors"

// Sentinel errors for the review inbox.
var (
	// ErrInvalidDecision reports a malformed decision: unknown outcome,
	// missing reviewer or a merge without a target profile.
	ErrInvalidDecision = errors.New("invalid decision")
)
