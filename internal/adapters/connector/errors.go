package connector

import "errors"

// Sentinel errors for the connector package.
var (
	ErrDuplicateConnector = errors.New("connector already registered")
	ErrUnknownKind        = errors.New("unknown connector kind")
	ErrMissingName        = errors.New("record has no name")
	ErrNonFiniteMetric    = errors.New("metric is not a finite number")
)
