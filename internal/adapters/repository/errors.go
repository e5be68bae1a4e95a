package repository

import (
	"errors"

	"github.com/okian/scout/internal/domain/model"
)

// Sentinel kinds for directory errors.
var (
	ErrNotFound = model.ErrNotFound
	// ErrVersionConflict reports a write that lost an optimistic version
	// check. It is retried by Retrying and never leaves the repository.
	ErrVersionConflict = errors.New("profile version conflict")
	// ErrRecordLinked reports an attempt to attach a record that already
	// contributes to a different profile.
	ErrRecordLinked = errors.New("record already linked to another profile")
	// ErrArchived reports a merge onto an archived profile.
	ErrArchived = errors.New("profile archived")
	// ErrLocked reports that another process owns the directory file.
	ErrLocked = errors.New("directory file locked by another process")
)
