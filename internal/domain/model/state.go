package model

// RunState is the lifecycle state of a Run.
// QUEUED -> RUNNING -> {SUCCEEDED, FAILED, PARTIAL}; never backwards.
type RunState string

const (
	RunQueued    RunState = "QUEUED"
	RunRunning   RunState = "RUNNING"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
	RunPartial   RunState = "PARTIAL"
)

var runTransitions = map[RunState][]RunState{
	RunQueued:  {RunRunning, RunSucceeded, RunFailed, RunPartial},
	RunRunning: {RunSucceeded, RunFailed, RunPartial},
}

// Terminal reports whether no further transition is allowed.
func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunPartial
}

// Next validates a transition and returns the new state.
func (s RunState) Next(to RunState) (RunState, error) {
	if allowed(runTransitions[s], to) {
		return to, nil
	}
	return s, NewKind("run.transition", ErrInvalidState, "%s -> %s", s, to)
}

// ExecutionState is the lifecycle state of a ConnectorExecution.
type ExecutionState string

const (
	ExecutionQueued    ExecutionState = "QUEUED"
	ExecutionRunning   ExecutionState = "RUNNING"
	ExecutionSucceeded ExecutionState = "SUCCEEDED"
	ExecutionFailed    ExecutionState = "FAILED"
)

var executionTransitions = map[ExecutionState][]ExecutionState{
	ExecutionQueued:  {ExecutionRunning, ExecutionSucceeded, ExecutionFailed},
	ExecutionRunning: {ExecutionSucceeded, ExecutionFailed},
}

// Terminal reports whether the execution has finished.
func (s ExecutionState) Terminal() bool {
	return s == ExecutionSucceeded || s == ExecutionFailed
}

// Next validates a transition and returns the new state.
func (s ExecutionState) Next(to ExecutionState) (ExecutionState, error) {
	if allowed(executionTransitions[s], to) {
		return to, nil
	}
	return s, NewKind("execution.transition", ErrInvalidState, "%s -> %s", s, to)
}

// CandidateState is the lifecycle state of a DedupeCandidate.
type CandidateState string

const (
	CandidatePending CandidateState = "PENDING"
	CandidateDecided CandidateState = "DECIDED"
)

// Next validates a transition and returns the new state.
func (s CandidateState) Next(to CandidateState) (CandidateState, error) {
	if s == CandidatePending && to == CandidateDecided {
		return to, nil
	}
	return s, NewKind("candidate.transition", ErrInvalidState, "%s -> %s", s, to)
}

// Outcome is the resolution of a DedupeCandidate.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeMerge     Outcome = "MERGE"
	OutcomeNewEntity Outcome = "NEW_ENTITY"
	OutcomeRejected  Outcome = "REJECTED"
)

// InboxState is the lifecycle state of an InboxItem.
// PENDING -> {CONFIRMED_MERGE, CONFIRMED_NEW, REJECTED}.
type InboxState string

const (
	InboxPending        InboxState = "PENDING"
	InboxConfirmedMerge InboxState = "CONFIRMED_MERGE"
	InboxConfirmedNew   InboxState = "CONFIRMED_NEW"
	InboxRejected       InboxState = "REJECTED"
)

// ParseInboxOutcome validates a reviewer supplied outcome.
func ParseInboxOutcome(s string) (InboxState, bool) {
	switch InboxState(s) {
	case InboxConfirmedMerge, InboxConfirmedNew, InboxRejected:
		return InboxState(s), true
	default:
		return "", false
	}
}

// Terminal reports whether the item has been decided.
func (s InboxState) Terminal() bool {
	return s != InboxPending
}

// Next validates a transition and returns the new state.
func (s InboxState) Next(to InboxState) (InboxState, error) {
	if s == InboxPending && to.Terminal() {
		if _, ok := ParseInboxOutcome(string(to)); ok {
			return to, nil
		}
	}
	return s, NewKind("inbox.transition", ErrInvalidState, "%s -> %s", s, to)
}

// CandidateOutcome maps a reviewer decision to the dedupe outcome it settles.
func (s InboxState) CandidateOutcome() Outcome {
	switch s {
	case InboxConfirmedMerge:
		return OutcomeMerge
	case InboxConfirmedNew:
		return OutcomeNewEntity
	case InboxRejected:
		return OutcomeRejected
	default:
		return OutcomeNone
	}
}

func allowed[T comparable](targets []T, to T) bool {
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
