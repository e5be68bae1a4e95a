package model

import (
	"sort"
	"time"
)

// Run is one scheduled execution of a chosen set of connectors.
type Run struct {
	ID         string
	Connectors []string
	State      RunState
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Executions []ConnectorExecution
}

// ConnectorExecution tracks one connector within a run.
type ConnectorExecution struct {
	RunID       string
	ConnectorID string
	State       ExecutionState
	Records     int
	Rejected    int
	Error       string
	TimedOut    bool
	QueuedAt    time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Deadline    time.Time

	// Unresolved counts ingested records whose resolution failed for good.
	// It is derived from the record store when the run is read.
	Unresolved int
}

// ExecutionOutcome is what a worker reports when a connector execution ends.
type ExecutionOutcome struct {
	Succeeded bool
	Records   int
	Rejected  int
	Error     string
	TimedOut  bool
}

// Succeeded builds a successful outcome.
func Succeeded(records, rejected int) ExecutionOutcome {
	return ExecutionOutcome{Succeeded: true, Records: records, Rejected: rejected}
}

// Failed builds a failed outcome from err.
func Failed(err error) ExecutionOutcome {
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	return ExecutionOutcome{Error: msg}
}

// TimedOut builds a failed outcome for an execution that exceeded budget.
func TimedOut(budget time.Duration) ExecutionOutcome {
	return ExecutionOutcome{
		Error:    NewKind("", ErrTimeout, "exceeded %s", budget).Error(),
		TimedOut: true,
	}
}

// Execution returns the execution for connectorID.
func (r *Run) Execution(connectorID string) (*ConnectorExecution, bool) {
	for i := range r.Executions {
		if r.Executions[i].ConnectorID == connectorID {
			return &r.Executions[i], true
		}
	}
	return nil, false
}

// Settled reports whether every execution reached a terminal state.
func (r *Run) Settled() bool {
	for _, e := range r.Executions {
		if !e.State.Terminal() {
			return false
		}
	}
	return true
}

// FinalState derives the terminal run state from execution states. It only
// depends on the multiset of terminal states, so arrival order is irrelevant.
func FinalState(executions []ConnectorExecution) RunState {
	var ok, failed int
	for _, e := range executions {
		switch e.State {
		case ExecutionSucceeded:
			ok++
		case ExecutionFailed:
			failed++
		}
	}
	switch {
	case failed == 0:
		return RunSucceeded
	case ok == 0:
		return RunFailed
	default:
		return RunPartial
	}
}

// Failures lists failed executions in connector order.
func (r *Run) Failures() []ConnectorExecution {
	var out []ConnectorExecution
	for _, e := range r.Executions {
		if e.State == ExecutionFailed {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectorID < out[j].ConnectorID })
	return out
}

// Clone returns a deep copy safe to hand out of an owning component.
func (r *Run) Clone() Run {
	c := *r
	c.Connectors = append([]string(nil), r.Connectors...)
	c.Executions = append([]ConnectorExecution(nil), r.Executions...)
	return c
}
