package model

import "time"

// DedupeCandidate is a proposed identity resolution for a CandidateRecord.
// It is terminal once decided; reversal creates a new candidate that
// supersedes it.
type DedupeCandidate struct {
	ID                string         `json:"id"`
	RecordID          string         `json:"record_id"`
	Generation        int            `json:"generation"`
	ProposedProfileID string         `json:"proposed_profile_id,omitempty"`
	ProfileID         string         `json:"profile_id,omitempty"`
	Score             float64        `json:"score"`
	BlockSize         int            `json:"block_size"`
	State             CandidateState `json:"state"`
	Outcome           Outcome        `json:"outcome,omitempty"`
	DecidedBy         string         `json:"decided_by,omitempty"`
	Supersedes        string         `json:"supersedes,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	DecidedAt         time.Time      `json:"decided_at,omitempty"`
}

// Pending reports whether the candidate awaits a decision.
func (c DedupeCandidate) Pending() bool { return c.State == CandidatePending }

// Decide moves the candidate to DECIDED with outcome.
func (c *DedupeCandidate) Decide(outcome Outcome, actor, profileID string, now time.Time) error {
	next, err := c.State.Next(CandidateDecided)
	if err != nil {
		return err
	}
	c.State = next
	c.Outcome = outcome
	c.DecidedBy = actor
	c.ProfileID = profileID
	c.DecidedAt = now
	return nil
}

// InboxItem wraps a pending DedupeCandidate awaiting a human decision.
type InboxItem struct {
	ID                string     `json:"id"`
	CandidateID       string     `json:"candidate_id"`
	RecordID          string     `json:"record_id"`
	ProposedProfileID string     `json:"proposed_profile_id,omitempty"`
	Score             float64    `json:"score"`
	State             InboxState `json:"state"`
	Assignee          string     `json:"assignee,omitempty"`
	Notes             []string   `json:"notes,omitempty"`
	Reviewer          string     `json:"reviewer,omitempty"`
	ProfileID         string     `json:"profile_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	DecidedAt         time.Time  `json:"decided_at,omitempty"`
}

// Clone returns a deep copy.
func (i InboxItem) Clone() InboxItem {
	i.Notes = append([]string(nil), i.Notes...)
	return i
}

// AuditEntry records one reviewer or operator action.
type AuditEntry struct {
	Seq         int64      `json:"seq"`
	Action      string     `json:"action"`
	ItemID      string     `json:"item_id,omitempty"`
	CandidateID string     `json:"candidate_id"`
	RecordID    string     `json:"record_id"`
	Outcome     InboxState `json:"outcome,omitempty"`
	Actor       string     `json:"actor"`
	ProfileID   string     `json:"profile_id,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	At          time.Time  `json:"at"`
}

// Audit actions.
const (
	AuditDecision = "decision"
	AuditAssign   = "assign"
	AuditReopen   = "reopen"
	AuditArchive  = "archive"
)
