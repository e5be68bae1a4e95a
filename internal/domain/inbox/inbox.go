// Package inbox implements the Review Inbox: a one-shot state machine per
// item that turns ambiguous dedupe candidates into audited human decisions.
package inbox

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/keylock"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Directory is the part of the talent directory decisions write to.
type Directory interface {
	Get(ctx context.Context, id string) (model.TalentProfile, error)
	ProfileForRecord(ctx context.Context, recordID string) (model.TalentProfile, error)
	Create(ctx context.Context, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)
	UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)
	DetachProvenance(ctx context.Context, id, recordID string) (model.TalentProfile, error)
}

// Records reads and archives candidate records.
type Records interface {
	Get(ctx context.Context, id string) (model.CandidateRecord, error)
	Archive(ctx context.Context, id string) (model.CandidateRecord, error)
}

// CandidateSettler marks the dedupe candidate behind an item as decided.
type CandidateSettler interface {
	Settle(ctx context.Context, candidateID string, outcome model.Outcome, actor, profileID string) (model.DedupeCandidate, error)
}

// Store persists items and the audit trail. A nil store keeps them in
// memory only.
type Store interface {
	// SaveItem writes item and, when entry is not nil, appends entry to the
	// audit trail atomically.
	SaveItem(ctx context.Context, item model.InboxItem, entry *model.AuditEntry) error
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	LoadItems(ctx context.Context) ([]model.InboxItem, error)
	LoadAudit(ctx context.Context) ([]model.AuditEntry, error)
}

// Decision is a reviewer's verdict on one item.
type Decision struct {
	Outcome  model.InboxState
	Reviewer string
	// ProfileID targets a CONFIRMED_MERGE; empty means the proposed profile.
	ProfileID string
	Notes     string
}

// Filter narrows Pending.
type Filter struct {
	Assignee string
	Limit    int
}

// Inbox owns inbox items; nothing else mutates them.
type Inbox struct {
	dir     Directory
	records Records
	settler CandidateSettler
	store   Store
	log     logger.Logger
	now     func() time.Time
	newID   func() string
	locks   *keylock.Map

	mu          sync.RWMutex
	items       map[string]*model.InboxItem
	byCandidate map[string]string
	audit       []model.AuditEntry
}

// New creates an inbox.
func New(dir Directory, records Records, settler CandidateSettler, opts ...Option) *Inbox {
	i := &Inbox{
		dir:         dir,
		records:     records,
		settler:     settler,
		log:         logger.Get().Named("inbox"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		locks:       keylock.New(),
		items:       make(map[string]*model.InboxItem),
		byCandidate: make(map[string]string),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Open creates the item for a pending candidate. Opening the same candidate
// again returns the existing item.
func (i *Inbox) Open(ctx context.Context, c model.DedupeCandidate) (model.InboxItem, error) {
	if !c.Pending() {
		return model.InboxItem{}, model.NewKind("inbox.open", model.ErrInvalidState, "candidate %s is %s", c.ID, c.State)
	}
	i.mu.Lock()
	if id, ok := i.byCandidate[c.ID]; ok {
		item := i.items[id].Clone()
		i.mu.Unlock()
		return item, nil
	}
	item := &model.InboxItem{
		ID:                i.newID(),
		CandidateID:       c.ID,
		RecordID:          c.RecordID,
		ProposedProfileID: c.ProposedProfileID,
		Score:             c.Score,
		State:             model.InboxPending,
		CreatedAt:         i.now(),
	}
	if err := i.persistLocked(ctx, *item, nil); err != nil {
		i.mu.Unlock()
		return model.InboxItem{}, err
	}
	i.items[item.ID] = item
	i.byCandidate[c.ID] = item.ID
	pending := i.pendingLocked()
	out := item.Clone()
	i.mu.Unlock()

	metrics.UpdateInboxPending(pending)
	i.log.Info(ctx, "inbox item opened",
		logger.String("item_id", out.ID),
		logger.String("candidate_id", c.ID),
		logger.String("record_id", c.RecordID),
		logger.Float64("score", c.Score),
	)
	return out, nil
}

// Decide applies a reviewer decision. It is the only way an item leaves
// PENDING; deciding a decided item fails with model.ErrInvalidState and
// changes nothing.
func (i *Inbox) Decide(ctx context.Context, itemID string, d Decision) (model.InboxItem, error) {
	if _, ok := model.ParseInboxOutcome(string(d.Outcome)); !ok {
		metrics.RecordInboxRejected("invalid_outcome")
		return model.InboxItem{}, model.NewKind("inbox.decide", ErrInvalidDecision, "unknown outcome %q", d.Outcome)
	}
	if strings.TrimSpace(d.Reviewer) == "" {
		metrics.RecordInboxRejected("missing_reviewer")
		return model.InboxItem{}, model.NewKind("inbox.decide", ErrInvalidDecision, "reviewer is required")
	}

	unlock := i.locks.Lock(itemID)
	defer unlock()

	item, err := i.Get(itemID)
	if err != nil {
		return model.InboxItem{}, err
	}
	if _, err := item.State.Next(d.Outcome); err != nil {
		metrics.RecordInboxRejected("invalid_state")
		return model.InboxItem{}, err
	}

	rec, err := i.records.Get(ctx, item.RecordID)
	if err != nil {
		return model.InboxItem{}, err
	}
	profileID, err := i.apply(ctx, item, rec, d)
	if err != nil {
		return model.InboxItem{}, err
	}

	outcome := d.Outcome.CandidateOutcome()
	if c, err := i.settler.Settle(ctx, item.CandidateID, outcome, d.Reviewer, profileID); err != nil {
		// A previous attempt of this decision may have settled the candidate
		// before failing; accept that, reject anything else.
		if !errors.Is(err, model.ErrInvalidState) || c.Outcome != outcome || c.ProfileID != profileID {
			return model.InboxItem{}, err
		}
	}

	now := i.now()
	i.mu.Lock()
	next := i.items[itemID].Clone()
	next.State = d.Outcome
	next.Reviewer = d.Reviewer
	next.ProfileID = profileID
	next.DecidedAt = now
	if d.Notes != "" {
		next.Notes = append(next.Notes, d.Notes)
	}
	entry := i.nextAuditLocked(model.AuditEntry{
		Action:      model.AuditDecision,
		ItemID:      itemID,
		CandidateID: item.CandidateID,
		RecordID:    item.RecordID,
		Outcome:     d.Outcome,
		Actor:       d.Reviewer,
		ProfileID:   profileID,
		Notes:       d.Notes,
		At:          now,
	})
	// The directory effect and the candidate are already settled; a failed
	// write leaves the item pending and a retried decision converges.
	if err := i.persistLocked(ctx, next, &entry); err != nil {
		i.mu.Unlock()
		return model.InboxItem{}, err
	}
	*i.items[itemID] = next
	i.audit = append(i.audit, entry)
	out := next.Clone()
	pending := i.pendingLocked()
	i.mu.Unlock()

	metrics.RecordInboxDecision(string(d.Outcome))
	metrics.UpdateInboxPending(pending)
	i.log.Info(ctx, "inbox item decided",
		logger.String("item_id", itemID),
		logger.String("outcome", string(d.Outcome)),
		logger.String("reviewer", d.Reviewer),
		logger.String("profile_id", profileID),
	)
	return out, nil
}

// apply performs the directory effect of a decision and returns the profile
// the record ends up linked to ("" when rejected). A record already linked
// by an earlier decision is detached first unless it already sits where the
// decision puts it.
func (i *Inbox) apply(ctx context.Context, item model.InboxItem, rec model.CandidateRecord, d Decision) (string, error) {
	prev, err := i.dir.ProfileForRecord(ctx, rec.ID)
	linked := err == nil
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return "", err
	}
	link := rec.Link(item.CandidateID, i.now())

	detach := func() error {
		if !linked {
			return nil
		}
		_, err := i.dir.DetachProvenance(ctx, prev.ID, rec.ID)
		return err
	}

	switch d.Outcome {
	case model.InboxConfirmedMerge:
		target := d.ProfileID
		if target == "" {
			target = item.ProposedProfileID
		}
		if target == "" {
			return "", model.NewKind("inbox.decide", ErrInvalidDecision, "merge needs a target profile")
		}
		if linked && prev.ID == target {
			return target, nil
		}
		p, err := i.dir.Get(ctx, target)
		if err != nil {
			return "", err
		}
		if p.Archived {
			return "", model.NewKind("inbox.decide", ErrInvalidDecision, "profile %s is archived", target)
		}
		if err := detach(); err != nil {
			return "", err
		}
		p, err = i.dir.UpsertProvenance(ctx, target, rec, link)
		if err != nil {
			return "", err
		}
		return p.ID, nil

	case model.InboxConfirmedNew:
		if linked && prev.OriginRecordID == rec.ID && len(prev.Provenance) == 1 {
			return prev.ID, nil
		}
		if err := detach(); err != nil {
			return "", err
		}
		p, err := i.dir.Create(ctx, rec, link)
		if err != nil {
			return "", err
		}
		return p.ID, nil

	default:
		if err := detach(); err != nil {
			return "", err
		}
		if _, err := i.records.Archive(ctx, rec.ID); err != nil {
			return "", err
		}
		return "", nil
	}
}

// Assign sets the reviewer responsible for a pending item.
func (i *Inbox) Assign(ctx context.Context, itemID, assignee string) (model.InboxItem, error) {
	return i.mutatePending(ctx, itemID, "inbox.assign", func(item *model.InboxItem, now time.Time) *model.AuditEntry {
		item.Assignee = assignee
		return &model.AuditEntry{
			Action: model.AuditAssign, ItemID: item.ID, CandidateID: item.CandidateID,
			RecordID: item.RecordID, Actor: assignee, At: now,
		}
	})
}

// Annotate appends a review note to a pending item.
func (i *Inbox) Annotate(ctx context.Context, itemID, note string) (model.InboxItem, error) {
	return i.mutatePending(ctx, itemID, "inbox.annotate", func(item *model.InboxItem, _ time.Time) *model.AuditEntry {
		if note != "" {
			item.Notes = append(item.Notes, note)
		}
		return nil
	})
}

// mutatePending applies fn to a copy of a pending item and swaps it in once
// persisted, along with the audit entry fn returns.
func (i *Inbox) mutatePending(ctx context.Context, itemID, op string, fn func(item *model.InboxItem, now time.Time) *model.AuditEntry) (model.InboxItem, error) {
	unlock := i.locks.Lock(itemID)
	defer unlock()

	i.mu.Lock()
	defer i.mu.Unlock()
	item, ok := i.items[itemID]
	if !ok {
		return model.InboxItem{}, model.NewKind(op, model.ErrNotFound, "item %s", itemID)
	}
	if item.State != model.InboxPending {
		return model.InboxItem{}, model.NewKind(op, model.ErrInvalidState, "item %s is %s", itemID, item.State)
	}
	next := item.Clone()
	entry := fn(&next, i.now())
	if entry != nil {
		*entry = i.nextAuditLocked(*entry)
	}
	if err := i.persistLocked(ctx, next, entry); err != nil {
		return model.InboxItem{}, err
	}
	*item = next
	if entry != nil {
		i.audit = append(i.audit, *entry)
	}
	return next.Clone(), nil
}

// Get returns an item by id.
func (i *Inbox) Get(itemID string) (model.InboxItem, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	item, ok := i.items[itemID]
	if !ok {
		return model.InboxItem{}, model.NewKind("inbox.get", model.ErrNotFound, "item %s", itemID)
	}
	return item.Clone(), nil
}

// ForCandidate returns the item wrapping a candidate.
func (i *Inbox) ForCandidate(candidateID string) (model.InboxItem, error) {
	i.mu.RLock()
	id, ok := i.byCandidate[candidateID]
	i.mu.RUnlock()
	if !ok {
		return model.InboxItem{}, model.NewKind("inbox.get", model.ErrNotFound, "candidate %s", candidateID)
	}
	return i.Get(id)
}

// Pending lists pending items, oldest first.
func (i *Inbox) Pending(f Filter) []model.InboxItem {
	return i.list(f.Limit, func(item *model.InboxItem) bool {
		return item.State == model.InboxPending && (f.Assignee == "" || item.Assignee == f.Assignee)
	}, false)
}

// Archived lists decided items, most recently decided first.
func (i *Inbox) Archived(limit int) []model.InboxItem {
	return i.list(limit, func(item *model.InboxItem) bool { return item.State.Terminal() }, true)
}

func (i *Inbox) list(limit int, keep func(*model.InboxItem) bool, newestFirst bool) []model.InboxItem {
	i.mu.RLock()
	out := make([]model.InboxItem, 0)
	for _, item := range i.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}
	i.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		ta, tb := out[a].CreatedAt, out[b].CreatedAt
		if newestFirst {
			ta, tb = out[b].DecidedAt, out[a].DecidedAt
		}
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return out[a].ID < out[b].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PendingCount returns the number of pending items.
func (i *Inbox) PendingCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pendingLocked()
}

// Record appends an operator action taken outside the inbox, such as a
// reopen or a profile archive, to the audit log.
func (i *Inbox) Record(ctx context.Context, entry model.AuditEntry) (model.AuditEntry, error) {
	if entry.At.IsZero() {
		entry.At = i.now()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	entry = i.nextAuditLocked(entry)
	if i.store != nil {
		if err := i.store.AppendAudit(ctx, entry); err != nil {
			return model.AuditEntry{}, err
		}
	}
	i.audit = append(i.audit, entry)
	return entry, nil
}

// Audit returns up to limit audit entries, newest first.
func (i *Inbox) Audit(limit int) []model.AuditEntry {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n := len(i.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.AuditEntry, 0, limit)
	for k := n - 1; k >= n-limit; k-- {
		out = append(out, i.audit[k])
	}
	return out
}

// nextAuditLocked numbers e without appending it.
func (i *Inbox) nextAuditLocked(e model.AuditEntry) model.AuditEntry {
	e.Seq = int64(len(i.audit) + 1)
	return e
}

func (i *Inbox) persistLocked(ctx context.Context, item model.InboxItem, entry *model.AuditEntry) error {
	if i.store == nil {
		return nil
	}
	return i.store.SaveItem(ctx, item, entry)
}

// Restore loads persisted items and the audit trail. It is meant to run
// once, before the inbox serves requests.
func (i *Inbox) Restore(ctx context.Context) (int, error) {
	if i.store == nil {
		return 0, nil
	}
	items, err := i.store.LoadItems(ctx)
	if err != nil {
		return 0, err
	}
	audit, err := i.store.LoadAudit(ctx)
	if err != nil {
		return 0, err
	}
	i.mu.Lock()
	i.items = make(map[string]*model.InboxItem, len(items))
	i.byCandidate = make(map[string]string, len(items))
	for _, item := range items {
		stored := item.Clone()
		i.items[item.ID] = &stored
		i.byCandidate[item.CandidateID] = item.ID
	}
	i.audit = audit
	pending := i.pendingLocked()
	i.mu.Unlock()

	metrics.UpdateInboxPending(pending)
	i.log.Info(ctx, "inbox restored",
		logger.Int("items", len(items)),
		logger.Int("pending", pending),
		logger.Int("audit", len(audit)),
	)
	return len(items), nil
}

func (i *Inbox) pendingLocked() int {
	n := 0
	for _, item := range i.items {
		if item.State == model.InboxPending {
			n++
		}
	}
	return n
}
