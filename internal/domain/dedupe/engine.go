// Package dedupe implements the Deduplication Engine: it resolves each
// candidate record to an existing talent profile, a new profile or a
// pending human review.
package dedupe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/scoring"
	"github.com/okian/scout/pkg/keylock"
	"github.com/okian/scout/pkg/logger"
	"github.com/okian/scout/pkg/metrics"
)

// Actor recorded on decisions the engine takes on its own.
const Actor = "engine"

// ReasonKnownItem marks a candidate routed by existing provenance.
const ReasonKnownItem = "source item already linked"

// Directory is the part of the talent directory the engine writes to.
type Directory interface {
	Block(ctx context.Context, keys []string, limit int) ([]model.TalentProfile, error)
	ProfileForRecord(ctx context.Context, recordID string) (model.TalentProfile, error)
	ProfileForSource(ctx context.Context, sourceID, nativeID string) (model.TalentProfile, error)
	Create(ctx context.Context, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)
	UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error)
}

// ReviewQueue receives pending candidates. Open must be idempotent per
// candidate id.
type ReviewQueue interface {
	Open(ctx context.Context, c model.DedupeCandidate) (model.InboxItem, error)
}

// Store persists candidates. A nil store keeps them in memory only.
type Store interface {
	SaveCandidate(ctx context.Context, c model.DedupeCandidate) error
	LoadCandidates(ctx context.Context) ([]model.DedupeCandidate, error)
}

// Filter narrows Candidates.
type Filter struct {
	State   model.CandidateState
	Outcome model.Outcome
	Limit   int
}

// Engine resolves candidate records. Work on one record is serialized; work
// on different records runs concurrently.
type Engine struct {
	dir        Directory
	scorer     scoring.Scorer
	review     ReviewQueue
	store      Store
	maxBlock   int
	log        logger.Logger
	now        func() time.Time
	records    *keylock.Map
	thMu       sync.RWMutex
	thresholds model.Thresholds

	mu         sync.RWMutex
	candidates map[string]*model.DedupeCandidate
	history    map[string][]string // record id -> candidate ids, oldest first
}

// NewEngine creates an engine writing to dir.
func NewEngine(dir Directory, opts ...Option) *Engine {
	e := &Engine{
		dir:        dir,
		scorer:     scoring.NewSimilarityScorer(),
		maxBlock:   defaultMaxBlockSize,
		log:        logger.Get().Named("dedupe"),
		now:        func() time.Time { return time.Now().UTC() },
		records:    keylock.New(),
		thresholds: model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3},
		candidates: make(map[string]*model.DedupeCandidate),
		history:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetReviewQueue wires the review queue after construction, for callers
// whose queue itself depends on the engine.
func (e *Engine) SetReviewQueue(q ReviewQueue) { e.review = q }

// Thresholds returns the active thresholds.
func (e *Engine) Thresholds() model.Thresholds {
	e.thMu.RLock()
	defer e.thMu.RUnlock()
	return e.thresholds
}

// SetThresholds validates and installs new thresholds. Records resolved
// afterwards use them; decided candidates are not revisited.
func (e *Engine) SetThresholds(t model.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	e.thMu.Lock()
	e.thresholds = t
	e.thMu.Unlock()
	return nil
}

// Resolve returns the DedupeCandidate for rec, creating it on first call.
// Redelivery of an already resolved record returns the existing candidate.
func (e *Engine) Resolve(ctx context.Context, rec model.CandidateRecord) (model.DedupeCandidate, error) {
	if rec.ID == "" {
		return model.DedupeCandidate{}, ErrEmptyRecord
	}
	unlock := e.records.Lock(rec.ID)
	defer unlock()

	if cur, ok := e.current(rec.ID); ok {
		metrics.RecordDuplicateDelivery("dedupe")
		if cur.Pending() {
			// The inbox item may be missing if the first attempt failed after
			// saving the candidate.
			if err := e.openReview(ctx, cur); err != nil {
				return model.DedupeCandidate{}, err
			}
		}
		return cur, nil
	}

	start := time.Now()
	th := e.Thresholds()
	c := model.DedupeCandidate{
		ID:        model.CandidateID(rec.ID, 0),
		RecordID:  rec.ID,
		State:     model.CandidatePending,
		CreatedAt: e.now(),
	}
	link := rec.Link(c.ID, e.now())

	linked, err := e.linkedProfile(ctx, rec.ID)
	if err != nil {
		return model.DedupeCandidate{}, err
	}
	known, err := e.knownItem(ctx, rec)
	if err != nil {
		return model.DedupeCandidate{}, err
	}

	var outcome model.Outcome
	switch {
	case linked != nil:
		// A previous attempt wrote to the directory but did not record the
		// candidate. Rebuild the decision from what the directory holds.
		outcome, c.ProposedProfileID = recovered(rec.ID, *linked)
		if outcome == model.OutcomeMerge {
			c.Score = e.scorer.Score(rec, *linked)
		}
	case known != nil:
		// An earlier run already linked this source item; a redelivered
		// item follows its provenance instead of being matched again.
		outcome, c.ProposedProfileID = model.OutcomeMerge, known.ID
		c.Score = e.scorer.Score(rec, *known)
		c.Reason = ReasonKnownItem
	default:
		if outcome, err = e.match(ctx, rec, &c, th); err != nil {
			return model.DedupeCandidate{}, err
		}
	}

	switch outcome {
	case model.OutcomeMerge:
		p, err := e.dir.UpsertProvenance(ctx, c.ProposedProfileID, rec, link)
		if err != nil {
			return model.DedupeCandidate{}, err
		}
		if err := c.Decide(model.OutcomeMerge, Actor, p.ID, e.now()); err != nil {
			return model.DedupeCandidate{}, err
		}
	case model.OutcomeNewEntity:
		p, err := e.dir.Create(ctx, rec, link)
		if err != nil {
			return model.DedupeCandidate{}, err
		}
		if err := c.Decide(model.OutcomeNewEntity, Actor, p.ID, e.now()); err != nil {
			return model.DedupeCandidate{}, err
		}
	}

	if err := e.save(ctx, c); err != nil {
		return model.DedupeCandidate{}, err
	}
	metrics.RecordDedupeDecision(decisionLabel(c), c.Score, c.BlockSize, time.Since(start))
	e.log.Debug(ctx, "record resolved",
		logger.String("record_id", rec.ID),
		logger.String("candidate_id", c.ID),
		logger.String("outcome", decisionLabel(c)),
		logger.Float64("score", c.Score),
		logger.Int("block_size", c.BlockSize),
	)

	if c.Pending() {
		if err := e.openReview(ctx, c); err != nil {
			return model.DedupeCandidate{}, err
		}
	}
	return c, nil
}

// match scores rec against its blocking candidates and classifies the best.
func (e *Engine) match(ctx context.Context, rec model.CandidateRecord, c *model.DedupeCandidate, th model.Thresholds) (model.Outcome, error) {
	blocked, err := e.dir.Block(ctx, scoring.BlockingKeys(rec.Attributes), e.maxBlock)
	if err != nil {
		return "", err
	}
	scored := make([]model.ScoredProfile, 0, len(blocked))
	for _, p := range blocked {
		if p.OriginRecordID == rec.ID {
			continue
		}
		scored = append(scored, model.ScoredProfile{
			ProfileID:  p.ID,
			Provenance: len(p.Provenance),
			Score:      e.scorer.Score(rec, p),
		})
	}
	c.BlockSize = len(scored)

	best, found := model.Best(scored)
	if !found {
		return model.OutcomeNewEntity, nil
	}
	c.Score = best.Score
	c.ProposedProfileID = best.ProfileID
	return th.Classify(best.Score), nil
}

func (e *Engine) knownItem(ctx context.Context, rec model.CandidateRecord) (*model.TalentProfile, error) {
	if rec.NativeID == "" {
		return nil, nil
	}
	p, err := e.dir.ProfileForSource(ctx, rec.SourceID, rec.NativeID)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, model.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

func recovered(recordID string, p model.TalentProfile) (model.Outcome, string) {
	if p.OriginRecordID == recordID {
		return model.OutcomeNewEntity, ""
	}
	return model.OutcomeMerge, p.ID
}

func (e *Engine) linkedProfile(ctx context.Context, recordID string) (*model.TalentProfile, error) {
	p, err := e.dir.ProfileForRecord(ctx, recordID)
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, model.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

func (e *Engine) openReview(ctx context.Context, c model.DedupeCandidate) error {
	if e.review == nil {
		return ErrNoReviewQueue
	}
	if _, err := e.review.Open(ctx, c); err != nil {
		return err
	}
	return nil
}

// Settle moves a pending candidate to DECIDED. It is called by the review
// inbox once a reviewer decision has been applied.
func (e *Engine) Settle(ctx context.Context, candidateID string, outcome model.Outcome, actor, profileID string) (model.DedupeCandidate, error) {
	e.mu.RLock()
	c, ok := e.candidates[candidateID]
	var recordID string
	if ok {
		recordID = c.RecordID
	}
	e.mu.RUnlock()
	if !ok {
		return model.DedupeCandidate{}, model.NewKind("dedupe.settle", model.ErrNotFound, "candidate %s", candidateID)
	}

	unlock := e.records.Lock(recordID)
	defer unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	next := *c
	if err := next.Decide(outcome, actor, profileID, e.now()); err != nil {
		return *c, err
	}
	if e.store != nil {
		if err := e.store.SaveCandidate(ctx, next); err != nil {
			return *c, err
		}
	}
	*c = next
	return next, nil
}

// Reopen is the operator reversal: it creates a new pending candidate for
// a record whose current candidate is decided and sends it for review.
// Earlier candidates are left as they were.
func (e *Engine) Reopen(ctx context.Context, recordID, operator, reason string) (model.DedupeCandidate, error) {
	unlock := e.records.Lock(recordID)
	defer unlock()

	prev, ok := e.current(recordID)
	if !ok {
		return model.DedupeCandidate{}, model.NewKind("dedupe.reopen", model.ErrNotFound, "no candidate for record %s", recordID)
	}
	if prev.Pending() {
		return model.DedupeCandidate{}, model.NewKind("dedupe.reopen", model.ErrInvalidState,
			"candidate %s is still pending", prev.ID)
	}

	e.mu.RLock()
	generation := len(e.history[recordID])
	e.mu.RUnlock()

	c := model.DedupeCandidate{
		ID:                model.CandidateID(recordID, generation),
		RecordID:          recordID,
		Generation:        generation,
		ProposedProfileID: prev.ProfileID,
		Score:             prev.Score,
		BlockSize:         prev.BlockSize,
		State:             model.CandidatePending,
		Supersedes:        prev.ID,
		Reason:            reason,
		CreatedAt:         e.now(),
	}
	if err := e.save(ctx, c); err != nil {
		return model.DedupeCandidate{}, err
	}
	metrics.RecordDedupeReopened()
	e.log.Info(ctx, "candidate reopened",
		logger.String("record_id", recordID),
		logger.String("candidate_id", c.ID),
		logger.String("supersedes", prev.ID),
		logger.String("operator", operator),
	)
	if err := e.openReview(ctx, c); err != nil {
		return model.DedupeCandidate{}, err
	}
	return c, nil
}

// Candidate returns a candidate by id.
func (e *Engine) Candidate(id string) (model.DedupeCandidate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.candidates[id]
	if !ok {
		return model.DedupeCandidate{}, model.NewKind("dedupe.candidate", model.ErrNotFound, "candidate %s", id)
	}
	return *c, nil
}

// CandidateForRecord returns the current candidate of a record.
func (e *Engine) CandidateForRecord(recordID string) (model.DedupeCandidate, error) {
	c, ok := e.current(recordID)
	if !ok {
		return model.DedupeCandidate{}, model.NewKind("dedupe.candidate", model.ErrNotFound, "record %s", recordID)
	}
	return c, nil
}

// History returns every candidate of a record, oldest first.
func (e *Engine) History(recordID string) []model.DedupeCandidate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.history[recordID]
	out := make([]model.DedupeCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, *e.candidates[id])
	}
	return out
}

// Candidates lists current and superseded candidates matching f, newest first.
func (e *Engine) Candidates(f Filter) []model.DedupeCandidate {
	e.mu.RLock()
	out := make([]model.DedupeCandidate, 0, len(e.candidates))
	for _, c := range e.candidates {
		if (f.State == "" || c.State == f.State) && (f.Outcome == "" || c.Outcome == f.Outcome) {
			out = append(out, *c)
		}
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Stats counts candidates per outcome; pending candidates count under
// "PENDING".
func (e *Engine) Stats() map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]int)
	for _, c := range e.candidates {
		out[decisionLabel(*c)]++
	}
	return out
}

func (e *Engine) current(recordID string) (model.DedupeCandidate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.history[recordID]
	if len(ids) == 0 {
		return model.DedupeCandidate{}, false
	}
	return *e.candidates[ids[len(ids)-1]], true
}

// save persists c before it becomes visible.
func (e *Engine) save(ctx context.Context, c model.DedupeCandidate) error {
	if e.store != nil {
		if err := e.store.SaveCandidate(ctx, c); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := c
	e.candidates[c.ID] = &stored
	e.history[c.RecordID] = append(e.history[c.RecordID], c.ID)
	return nil
}

// Restore loads persisted candidates. It is meant to run once, before the
// engine serves any record.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	loaded, err := e.store.LoadCandidates(ctx)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].RecordID != loaded[j].RecordID {
			return loaded[i].RecordID < loaded[j].RecordID
		}
		return loaded[i].Generation < loaded[j].Generation
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = make(map[string]*model.DedupeCandidate, len(loaded))
	e.history = make(map[string][]string)
	for _, c := range loaded {
		stored := c
		e.candidates[c.ID] = &stored
		e.history[c.RecordID] = append(e.history[c.RecordID], c.ID)
	}
	e.log.Info(ctx, "candidates restored", logger.Int("count", len(loaded)))
	return len(loaded), nil
}

func decisionLabel(c model.DedupeCandidate) string {
	if c.Pending() {
		return string(model.CandidatePending)
	}
	return string(c.Outcome)
}
