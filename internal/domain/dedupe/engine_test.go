package dedupe_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/scout/internal/adapters/repository"
	dedupe "github.com/okian/scout/internal/domain/dedupe"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fixedScorer returns a preset score per profile id.
type fixedScorer map[string]float64

func (f fixedScorer) Score(_ model.CandidateRecord, p model.TalentProfile) float64 { return f[p.ID] }

// fakeInbox records opened candidates, one item per candidate.
type fakeInbox struct {
	mu    sync.Mutex
	items map[string]model.InboxItem
	calls int
	err   error
}

func newFakeInbox() *fakeInbox { return &fakeInbox{items: map[string]model.InboxItem{}} }

func (f *fakeInbox) Open(_ context.Context, c model.DedupeCandidate) (model.InboxItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.InboxItem{}, f.err
	}
	if it, ok := f.items[c.ID]; ok {
		return it, nil
	}
	it := model.InboxItem{ID: "item-" + c.ID, CandidateID: c.ID, RecordID: c.RecordID, State: model.InboxPending}
	f.items[c.ID] = it
	return it, nil
}

func (f *fakeInbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s%d", prefix, n.Add(1)) }
}

func record(id, source, name, affiliation string) model.CandidateRecord {
	return model.CandidateRecord{ID: id, SourceID: source, NativeID: "n-" + id,
		Attributes: model.Attributes{Name: name, Affiliation: affiliation}}
}

func seed(dir repository.Directory, rec model.CandidateRecord) model.TalentProfile {
	p, err := dir.Create(context.Background(), rec, model.SourceLink{RecordID: rec.ID, SourceID: rec.SourceID})
	if err != nil {
		panic(err)
	}
	return p
}

func TestEngine_Resolve(t *testing.T) {
	Convey("Given a directory, an inbox and thresholds 0.3/0.9", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		inbox := newFakeInbox()
		scores := fixedScorer{}
		engine := dedupe.NewEngine(dir,
			dedupe.WithScorer(scores),
			dedupe.WithReviewQueue(inbox),
			dedupe.WithThresholds(model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3}),
		)

		Convey("When the directory is empty", func() {
			c, err := engine.Resolve(ctx, record("r1", "x", "Ana Lima", "Santos"))

			Convey("Then a new profile is created", func() {
				So(err, ShouldBeNil)
				So(c.State, ShouldEqual, model.CandidateDecided)
				So(c.Outcome, ShouldEqual, model.OutcomeNewEntity)
				So(c.BlockSize, ShouldEqual, 0)
				p, err := dir.Get(ctx, c.ProfileID)
				So(err, ShouldBeNil)
				So(p.OriginRecordID, ShouldEqual, "r1")
				So(p.Provenance[0].CandidateID, ShouldEqual, c.ID)
			})
		})

		Convey("When a record scores 0.94 against T1", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.94

			c, err := engine.Resolve(ctx, record("r2", "y", "J. Cruz", "GSPS"))

			Convey("Then it merges and T1 gains one version and one link", func() {
				So(err, ShouldBeNil)
				So(c.Outcome, ShouldEqual, model.OutcomeMerge)
				So(c.State, ShouldEqual, model.CandidateDecided)
				So(c.Score, ShouldEqual, 0.94)
				So(c.ProfileID, ShouldEqual, t1.ID)
				after, _ := dir.Get(ctx, t1.ID)
				So(after.Version, ShouldEqual, t1.Version+1)
				So(after.Provenance, ShouldHaveLength, len(t1.Provenance)+1)
				So(inbox.count(), ShouldEqual, 0)
			})
		})

		Convey("When a record scores 0.55", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.55

			c, err := engine.Resolve(ctx, record("r3", "y", "J. Cruz", "Other"))

			Convey("Then it is pending with one inbox item and no directory change", func() {
				So(err, ShouldBeNil)
				So(c.State, ShouldEqual, model.CandidatePending)
				So(c.Outcome, ShouldEqual, model.OutcomeNone)
				So(c.ProposedProfileID, ShouldEqual, t1.ID)
				So(inbox.count(), ShouldEqual, 1)
				after, _ := dir.Get(ctx, t1.ID)
				So(after.Version, ShouldEqual, t1.Version)
				So(dir.Count(ctx), ShouldEqual, 1)
			})

			Convey("Then redelivery returns the same candidate and keeps one item", func() {
				again, err := engine.Resolve(ctx, record("r3", "y", "J. Cruz", "Other"))
				So(err, ShouldBeNil)
				So(again.ID, ShouldEqual, c.ID)
				So(inbox.count(), ShouldEqual, 1)
				So(engine.History("r3"), ShouldHaveLength, 1)
			})
		})

		Convey("When the best score is below the no-match threshold", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.2

			c, err := engine.Resolve(ctx, record("r4", "y", "Jonas Cruz", "GSPS"))

			Convey("Then a separate profile is created", func() {
				So(err, ShouldBeNil)
				So(c.Outcome, ShouldEqual, model.OutcomeNewEntity)
				So(c.ProfileID, ShouldNotEqual, t1.ID)
				So(c.Score, ShouldEqual, 0.2)
				So(dir.Count(ctx), ShouldEqual, 2)
			})
		})

		Convey("When a merged record is delivered again", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.95
			rec := record("r5", "y", "J. Cruz", "GSPS")
			first, _ := engine.Resolve(ctx, rec)
			second, err := engine.Resolve(ctx, rec)

			Convey("Then state is identical to a single delivery", func() {
				So(err, ShouldBeNil)
				So(second, ShouldResemble, first)
				after, _ := dir.Get(ctx, t1.ID)
				So(after.Version, ShouldEqual, t1.Version+1)
			})
		})

		Convey("When an earlier attempt reached the directory but not the engine", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.95
			rec := record("r6", "y", "J. Cruz", "GSPS")
			_, err := dir.UpsertProvenance(ctx, t1.ID, rec, model.SourceLink{RecordID: rec.ID})
			So(err, ShouldBeNil)

			c, err := engine.Resolve(ctx, rec)

			Convey("Then the merge is recognised and not applied twice", func() {
				So(err, ShouldBeNil)
				So(c.Outcome, ShouldEqual, model.OutcomeMerge)
				So(c.ProfileID, ShouldEqual, t1.ID)
				after, _ := dir.Get(ctx, t1.ID)
				So(after.Version, ShouldEqual, t1.Version+1)
			})
		})

		Convey("When the inbox is unavailable for a pending candidate", func() {
			t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
			scores[t1.ID] = 0.5
			inbox.err = errors.New("inbox down")

			_, err := engine.Resolve(ctx, record("r7", "y", "J. Cruz", "GSPS"))
			So(err, ShouldNotBeNil)

			Convey("Then a retry opens the item for the same candidate", func() {
				inbox.err = nil
				c, err := engine.Resolve(ctx, record("r7", "y", "J. Cruz", "GSPS"))
				So(err, ShouldBeNil)
				So(c.Pending(), ShouldBeTrue)
				So(inbox.count(), ShouldEqual, 1)
			})
		})

		Convey("When the record has no id", func() {
			_, err := engine.Resolve(ctx, model.CandidateRecord{})
			So(errors.Is(err, dedupe.ErrEmptyRecord), ShouldBeTrue)
		})
	})
}

func TestEngine_Policy(t *testing.T) {
	Convey("Given many scores against one profile", t, func() {
		ctx := context.Background()
		th := model.Thresholds{AutoMerge: 0.8, NoMatch: 0.4}
		for i, score := range []float64{0, 0.1, 0.39, 0.4, 0.41, 0.6, 0.79, 0.8, 0.81, 1} {
			dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
			t1 := seed(dir, record("t1", "x", "Ana Souza", ""))
			engine := dedupe.NewEngine(dir,
				dedupe.WithScorer(fixedScorer{t1.ID: score}),
				dedupe.WithReviewQueue(newFakeInbox()),
				dedupe.WithThresholds(th),
			)

			c, err := engine.Resolve(ctx, record(fmt.Sprintf("r%d", i), "y", "A. Souza", ""))
			So(err, ShouldBeNil)

			switch {
			case score >= th.AutoMerge:
				So(c.Outcome, ShouldEqual, model.OutcomeMerge)
			case score < th.NoMatch:
				So(c.Outcome, ShouldEqual, model.OutcomeNewEntity)
			default:
				So(c.State, ShouldEqual, model.CandidatePending)
			}
		}
	})
}

func TestEngine_TieBreak(t *testing.T) {
	Convey("Given equally scored profiles", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		a := seed(dir, record("a", "x", "Rui Costa", ""))
		b := seed(dir, record("b", "x", "Rui Costa", ""))
		c := seed(dir, record("c", "x", "Rui Costa", ""))
		_, _ = dir.UpsertProvenance(ctx, c.ID, record("c2", "y", "R. Costa", ""), model.SourceLink{RecordID: "c2"})

		engine := dedupe.NewEngine(dir,
			dedupe.WithScorer(fixedScorer{a.ID: 0.95, b.ID: 0.95, c.ID: 0.95}),
			dedupe.WithReviewQueue(newFakeInbox()),
		)

		Convey("Then the profile with more provenance wins", func() {
			got, err := engine.Resolve(ctx, record("r1", "z", "Rui Costa", ""))
			So(err, ShouldBeNil)
			So(got.ProfileID, ShouldEqual, c.ID)
		})

		Convey("Then with equal provenance the lowest id wins", func() {
			engine := dedupe.NewEngine(dir,
				dedupe.WithScorer(fixedScorer{a.ID: 0.95, b.ID: 0.95}),
				dedupe.WithReviewQueue(newFakeInbox()),
			)
			got, err := engine.Resolve(ctx, record("r2", "z", "Rui Costa", ""))
			So(err, ShouldBeNil)
			So(got.ProfileID, ShouldEqual, a.ID)
		})
	})
}

func TestEngine_BlockCap(t *testing.T) {
	Convey("Given more blocked profiles than the cap", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		for i := 0; i < 5; i++ {
			seed(dir, record(fmt.Sprintf("s%d", i), "x", "Luis Silva", ""))
		}
		engine := dedupe.NewEngine(dir, dedupe.WithMaxBlockSize(2),
			dedupe.WithScorer(fixedScorer{}), dedupe.WithReviewQueue(newFakeInbox()))

		c, err := engine.Resolve(ctx, record("r1", "y", "Luis Silva", ""))
		So(err, ShouldBeNil)
		So(c.BlockSize, ShouldEqual, 2)
	})
}

func TestEngine_ConcurrentMerges(t *testing.T) {
	Convey("Given two records from different connectors matching T2", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		t2 := seed(dir, record("t2", "x", "Rafa Souza", "GSPS"))
		engine := dedupe.NewEngine(dir,
			dedupe.WithScorer(fixedScorer{t2.ID: 0.97}),
			dedupe.WithReviewQueue(newFakeInbox()),
		)

		var wg sync.WaitGroup
		results := make([]model.DedupeCandidate, 2)
		for i, src := range []string{"connector-a", "connector-b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], _ = engine.Resolve(ctx, record("rec-"+src, src, "R. Souza", "GSPS"))
			}()
		}
		wg.Wait()

		Convey("Then both merges apply and nothing is lost", func() {
			So(results[0].ProfileID, ShouldEqual, t2.ID)
			So(results[1].ProfileID, ShouldEqual, t2.ID)
			after, _ := dir.Get(ctx, t2.ID)
			So(after.Version, ShouldEqual, t2.Version+2)
			So(after.Provenance, ShouldHaveLength, 3)
		})
	})
}

func TestEngine_SettleAndReopen(t *testing.T) {
	Convey("Given a pending candidate", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		t1 := seed(dir, record("t1", "x", "João Cruz", "GSPS"))
		inbox := newFakeInbox()
		engine := dedupe.NewEngine(dir, dedupe.WithScorer(fixedScorer{t1.ID: 0.55}), dedupe.WithReviewQueue(inbox))
		pending, _ := engine.Resolve(ctx, record("r1", "y", "J. Cruz", "GSPS"))

		Convey("When it is reopened before a decision", func() {
			_, err := engine.Reopen(ctx, "r1", "ops", "typo")
			So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
		})

		Convey("When it is settled", func() {
			decided, err := engine.Settle(ctx, pending.ID, model.OutcomeNewEntity, "rita", "T9")
			So(err, ShouldBeNil)
			So(decided.State, ShouldEqual, model.CandidateDecided)
			So(decided.DecidedBy, ShouldEqual, "rita")

			Convey("Then settling again is rejected without change", func() {
				_, err := engine.Settle(ctx, pending.ID, model.OutcomeMerge, "bob", t1.ID)
				So(errors.Is(err, model.ErrInvalidState), ShouldBeTrue)
				c, _ := engine.Candidate(pending.ID)
				So(c.Outcome, ShouldEqual, model.OutcomeNewEntity)
			})

			Convey("Then an operator reopen creates a superseding candidate", func() {
				reopened, err := engine.Reopen(ctx, "r1", "ops", "wrong person")
				So(err, ShouldBeNil)
				So(reopened.ID, ShouldNotEqual, pending.ID)
				So(reopened.Supersedes, ShouldEqual, pending.ID)
				So(reopened.ProposedProfileID, ShouldEqual, "T9")
				So(reopened.Pending(), ShouldBeTrue)
				So(inbox.count(), ShouldEqual, 2)

				history := engine.History("r1")
				So(history, ShouldHaveLength, 2)
				So(history[0].Outcome, ShouldEqual, model.OutcomeNewEntity)
				current, _ := engine.CandidateForRecord("r1")
				So(current.ID, ShouldEqual, reopened.ID)
				So(engine.Candidates(dedupe.Filter{State: model.CandidatePending}), ShouldHaveLength, 1)
			})
		})

		Convey("When an unknown candidate or record is used", func() {
			_, err := engine.Settle(ctx, "nope", model.OutcomeMerge, "x", "")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			_, err = engine.Reopen(ctx, "nope", "ops", "")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestEngine_Thresholds(t *testing.T) {
	Convey("Given an engine", t, func() {
		engine := dedupe.NewEngine(repository.NewMemoryDirectory())

		So(engine.Thresholds(), ShouldResemble, model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3})
		err := engine.SetThresholds(model.Thresholds{AutoMerge: 0.2, NoMatch: 0.5})
		So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
		So(engine.Thresholds().AutoMerge, ShouldEqual, 0.9)

		So(engine.SetThresholds(model.Thresholds{AutoMerge: 0.7, NoMatch: 0.7}), ShouldBeNil)
		So(engine.Thresholds().NoMatch, ShouldEqual, 0.7)
	})
}

func TestEngine_RepeatRuns(t *testing.T) {
	Convey("Given the same source item ingested by three runs", t, func() {
		ctx := context.Background()
		dir := repository.NewMemoryDirectory(repository.WithIDGenerator(seqIDs("T")))
		engine := dedupe.NewEngine(dir, dedupe.WithScorer(fixedScorer{}), dedupe.WithReviewQueue(newFakeInbox()))
		item := func(run, name string) model.CandidateRecord {
			return model.CandidateRecord{ID: model.RecordID(run, "feed", "item-1"), SourceID: "feed", NativeID: "item-1",
				RunID: run, Attributes: model.Attributes{Name: name, Affiliation: "GSPS"}}
		}

		first, err := engine.Resolve(ctx, item("run-1", "Lia Reis"))
		So(err, ShouldBeNil)
		So(first.Outcome, ShouldEqual, model.OutcomeNewEntity)

		Convey("When the content does not change", func() {
			for _, run := range []string{"run-2", "run-3"} {
				c, err := engine.Resolve(ctx, item(run, "Lia Reis"))
				So(err, ShouldBeNil)
				So(c.Outcome, ShouldEqual, model.OutcomeMerge)
				So(c.ProfileID, ShouldEqual, first.ProfileID)
				So(c.Reason, ShouldEqual, dedupe.ReasonKnownItem)
			}

			Convey("Then the profile keeps one provenance entry at version 1", func() {
				p, _ := dir.Get(ctx, first.ProfileID)
				So(p.Version, ShouldEqual, 1)
				So(p.Provenance, ShouldHaveLength, 1)
				So(dir.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the content changes", func() {
			c, err := engine.Resolve(ctx, item("run-2", "Lia Reis Santos"))

			Convey("Then the entry is refreshed with a single version bump", func() {
				So(err, ShouldBeNil)
				So(c.ProfileID, ShouldEqual, first.ProfileID)
				p, _ := dir.Get(ctx, first.ProfileID)
				So(p.Version, ShouldEqual, 2)
				So(p.Provenance, ShouldHaveLength, 1)
				So(p.Provenance[0].RecordID, ShouldEqual, model.RecordID("run-2", "feed", "item-1"))
			})
		})
	})
}

func TestEngine_Restore(t *testing.T) {
	Convey("Given an engine persisting candidates to SQLite", t, func() {
		ctx := context.Background()
		db, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "scout.db"),
			repository.WithIDGenerator(seqIDs("T")))
		So(err, ShouldBeNil)
		Reset(func() { _ = db.Close() })

		t1 := seed(db, record("t1", "x", "João Cruz", "GSPS"))
		scores := fixedScorer{t1.ID: 0.55}
		engine := dedupe.NewEngine(db, dedupe.WithScorer(scores), dedupe.WithReviewQueue(newFakeInbox()),
			dedupe.WithStore(db.State()))
		pending, err := engine.Resolve(ctx, record("r1", "y", "J. Cruz", "GSPS"))
		So(err, ShouldBeNil)
		So(pending.Pending(), ShouldBeTrue)
		_, err = engine.Settle(ctx, pending.ID, model.OutcomeNewEntity, "rita", "T9")
		So(err, ShouldBeNil)
		reopened, err := engine.Reopen(ctx, "r1", "ops", "wrong person")
		So(err, ShouldBeNil)

		Convey("When a fresh engine restores from the same store", func() {
			inbox := newFakeInbox()
			restored := dedupe.NewEngine(db, dedupe.WithScorer(scores), dedupe.WithReviewQueue(inbox),
				dedupe.WithStore(db.State()))
			n, err := restored.Restore(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			Convey("Then history and decisions survive", func() {
				history := restored.History("r1")
				So(history, ShouldHaveLength, 2)
				So(history[0].Outcome, ShouldEqual, model.OutcomeNewEntity)
				So(history[0].DecidedBy, ShouldEqual, "rita")
				So(history[1].ID, ShouldEqual, reopened.ID)
				So(history[1].Generation, ShouldEqual, 1)
			})

			Convey("Then a redelivered record returns the restored candidate", func() {
				c, err := restored.Resolve(ctx, record("r1", "y", "J. Cruz", "GSPS"))
				So(err, ShouldBeNil)
				So(c.ID, ShouldEqual, reopened.ID)
				So(inbox.count(), ShouldEqual, 1)
			})
		})
	})
}
