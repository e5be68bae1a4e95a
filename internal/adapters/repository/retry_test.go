package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// flakyDirectory fails the first failures upserts with err.
type flakyDirectory struct {
	Directory
	failures int
	err      error
	calls    int
}

func (f *flakyDirectory) UpsertProvenance(ctx context.Context, id string, rec model.CandidateRecord, link model.SourceLink) (model.TalentProfile, error) {
	f.calls++
	if f.calls <= f.failures {
		return model.TalentProfile{}, f.err
	}
	return model.TalentProfile{ID: id, Version: 2}, nil
}

func fastRetry(n int) []RetryOption {
	return []RetryOption{WithMaxRetries(n), WithBackoffIntervals(time.Millisecond, 2*time.Millisecond)}
}

func TestRetrying_AbsorbsConflicts(t *testing.T) {
	f := &flakyDirectory{Directory: NewMemoryDirectory(), failures: 3, err: ErrVersionConflict}
	r := NewRetrying(f, fastRetry(5)...)

	p, err := r.UpsertProvenance(context.Background(), "p1", model.CandidateRecord{ID: "r"}, model.SourceLink{})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if p.Version != 2 || f.calls != 4 {
		t.Fatalf("expected 4 calls, got %d", f.calls)
	}
}

func TestRetrying_ExhaustedIsConflict(t *testing.T) {
	f := &flakyDirectory{Directory: NewMemoryDirectory(), failures: 100, err: ErrVersionConflict}
	r := NewRetrying(f, fastRetry(2)...)

	_, err := r.UpsertProvenance(context.Background(), "p1", model.CandidateRecord{ID: "r"}, model.SourceLink{})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected model.ErrConflict, got %v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 1 attempt + 2 retries, got %d", f.calls)
	}
}

func TestRetrying_OtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("disk full")
	f := &flakyDirectory{Directory: NewMemoryDirectory(), failures: 100, err: boom}
	r := NewRetrying(f, fastRetry(5)...)

	_, err := r.UpsertProvenance(context.Background(), "p1", model.CandidateRecord{ID: "r"}, model.SourceLink{})
	if !errors.Is(err, boom) || f.calls != 1 {
		t.Fatalf("expected single failing call, got %d calls err %v", f.calls, err)
	}
}
