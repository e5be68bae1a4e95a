package schedule_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schedule"
	"github.com/okian/scout/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type failingStore struct{ err error }

func (f failingStore) SaveSchedule(context.Context, model.Schedule) error      { return f.err }
func (f failingStore) DeleteSchedule(context.Context, string) error            { return f.err }
func (f failingStore) LoadSchedules(context.Context) ([]model.Schedule, error) { return nil, f.err }

func TestPlanner(t *testing.T) {
	Convey("Given a planner with a fixed clock", t, func() {
		ctx := context.Background()
		now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
		p := schedule.New(schedule.WithClock(func() time.Time { return now }))

		Convey("a new schedule is due immediately", func() {
			s, err := p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly", Enabled: true})
			So(err, ShouldBeNil)
			So(s.NextDueAt.IsZero(), ShouldBeTrue)
			So(p.Due(now), ShouldResemble, []string{"museum"})
		})

		Convey("creating twice conflicts", func() {
			_, err := p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly"})
			So(err, ShouldBeNil)
			_, err = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@daily"})
			So(errors.Is(err, model.ErrConflict), ShouldBeTrue)
		})

		Convey("an invalid cadence is a configuration error", func() {
			_, err := p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "every tuesday"})
			So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
			_, err = p.Create(ctx, model.Schedule{ConnectorID: "museum"})
			So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
		})

		Convey("disabled schedules never trigger", func() {
			_, _ = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly"})
			So(p.Due(now.Add(24*time.Hour)), ShouldBeEmpty)
		})

		Convey("marking a run moves the schedule to its next tick", func() {
			_, _ = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly", Enabled: true})
			_, _ = p.Create(ctx, model.Schedule{ConnectorID: "festival", Cadence: "0 6 * * *", Enabled: true})
			So(p.MarkRun(ctx, []string{"museum", "festival", "unknown"}, now), ShouldBeNil)

			museum, err := p.Get("museum")
			So(err, ShouldBeNil)
			So(museum.LastRunAt.Equal(now), ShouldBeTrue)
			So(museum.NextDueAt.Equal(time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)), ShouldBeTrue)
			festival, _ := p.Get("festival")
			So(festival.NextDueAt.Equal(time.Date(2026, 5, 5, 6, 0, 0, 0, time.UTC)), ShouldBeTrue)

			So(p.Due(now.Add(10*time.Minute)), ShouldBeEmpty)
			So(p.Due(now.Add(30*time.Minute)), ShouldResemble, []string{"museum"})
		})

		Convey("update patches only the given fields", func() {
			_, _ = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly"})
			enabled := true
			s, err := p.Update(ctx, "museum", schedule.Patch{Enabled: &enabled})
			So(err, ShouldBeNil)
			So(s.Enabled, ShouldBeTrue)
			So(s.Cadence, ShouldEqual, "@hourly")

			cadence := "*/15 * * * *"
			s, err = p.Update(ctx, "museum", schedule.Patch{Cadence: &cadence})
			So(err, ShouldBeNil)
			So(s.NextDueAt.Equal(time.Date(2026, 5, 4, 10, 45, 0, 0, time.UTC)), ShouldBeTrue)

			bad := "nope"
			_, err = p.Update(ctx, "museum", schedule.Patch{Cadence: &bad})
			So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
			_, err = p.Update(ctx, "missing", schedule.Patch{Enabled: &enabled})
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("delete removes the schedule", func() {
			_, _ = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly"})
			So(p.Delete(ctx, "museum"), ShouldBeNil)
			_, err := p.Get("museum")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(errors.Is(p.Delete(ctx, "museum"), model.ErrNotFound), ShouldBeTrue)
		})

		Convey("list is ordered by connector", func() {
			_, _ = p.Ensure(ctx, "zine", "@daily", true)
			_, _ = p.Ensure(ctx, "archive", "@daily", false)
			list := p.List()
			So(len(list), ShouldEqual, 2)
			So(list[0].ConnectorID, ShouldEqual, "archive")
		})
	})

	Convey("Given a store that rejects writes", t, func() {
		ctx := context.Background()
		boom := errors.New("disk full")
		p := schedule.New(schedule.WithStore(failingStore{err: boom}))

		Convey("nothing is kept in memory", func() {
			_, err := p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly"})
			So(errors.Is(err, boom), ShouldBeTrue)
			So(p.List(), ShouldBeEmpty)
		})
	})
}

func TestPlanner_Restore(t *testing.T) {
	Convey("Given schedules persisted in SQLite", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "scout.db")
		now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
		d, err := repository.OpenSQLite(ctx, path)
		So(err, ShouldBeNil)

		p := schedule.New(schedule.WithStore(d.State()), schedule.WithClock(func() time.Time { return now }))
		_, err = p.Create(ctx, model.Schedule{ConnectorID: "museum", Cadence: "@hourly", Enabled: true})
		So(err, ShouldBeNil)
		So(p.MarkRun(ctx, []string{"museum"}, now), ShouldBeNil)
		So(d.Close(), ShouldBeNil)

		Convey("a restarted planner keeps them and its defaults do not override", func() {
			d, err := repository.OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer func() { _ = d.Close() }()

			restored := schedule.New(schedule.WithStore(d.State()))
			n, err := restored.Restore(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			s, err := restored.Ensure(ctx, "museum", "@daily", false)
			So(err, ShouldBeNil)
			So(s.Cadence, ShouldEqual, "@hourly")
			So(s.Enabled, ShouldBeTrue)
			So(s.LastRunAt.Equal(now), ShouldBeTrue)
			So(restored.Due(now), ShouldBeEmpty)
		})
	})
}
