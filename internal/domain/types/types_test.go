package types_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/model"
	types "github.com/okian/scout/internal/domain/types"
)

func TestFromRun(t *testing.T) {
	Convey("Given a partial run with one timed out execution", t, func() {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		run := model.Run{
			ID:         "r1",
			Connectors: []string{"X", "Y"},
			State:      model.RunPartial,
			CreatedAt:  now,
			FinishedAt: now.Add(time.Minute),
			Executions: []model.ConnectorExecution{
				{ConnectorID: "X", State: model.ExecutionSucceeded, Records: 2, Unresolved: 1, StartedAt: now, FinishedAt: now.Add(time.Second)},
				{ConnectorID: "Y", State: model.ExecutionFailed, TimedOut: true, Error: "connector timeout: exceeded 1m0s"},
			},
		}

		Convey("When converting it", func() {
			out := types.FromRun(run)

			Convey("Then states and counters are carried over", func() {
				So(out.State, ShouldEqual, "PARTIAL")
				So(out.Executions, ShouldHaveLength, 2)
				So(out.Executions[0].Records, ShouldEqual, 2)
				So(out.Executions[0].Unresolved, ShouldEqual, 1)
				So(out.Executions[1].Unresolved, ShouldEqual, 0)
				So(out.Executions[1].TimedOut, ShouldBeTrue)
			})

			Convey("Then unset times are omitted", func() {
				So(*out.FinishedAt, ShouldEqual, now.Add(time.Minute))
				So(out.Executions[0].StartedAt, ShouldNotBeNil)
				So(out.Executions[1].StartedAt, ShouldBeNil)
				So(out.Executions[1].FinishedAt, ShouldBeNil)
			})

			Convey("Then the converted run does not alias the source", func() {
				out.Connectors[0] = "Z"
				So(run.Connectors[0], ShouldEqual, "X")
			})
		})
	})
}

func TestReportRequest(t *testing.T) {
	Convey("Given connector result reports", t, func() {
		Convey("Then a success keeps its counters", func() {
			o := types.ReportRequest{Succeeded: true, Records: 3, Rejected: 1}.Outcome()
			So(o.Succeeded, ShouldBeTrue)
			So(o.Records, ShouldEqual, 3)
			So(o.Rejected, ShouldEqual, 1)
		})

		Convey("Then a failure always carries a message", func() {
			o := types.ReportRequest{}.Outcome()
			So(o.Succeeded, ShouldBeFalse)
			So(o.Error, ShouldEqual, "reported failure")

			o = types.ReportRequest{Error: "boom", TimedOut: true}.Outcome()
			So(o.Error, ShouldEqual, "boom")
			So(o.TimedOut, ShouldBeTrue)
		})
	})
}

func TestSettings(t *testing.T) {
	Convey("Given domain settings", t, func() {
		s := model.Settings{
			Thresholds: model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3},
			Connectors: map[string]bool{"X": true, "Y": false},
		}

		Convey("When converting to the wire form and back", func() {
			wire := types.FromSettings(s)

			Convey("Then the values survive", func() {
				So(wire.AutoMergeThreshold, ShouldEqual, 0.9)
				So(wire.NoMatchThreshold, ShouldEqual, 0.3)
				So(wire.Model(), ShouldResemble, s)
			})

			Convey("Then the wire form owns its connector map", func() {
				wire.Connectors["X"] = false
				So(s.Connectors["X"], ShouldBeTrue)
			})
		})
	})
}
