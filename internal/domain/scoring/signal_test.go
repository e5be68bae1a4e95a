package scoring_test

import (
	"testing"
	"time"

	"github.com/okian/scout/internal/domain/model"
	scoring "github.com/okian/scout/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSignalScorer(t *testing.T) {
	Convey("Given connectors in every tier and a fixed clock", t, func() {
		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		s := scoring.NewSignalScorer(map[string]string{
			"uog":       scoring.TierInstitutional,
			"caha":      scoring.TierInstitutional,
			"events":    scoring.TierCommunity,
			"instagram": scoring.TierSocial,
			"odd":       "viral",
		}, func() time.Time { return now })
		profile := func(age time.Duration, sources ...string) model.TalentProfile {
			p := model.TalentProfile{ID: "T1", CreatedAt: now.Add(-age)}
			for _, src := range sources {
				p.Provenance = append(p.Provenance, model.SourceLink{SourceID: src})
			}
			return p
		}

		Convey("Then every tier counts once and a fresh profile gets full recency", func() {
			sig := s.Score(profile(24*time.Hour, "uog", "caha", "events", "instagram"))
			So(sig.Score, ShouldEqual, 100)
			So(sig.Breakdown, ShouldResemble, map[string]float64{
				"institutional": 40, "community": 30, "social": 20, "recency": 10,
			})
		})

		Convey("Then recency decays with age", func() {
			So(s.Score(profile(60*24*time.Hour, "events")).Score, ShouldEqual, 35)
			So(s.Score(profile(200*24*time.Hour, "events")).Score, ShouldEqual, 32)
		})

		Convey("Then unknown connectors and tiers score nothing", func() {
			sig := s.Score(profile(0, "odd", "unlisted"))
			So(sig.Score, ShouldEqual, 10)
		})

		Convey("Then Annotate attaches the signal", func() {
			p := s.Annotate(profile(0, "uog"))
			So(p.Signal, ShouldNotBeNil)
			So(p.Signal.Score, ShouldEqual, 50)
		})
	})
}

func TestRecencyWeight(t *testing.T) {
	Convey("Given a reference time", t, func() {
		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		days := func(n int) time.Time { return now.AddDate(0, 0, -n) }

		So(scoring.RecencyWeight(days(30), now), ShouldEqual, 1.0)
		So(scoring.RecencyWeight(days(31), now), ShouldEqual, 0.5)
		So(scoring.RecencyWeight(days(90), now), ShouldEqual, 0.5)
		So(scoring.RecencyWeight(days(91), now), ShouldEqual, 0.2)
	})
}
