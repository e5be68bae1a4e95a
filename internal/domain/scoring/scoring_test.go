package scoring_test

import (
	"math"
	"testing"

	"github.com/okian/scout/internal/domain/model"
	scoring "github.com/okian/scout/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestFoldAndLevenshtein(t *testing.T) {
	Convey("Given raw names", t, func() {
		Convey("Then folding strips diacritics, case and punctuation", func() {
			So(scoring.Fold("João  Cruz-Silva"), ShouldEqual, "joao cruz silva")
			So(scoring.Fold("  J. CRUZ "), ShouldEqual, "j cruz")
			So(scoring.Fold(""), ShouldEqual, "")
			So(scoring.Tokens("Zoë O'Neil"), ShouldResemble, []string{"zoe", "o", "neil"})
		})

		Convey("Then edit distance counts rune edits", func() {
			So(scoring.Levenshtein("kitten", "sitting"), ShouldEqual, 3)
			So(scoring.Levenshtein("", "abc"), ShouldEqual, 3)
			So(scoring.Levenshtein("ção", "cao"), ShouldEqual, 2)
			So(scoring.Ratio("", ""), ShouldEqual, 1)
			So(scoring.Ratio("cruz", "cruz"), ShouldEqual, 1)
		})
	})
}

func TestAttributeSimilarity(t *testing.T) {
	Convey("Given attribute comparisons", t, func() {
		Convey("When a name uses an initial", func() {
			sim, ok := scoring.NameSimilarity("J. Cruz", "João Cruz")
			So(ok, ShouldBeTrue)
			So(sim, ShouldAlmostEqual, 0.95, 1e-9)
		})

		Convey("When names are unrelated", func() {
			sim, ok := scoring.NameSimilarity("Maria Souza", "Pedro Lima")
			So(ok, ShouldBeTrue)
			So(sim, ShouldBeLessThan, 0.5)
		})

		Convey("When a name is missing it is not comparable", func() {
			_, ok := scoring.NameSimilarity("", "Pedro Lima")
			So(ok, ShouldBeFalse)
		})

		Convey("When affiliations nest", func() {
			sim, _ := scoring.AffiliationSimilarity("GSPS", "gsps")
			So(sim, ShouldEqual, 1)
			sim, _ = scoring.AffiliationSimilarity("Gremio", "Gremio FBPA")
			So(sim, ShouldEqual, 0.8)
			sim, _ = scoring.AffiliationSimilarity("Santos FC", "Palmeiras SE")
			So(sim, ShouldEqual, 0)
		})

		Convey("When identifiers overlap", func() {
			sim, ok := scoring.IdentifierOverlap([]string{"email:a@x", "phone:1"}, []string{"phone:1"})
			So(ok, ShouldBeTrue)
			So(sim, ShouldEqual, 1)
			sim, ok = scoring.IdentifierOverlap([]string{"email:a@x"}, []string{"email:b@x"})
			So(ok, ShouldBeTrue)
			So(sim, ShouldEqual, 0)
			_, ok = scoring.IdentifierOverlap(nil, []string{"email:b@x"})
			So(ok, ShouldBeFalse)
		})

		Convey("When metrics are close", func() {
			sim, ok := scoring.MetricProximity(map[string]float64{"speed": 30, "age": 0}, map[string]float64{"speed": 27, "age": 0})
			So(ok, ShouldBeTrue)
			So(sim, ShouldAlmostEqual, 0.95, 1e-9)
			_, ok = scoring.MetricProximity(map[string]float64{"speed": 30}, map[string]float64{"height": 180})
			So(ok, ShouldBeFalse)
		})
	})
}

func TestSimilarityScorer(t *testing.T) {
	Convey("Given a scorer with default weights", t, func() {
		scorer := scoring.NewSimilarityScorer()
		profile := model.TalentProfile{ID: "T1", Attributes: model.Attributes{Name: "João Cruz", Affiliation: "GSPS"}}

		Convey("When the record abbreviates the profile name", func() {
			rec := model.CandidateRecord{Attributes: model.Attributes{Name: "J. Cruz", Affiliation: "GSPS"}}
			score := scorer.Score(rec, profile)

			Convey("Then only comparable attributes count", func() {
				So(score, ShouldAlmostEqual, (0.45*0.95+0.2)/0.65, 1e-9)
				So(score, ShouldBeGreaterThanOrEqualTo, 0.9)
			})
		})

		Convey("When identifiers conflict", func() {
			profile.Attributes.Email = "joao@gsps.br"
			rec := model.CandidateRecord{Attributes: model.Attributes{Name: "J. Cruz", Affiliation: "GSPS", Email: "jc@other.io"}}
			score := scorer.Score(rec, profile)

			Convey("Then the score drops into the ambiguous band", func() {
				So(score, ShouldAlmostEqual, (0.45*0.95+0.2)/0.9, 1e-9)
			})
		})

		Convey("When nothing is comparable", func() {
			So(scorer.Score(model.CandidateRecord{}, profile), ShouldEqual, 0)
		})

		Convey("When weights are overridden", func() {
			custom := scoring.NewSimilarityScorer(scoring.WithWeights(scoring.Weights{Name: 1}))
			rec := model.CandidateRecord{Attributes: model.Attributes{Name: "Joao Cruz", Affiliation: "Other"}}
			So(custom.Score(rec, profile), ShouldEqual, 1)

			ignored := scoring.NewSimilarityScorer(scoring.WithWeights(scoring.Weights{Name: -1}))
			So(ignored.Weights(), ShouldResemble, scoring.DefaultWeights())
		})
	})
}

func TestSimilarityScorer_NonFiniteMetrics(t *testing.T) {
	Convey("Given metrics that are NaN or infinite", t, func() {
		scorer := scoring.NewSimilarityScorer()
		nan := math.NaN()
		inf := math.Inf(1)

		Convey("Then metric proximity treats them as a mismatch", func() {
			for _, pair := range [][2]float64{{nan, 30}, {inf, 30}, {inf, inf}, {nan, nan}} {
				sim, ok := scoring.MetricProximity(map[string]float64{"speed": pair[0]}, map[string]float64{"speed": pair[1]})
				So(ok, ShouldBeTrue)
				So(sim, ShouldEqual, 0)
			}
		})

		Convey("Then the overall score stays a number in [0,1]", func() {
			profile := model.TalentProfile{ID: "T1", Attributes: model.Attributes{Name: "Ana Lima", Metrics: map[string]float64{"speed": nan}}}
			rec := model.CandidateRecord{Attributes: model.Attributes{Name: "Ana Lima", Metrics: map[string]float64{"speed": inf}}}
			score := scorer.Score(rec, profile)
			So(math.IsNaN(score), ShouldBeFalse)
			So(score, ShouldBeBetweenOrEqual, 0, 1)
			So(score, ShouldAlmostEqual, 0.45/0.55, 1e-9)
		})
	})
}

func TestBlockingKeys(t *testing.T) {
	Convey("Given a record with name, affiliation and email", t, func() {
		keys := scoring.BlockingKeys(model.Attributes{Name: "João Cruz", Affiliation: "GSPS", Email: "J@x.io"})

		Convey("Then keys cover name, name+affiliation and identifiers", func() {
			So(keys, ShouldResemble, []string{"n:cruz", "na:cruz|gsps", "id:email:j@x.io"})
		})

		Convey("Then an abbreviated name lands in the same blocks", func() {
			other := scoring.BlockingKeys(model.Attributes{Name: "J. Cruz", Affiliation: "gsps"})
			So(other, ShouldResemble, []string{"n:cruz", "na:cruz|gsps"})
		})

		Convey("Then an empty record has no keys", func() {
			So(scoring.BlockingKeys(model.Attributes{}), ShouldBeEmpty)
		})
	})
}
