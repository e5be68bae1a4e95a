package config_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/okian/scout/internal/config"
	"github.com/okian/scout/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.DirectoryDriver, convey.ShouldEqual, config.DirectoryMemory)
			convey.So(cfg.Thresholds(), convey.ShouldResemble, model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3})
			convey.So(cfg.ConnectorTimeout().Seconds(), convey.ShouldEqual, 300)
			convey.So(cfg.ScheduleInterval(), convey.ShouldEqual, 0)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When thresholds are inverted", func() {
			cfg.AutoMergeThreshold, cfg.NoMatchThreshold = 0.4, 0.6
			err := cfg.Validate()

			convey.Convey("Then it is a configuration error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(errors.Is(err, model.ErrConfiguration), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a connector has an unknown kind", func() {
			cfg.Connectors["ftp"] = config.Connector{Kind: "ftp", Enabled: true}
			convey.So(errors.Is(cfg.Validate(), model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When a file connector has no path", func() {
			cfg.Connectors["x"] = config.Connector{Kind: config.ConnectorKindFile}
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the sqlite driver has no path", func() {
			cfg.DirectoryDriver, cfg.DirectoryPath = config.DirectorySQLite, ""
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When all weights are zero", func() {
			cfg.SimilarityWeights = config.Weights{}
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the directory driver is unknown", func() {
			cfg.DirectoryDriver = "postgres"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When a connector carries a tier and a schedule", func() {
			cfg.Connectors["uog"] = config.Connector{Kind: config.ConnectorKindFile, Path: "uog.json",
				Tier: config.TierInstitutional, Schedule: "0 6 * * 1"}
			cfg.Connectors["events"] = config.Connector{Kind: config.ConnectorKindFile, Path: "events.json",
				Tier: config.TierCommunity, Schedule: "@daily"}
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When a connector tier is unknown", func() {
			cfg.Connectors["x"] = config.Connector{Kind: config.ConnectorKindFile, Path: "x.json", Tier: "viral"}
			convey.So(errors.Is(cfg.Validate(), model.ErrConfiguration), convey.ShouldBeTrue)
		})

		convey.Convey("When a connector schedule is not a cron expression", func() {
			cfg.Connectors["x"] = config.Connector{Kind: config.ConnectorKindFile, Path: "x.json", Schedule: "every tuesday"}
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "every tuesday")
		})
	})
}
