package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/scout/internal/app"
	"github.com/okian/scout/internal/config"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("Then operations fail until it is started", func() {
			_, err := svc.StartRun(ctx, []string{"x"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["profiles"], ShouldEqual, 0)
				So(stats["inbox_pending"], ShouldEqual, 0)
			})

			Convey("Then starting again is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And when stopping it", func() {
				So(svc.Stop(ctx), ShouldBeNil)

				Convey("Then it should be marked as stopped", func() {
					So(svc.GetStats()["started"], ShouldEqual, false)
					So(svc.Stop(ctx), ShouldBeNil)
				})
			})
		})
	})
}

func TestService_SQLiteDirectory(t *testing.T) {
	Convey("Given a service configured with the sqlite directory", t, func() {
		cfg := config.New()
		cfg.DirectoryDriver = config.DirectorySQLite
		cfg.DirectoryPath = t.TempDir() + "/scout.db"
		svc := service.New(service.WithConfig(cfg))
		ctx := context.Background()

		Convey("Then it starts and releases the database on stop", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			again := service.New(service.WithConfig(cfg))
			So(again.Start(ctx), ShouldBeNil)
			So(again.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestService_Settings(t *testing.T) {
	Convey("Given a started service with one connector", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithRegistry(registry(map[string]fetcher{"x": static()})))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then defaults come from configuration", func() {
			s := svc.Settings()
			So(s.Thresholds, ShouldResemble, model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3})
			So(s.Connectors, ShouldResemble, map[string]bool{"x": true})
		})

		Convey("When the connector is disabled", func() {
			_, err := svc.UpdateSettings(ctx, model.Settings{
				Thresholds: model.Thresholds{AutoMerge: 0.8, NoMatch: 0.2},
				Connectors: map[string]bool{"x": false},
			})
			So(err, ShouldBeNil)

			Convey("Then runs over it are refused", func() {
				_, err := svc.StartRun(ctx, []string{"x"})
				So(errors.Is(err, model.ErrConfiguration), ShouldBeTrue)
				So(svc.Settings().Thresholds.AutoMerge, ShouldEqual, 0.8)
			})
		})

		Convey("When thresholds are misordered or a connector is unknown", func() {
			_, bad := svc.UpdateSettings(ctx, model.Settings{Thresholds: model.Thresholds{AutoMerge: 0.3, NoMatch: 0.6}})
			_, unknown := svc.UpdateSettings(ctx, model.Settings{
				Thresholds: model.Thresholds{AutoMerge: 0.9, NoMatch: 0.3},
				Connectors: map[string]bool{"nope": true},
			})

			Convey("Then the update is refused and nothing changes", func() {
				So(errors.Is(bad, model.ErrConfiguration), ShouldBeTrue)
				So(errors.Is(unknown, model.ErrConfiguration), ShouldBeTrue)
				So(svc.Settings().Thresholds.AutoMerge, ShouldEqual, 0.9)
			})
		})
	})
}
