package config_test

import (
	"os"
	"path/filepath"
	"testing"

	config "github.com/immodesk/leadengine/internal/config"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		// Convey re-runs this block once per leaf on the same *testing.T,
		// so t.Setenv values from earlier branches are still set here;
		// clear them so each branch really starts clean.
		for _, key := range []string{
			"LEADENGINE_CONFIG",
			"LEADENGINE_ADDR",
			"LEADENGINE_RATE_LIMIT_MAX",
			"LEADENGINE_RESCORE_WORKERS",
			"LEADENGINE_FOLLOWUP_HOUR",
		} {
			So(os.Unsetenv(key), ShouldBeNil)
		}

		Convey("When loading with no overrides", func() {
			cfg, err := config.Load()

			Convey("Then the defaults apply", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":8090")
				So(cfg.DatabasePath, ShouldEqual, "leadengine.db")
				So(cfg.LogLevel, ShouldEqual, "info")
				So(cfg.RateLimitMax, ShouldEqual, 120)
				So(cfg.RateLimitWindowSeconds, ShouldEqual, 60)
				So(cfg.PredictionCacheSeconds, ShouldEqual, 120)
				So(cfg.FollowUpHour, ShouldEqual, 9)
				So(cfg.RescoreWorkers, ShouldEqual, 1)
			})
		})

		Convey("When env vars override defaults", func() {
			t.Setenv("LEADENGINE_ADDR", ":9100")
			t.Setenv("LEADENGINE_RATE_LIMIT_MAX", "10")
			t.Setenv("LEADENGINE_RESCORE_WORKERS", "4")

			cfg, err := config.Load()

			Convey("Then the overridden values win", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":9100")
				So(cfg.RateLimitMax, ShouldEqual, 10)
				So(cfg.RescoreWorkers, ShouldEqual, 4)
				So(cfg.DatabasePath, ShouldEqual, "leadengine.db")
			})
		})

		Convey("When a YAML file is layered under env", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			So(os.WriteFile(path, []byte("addr: \":7000\"\nfollowup_hour: 8\n"), 0o600), ShouldBeNil)
			t.Setenv("LEADENGINE_CONFIG", path)
			t.Setenv("LEADENGINE_ADDR", ":7100")

			cfg, err := config.Load()

			Convey("Then env beats file beats defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.Addr, ShouldEqual, ":7100")
				So(cfg.FollowUpHour, ShouldEqual, 8)
				So(cfg.LogLevel, ShouldEqual, "info")
			})
		})

		Convey("When the follow-up hour is out of range", func() {
			t.Setenv("LEADENGINE_FOLLOWUP_HOUR", "25")

			_, err := config.Load()

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "followup_hour")
			})
		})

		Convey("When rescore workers drop below one", func() {
			t.Setenv("LEADENGINE_RESCORE_WORKERS", "0")

			_, err := config.Load()

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "rescore_workers")
			})
		})

		Convey("When the listen address is blanked out", func() {
			t.Setenv("LEADENGINE_ADDR", "")

			_, err := config.Load()

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "addr")
			})
		})

		Convey("When the config file does not exist", func() {
			t.Setenv("LEADENGINE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

			_, err := config.Load()

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}
