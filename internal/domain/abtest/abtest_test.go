package abtest_test

import (
	"context"
	"fmt"
	"testing"

	abtest "github.com/immodesk/leadengine/internal/domain/abtest"
	"github.com/immodesk/leadengine/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func twoVariants() []abtest.VariantInput {
	return []abtest.VariantInput{
		{Name: "A", Weight: 50},
		{Name: "B", Weight: 50},
	}
}

func TestEngine_CreateExperiment(t *testing.T) {
	Convey("Given an experimentation engine", t, func() {
		engine := abtest.NewEngine(abtest.NewMemoryStore())
		ctx := context.Background()

		Convey("When creating with valid weights", func() {
			exp, err := engine.CreateExperiment(ctx, "subject-line", "email subject test", "email", twoVariants())

			Convey("Then a draft experiment with zeroed results exists", func() {
				So(err, ShouldBeNil)
				So(exp.Status, ShouldEqual, abtest.StatusDraft)
				So(exp.Variants, ShouldHaveLength, 2)
				So(exp.Results, ShouldHaveLength, 2)
				for _, r := range exp.Results {
					So(r.Impressions, ShouldEqual, 0)
					So(r.Conversions, ShouldEqual, 0)
				}
			})
		})

		Convey("When weights are off by the allowed tolerance", func() {
			_, err := engine.CreateExperiment(ctx, "x", "", "email", []abtest.VariantInput{
				{Name: "A", Weight: 50},
				{Name: "B", Weight: 49},
			})

			Convey("Then creation succeeds", func() {
				So(err, ShouldBeNil)
			})
		})

		Convey("When weights do not sum to 100", func() {
			_, err := engine.CreateExperiment(ctx, "x", "", "email", []abtest.VariantInput{
				{Name: "A", Weight: 50},
				{Name: "B", Weight: 30},
			})

			Convey("Then creation fails with the validation error", func() {
				So(err, ShouldNotBeNil)
				So(err, ShouldWrap, abtest.ErrInvalidWeights)
			})
		})

		Convey("When no variants are given", func() {
			_, err := engine.CreateExperiment(ctx, "x", "", "email", nil)

			Convey("Then creation fails", func() {
				So(err, ShouldWrap, abtest.ErrNoVariants)
			})
		})
	})
}

func TestEngine_Lifecycle(t *testing.T) {
	Convey("Given an experimentation engine", t, func() {
		engine := abtest.NewEngine(abtest.NewMemoryStore())
		ctx := context.Background()

		Convey("When starting an unknown experiment", func() {
			err := engine.StartExperiment(ctx, "exp-missing")

			Convey("Then it fails loud", func() {
				So(err, ShouldWrap, abtest.ErrNotFound)
			})
		})

		Convey("When an experiment runs its full lifecycle", func() {
			exp, err := engine.CreateExperiment(ctx, "lifecycle", "", "email", twoVariants())
			So(err, ShouldBeNil)

			Convey("Then assignment only works while running", func() {
				variant, err := engine.Assign(ctx, exp.ID, "user-1")
				So(err, ShouldBeNil)
				So(variant, ShouldBeNil)

				So(engine.StartExperiment(ctx, exp.ID), ShouldBeNil)
				variant, err = engine.Assign(ctx, exp.ID, "user-1")
				So(err, ShouldBeNil)
				So(variant, ShouldNotBeNil)

				So(engine.EndExperiment(ctx, exp.ID), ShouldBeNil)
				variant, err = engine.Assign(ctx, exp.ID, "user-2")
				So(err, ShouldBeNil)
				So(variant, ShouldBeNil)
			})
		})
	})
}

func TestEngine_Assign(t *testing.T) {
	Convey("Given a running experiment", t, func() {
		engine := abtest.NewEngine(abtest.NewMemoryStore())
		ctx := context.Background()

		exp, err := engine.CreateExperiment(ctx, "assignment", "", "email", twoVariants())
		So(err, ShouldBeNil)
		So(engine.StartExperiment(ctx, exp.ID), ShouldBeNil)

		Convey("When the same identifier is assigned twice", func() {
			first, err := engine.Assign(ctx, exp.ID, "user-42")
			So(err, ShouldBeNil)
			second, err := engine.Assign(ctx, exp.ID, "user-42")
			So(err, ShouldBeNil)

			Convey("Then the variant is stable and both calls count", func() {
				So(first.ID, ShouldEqual, second.ID)

				results, err := engine.GetResults(ctx, exp.ID)
				So(err, ShouldBeNil)
				total := 0
				for _, r := range results.Variants {
					total += r.Impressions
				}
				So(total, ShouldEqual, 2)
			})
		})

		Convey("When the weights leave the top bucket uncovered", func() {
			lopsided, err := engine.CreateExperiment(ctx, "lopsided", "", "email", []abtest.VariantInput{
				{Name: "A", Weight: 99},
				{Name: "B", Weight: 0},
			})
			So(err, ShouldBeNil)
			So(engine.StartExperiment(ctx, lopsided.ID), ShouldBeNil)

			Convey("Then the uncovered bucket falls back to the first variant", func() {
				for i := 0; i < 300; i++ {
					variant, err := engine.Assign(ctx, lopsided.ID, fmt.Sprintf("visitor-%d", i))
					So(err, ShouldBeNil)
					So(variant.Name, ShouldEqual, "A")
				}
			})
		})

		Convey("When many identifiers are assigned", func() {
			seen := map[string]int{}
			for i := 0; i < 200; i++ {
				variant, err := engine.Assign(ctx, exp.ID, fmt.Sprintf("user-%d", i))
				So(err, ShouldBeNil)
				So(variant, ShouldNotBeNil)
				seen[variant.ID]++
			}

			Convey("Then both variants receive traffic", func() {
				So(seen, ShouldHaveLength, 2)
				for _, count := range seen {
					So(count, ShouldBeGreaterThan, 0)
				}
			})
		})
	})
}

func TestEngine_TrackConversion(t *testing.T) {
	Convey("Given a running experiment", t, func() {
		engine := abtest.NewEngine(abtest.NewMemoryStore())
		ctx := context.Background()

		exp, err := engine.CreateExperiment(ctx, "conversion", "", "email", twoVariants())
		So(err, ShouldBeNil)
		So(engine.StartExperiment(ctx, exp.ID), ShouldBeNil)

		Convey("When tracking without a prior assignment", func() {
			tracked, err := engine.TrackConversion(ctx, exp.ID, "stranger")

			Convey("Then it is a no-op", func() {
				So(err, ShouldBeNil)
				So(tracked, ShouldBeFalse)

				results, err := engine.GetResults(ctx, exp.ID)
				So(err, ShouldBeNil)
				for _, r := range results.Variants {
					So(r.Conversions, ShouldEqual, 0)
				}
			})
		})

		Convey("When tracking an assigned identifier", func() {
			variant, err := engine.Assign(ctx, exp.ID, "user-1")
			So(err, ShouldBeNil)

			tracked, err := engine.TrackConversion(ctx, exp.ID, "user-1")

			Convey("Then the variant's conversions and rate update", func() {
				So(err, ShouldBeNil)
				So(tracked, ShouldBeTrue)

				results, err := engine.GetResults(ctx, exp.ID)
				So(err, ShouldBeNil)
				r := resultFor(results, variant.ID)
				So(r.Conversions, ShouldEqual, 1)
				So(r.ConversionRate, ShouldEqual, 100.0)
			})
		})
	})
}

func TestEngine_GetResults(t *testing.T) {
	Convey("Given an experiment with collected data", t, func() {
		store := abtest.NewMemoryStore()
		engine := abtest.NewEngine(store)
		ctx := context.Background()

		exp, err := engine.CreateExperiment(ctx, "results", "", "email", twoVariants())
		So(err, ShouldBeNil)
		So(engine.StartExperiment(ctx, exp.ID), ShouldBeNil)

		setCounts := func(variantID string, impressions, conversions int) {
			stored, err := store.GetExperiment(ctx, exp.ID)
			So(err, ShouldBeNil)
			r := stored.Results[variantID]
			r.Impressions = impressions
			r.Conversions = conversions
			r.ConversionRate = float64(conversions) / float64(impressions) * 100
		}

		a := exp.Variants[0].ID
		b := exp.Variants[1].ID

		Convey("When one variant clearly outperforms with enough samples", func() {
			setCounts(a, 40, 20)
			setCounts(b, 40, 8)

			results, err := engine.GetResults(ctx, exp.ID)

			Convey("Then the better variant wins significantly", func() {
				So(err, ShouldBeNil)
				So(results.Winner, ShouldNotBeNil)
				So(results.Winner.VariantID, ShouldEqual, a)
				So(results.IsSignificant, ShouldBeTrue)
				So(results.ConfidenceLevel, ShouldBeGreaterThanOrEqualTo, 95)
			})
		})

		Convey("When samples are below the minimum", func() {
			setCounts(a, 10, 9)
			setCounts(b, 12, 1)

			results, err := engine.GetResults(ctx, exp.ID)

			Convey("Then no winner or significance is reported", func() {
				So(err, ShouldBeNil)
				So(results.Winner, ShouldBeNil)
				So(results.IsSignificant, ShouldBeFalse)
			})
		})

		Convey("When rates are nearly identical", func() {
			setCounts(a, 100, 20)
			setCounts(b, 100, 21)

			results, err := engine.GetResults(ctx, exp.ID)

			Convey("Then the difference is not significant", func() {
				So(err, ShouldBeNil)
				So(results.IsSignificant, ShouldBeFalse)
			})
		})
	})

	Convey("Given a three-variant experiment", t, func() {
		store := abtest.NewMemoryStore()
		engine := abtest.NewEngine(store)
		ctx := context.Background()

		exp, err := engine.CreateExperiment(ctx, "three-way", "", "email", []abtest.VariantInput{
			{Name: "A", Weight: 34},
			{Name: "B", Weight: 33},
			{Name: "C", Weight: 33},
		})
		So(err, ShouldBeNil)

		setCounts := func(i, impressions, conversions int) {
			stored, err := store.GetExperiment(ctx, exp.ID)
			So(err, ShouldBeNil)
			r := stored.Results[stored.Variants[i].ID]
			r.Impressions = impressions
			r.Conversions = conversions
			r.ConversionRate = float64(conversions) / float64(impressions) * 100
		}

		Convey("When every variant has plenty of data", func() {
			for i := 0; i < 3; i++ {
				setCounts(i, 100, 10*(i+1))
			}

			results, err := engine.GetResults(ctx, exp.ID)

			Convey("Then a winner is picked but significance stays false", func() {
				So(err, ShouldBeNil)
				So(results.Winner, ShouldNotBeNil)
				So(results.Winner.Name, ShouldEqual, "C")
				So(results.IsSignificant, ShouldBeFalse)
				So(results.ConfidenceLevel, ShouldEqual, 0)
			})
		})

		Convey("When only two of the three variants reach the minimum sample", func() {
			setCounts(0, 40, 20)
			setCounts(1, 40, 8)
			setCounts(2, 5, 1)

			results, err := engine.GetResults(ctx, exp.ID)

			Convey("Then significance still stays false", func() {
				So(err, ShouldBeNil)
				So(results.Winner, ShouldNotBeNil)
				So(results.Winner.Name, ShouldEqual, "A")
				So(results.IsSignificant, ShouldBeFalse)
				So(results.ConfidenceLevel, ShouldEqual, 0)
			})
		})
	})
}

func resultFor(results abtest.Results, variantID string) abtest.VariantResult {
	for _, r := range results.Variants {
		if r.VariantID == variantID {
			return r
		}
	}
	return abtest.VariantResult{}
}
