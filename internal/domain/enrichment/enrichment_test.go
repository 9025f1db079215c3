package enrichment_test

import (
	"context"
	"testing"
	"time"

	"github.com/immodesk/leadengine/internal/adapters/repository"
	enrichment "github.com/immodesk/leadengine/internal/domain/enrichment"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	m.Run()
}

func TestEnricher_EnrichLead(t *testing.T) {
	Convey("Given two leads sharing an email within a tenant", t, func() {
		store := repository.NewMemStore()
		enricher := enrichment.New(store)
		ctx := context.Background()

		original := model.Lead{
			ID:        "lead-old",
			TenantID:  "t1",
			Email:     "max.mustermann@example.com",
			Phone:     "+49 170 1234567",
			FirstName: "Max",
			LastName:  "Mustermann",
			Status:    model.StatusContacted,
			CreatedAt: time.Now().AddDate(0, 0, -30),
		}
		So(store.CreateLead(ctx, original), ShouldBeNil)

		fresh := model.Lead{
			ID:        "lead-new",
			TenantID:  "t1",
			Email:     "max.mustermann@example.com",
			Status:    model.StatusNew,
			CreatedAt: time.Now(),
		}
		So(store.CreateLead(ctx, fresh), ShouldBeNil)

		Convey("When enriching the newer lead", func() {
			result, err := enricher.EnrichLead(ctx, "lead-new", "t1")

			Convey("Then the duplicate is reported and fields backfilled", func() {
				So(err, ShouldBeNil)
				So(result.IsDuplicate, ShouldBeTrue)
				So(result.DuplicateLeadID, ShouldEqual, "lead-old")
				So(result.EnrichedFields, ShouldContain, "phone (from duplicate)")
				So(result.EnrichedFields, ShouldContain, "firstName (from duplicate)")
				So(result.EnrichedFields, ShouldContain, "lastName (from duplicate)")

				updated, err := store.GetLead(ctx, "lead-new")
				So(err, ShouldBeNil)
				So(updated.Phone, ShouldEqual, "+49 170 1234567")
				So(updated.FirstName, ShouldEqual, "Max")
				So(updated.LastName, ShouldEqual, "Mustermann")
			})

			Convey("And existing values are never overwritten", func() {
				So(err, ShouldBeNil)
				kept, err := store.GetLead(ctx, "lead-old")
				So(err, ShouldBeNil)
				So(kept.FirstName, ShouldEqual, "Max")
			})
		})
	})

	Convey("Given a lead with a placeholder email", t, func() {
		store := repository.NewMemStore()
		enricher := enrichment.New(store)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID:       "lead-a",
			TenantID: "t1",
			Email:    "unknown-8f3a@example.com",
			Status:   model.StatusNew,
		}), ShouldBeNil)
		So(store.CreateLead(ctx, model.Lead{
			ID:       "lead-b",
			TenantID: "t1",
			Email:    "unknown-8f3a@example.com",
			Status:   model.StatusNew,
		}), ShouldBeNil)

		Convey("When enriching", func() {
			result, err := enricher.EnrichLead(ctx, "lead-b", "t1")

			Convey("Then placeholder emails never count as duplicates", func() {
				So(err, ShouldBeNil)
				So(result.IsDuplicate, ShouldBeFalse)
				So(result.CompletenessFactors["hasEmail"], ShouldBeFalse)
			})
		})
	})

	Convey("Given a lead with a local-format phone number", t, func() {
		store := repository.NewMemStore()
		enricher := enrichment.New(store)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID:       "lead-phone",
			TenantID: "t1",
			Email:    "phone@example.com",
			Phone:    "0170/1234567",
			Status:   model.StatusNew,
		}), ShouldBeNil)

		Convey("When enriching", func() {
			result, err := enricher.EnrichLead(ctx, "lead-phone", "t1")

			Convey("Then the phone is normalized and persisted", func() {
				So(err, ShouldBeNil)
				So(result.NormalizedPhone, ShouldEqual, "+49 170 1234567")
				So(result.EnrichedFields, ShouldContain, "phone (normalized)")

				updated, err := store.GetLead(ctx, "lead-phone")
				So(err, ShouldBeNil)
				So(updated.Phone, ShouldEqual, "+49 170 1234567")
			})

			Convey("And running enrichment again changes nothing", func() {
				So(err, ShouldBeNil)
				again, err := enricher.EnrichLead(ctx, "lead-phone", "t1")
				So(err, ShouldBeNil)
				So(again.EnrichedFields, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a complete lead", t, func() {
		store := repository.NewMemStore()
		enricher := enrichment.New(store)
		ctx := context.Background()

		So(store.CreateLead(ctx, model.Lead{
			ID:         "lead-full",
			TenantID:   "t1",
			Email:      "full@example.com",
			Phone:      "+49 170 1234567",
			FirstName:  "Erika",
			LastName:   "Musterfrau",
			Source:     model.SourceWebsite,
			Status:     model.StatusNew,
			PropertyID: "prop-1",
			Notes:      "Looking for a family apartment with a balcony",
			BudgetMax:  500000,
		}), ShouldBeNil)

		Convey("When enriching", func() {
			result, err := enricher.EnrichLead(ctx, "lead-full", "t1")

			Convey("Then completeness reports 100 percent", func() {
				So(err, ShouldBeNil)
				So(result.CompletenessScore, ShouldEqual, 100)
				So(result.CompletenessFactors, ShouldHaveLength, 8)
			})
		})
	})
}
