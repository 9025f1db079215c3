// Command seed loads a demo tenant with leads, properties and activity
// history into the record store so scoring, predictions and price
// estimation have data to work with out of the box.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/immodesk/leadengine/internal/adapters/repository"
	"github.com/immodesk/leadengine/internal/domain/model"
	"github.com/immodesk/leadengine/pkg/logger"
)

const demoTenant = "tenant_demo"

func main() {
	dbPath := flag.String("db", "leadengine.db", "path to the sqlite record store")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("seed")
	ctx := context.Background()

	store, err := repository.OpenSQLStore(*dbPath)
	if err != nil {
		log.Error(ctx, "open record store", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	now := time.Now()

	properties := demoProperties(now)
	for _, p := range properties {
		if err := store.CreateProperty(ctx, p); err != nil {
			log.Error(ctx, "create property", logger.Error(err), logger.String("title", p.Title))
			os.Exit(1)
		}
	}

	leads := demoLeads(now, properties[0].ID)
	for _, l := range leads {
		if err := store.CreateLead(ctx, l); err != nil {
			log.Error(ctx, "create lead", logger.Error(err), logger.String("email", l.Email))
			os.Exit(1)
		}
	}

	activities := demoActivities(now, leads)
	for _, a := range activities {
		if err := store.AppendActivity(ctx, a); err != nil {
			log.Error(ctx, "append activity", logger.Error(err), logger.String("leadID", a.LeadID))
			os.Exit(1)
		}
	}

	log.Info(ctx, "demo tenant seeded",
		logger.String("tenantID", demoTenant),
		logger.Int("properties", len(properties)),
		logger.Int("leads", len(leads)),
		logger.Int("activities", len(activities)),
	)
}

// demoProperties returns one active listing plus sold comparables in
// the same zip so price estimation finds data.
func demoProperties(now time.Time) []model.Property {
	mk := func(title, city, zip, typ string, rooms, area, price, salePrice float64, ageDays int) model.Property {
		return model.Property{
			ID:           uuid.NewString(),
			TenantID:     demoTenant,
			Title:        title,
			City:         city,
			ZipCode:      zip,
			PropertyType: typ,
			Rooms:        rooms,
			LivingArea:   area,
			Price:        price,
			SalePrice:    salePrice,
			CreatedAt:    now.AddDate(0, 0, -ageDays),
		}
	}
	return []model.Property{
		mk("Moderne 3-Zimmer Wohnung in Berlin-Mitte", "Berlin", "10119", "apartment", 3, 85.5, 498000, 0, 10),
		mk("Sanierter Altbau mit Balkon", "Berlin", "10119", "apartment", 3, 92, 0, 545000, 120),
		mk("2-Zimmer Wohnung nahe Rosenthaler Platz", "Berlin", "10119", "apartment", 2, 61, 0, 365000, 200),
		mk("Helle Dachgeschosswohnung", "Berlin", "10119", "apartment", 4, 110, 0, 689000, 90),
		mk("Kompakte Stadtwohnung", "Berlin", "10115", "apartment", 2, 55, 0, 318000, 150),
		mk("Familienwohnung mit Garten", "Berlin", "10115", "apartment", 4, 105, 0, 610000, 60),
	}
}

func demoLeads(now time.Time, propertyID string) []model.Lead {
	return []model.Lead{
		{
			ID:              uuid.NewString(),
			TenantID:        demoTenant,
			Email:           "max.mustermann@example.com",
			FirstName:       "Max",
			LastName:        "Mustermann",
			Phone:           "+49 170 1234567",
			Status:          model.StatusNew,
			Source:          model.SourceWebsite,
			TimeFrame:       model.TimeFrameImmediate,
			FinancingStatus: model.FinancingApproved,
			BudgetMin:       400000,
			BudgetMax:       550000,
			PropertyID:      propertyID,
			MessageCount:    2,
			CreatedAt:       now.AddDate(0, 0, -2),
			UpdatedAt:       now.AddDate(0, 0, -2),
		},
		{
			ID:        uuid.NewString(),
			TenantID:  demoTenant,
			Email:     "erika.musterfrau@example.com",
			FirstName: "Erika",
			LastName:  "Musterfrau",
			Status:    model.StatusContacted,
			Source:    model.SourceReferral,
			TimeFrame: model.TimeFrameThreeMonths,
			CreatedAt: now.AddDate(0, 0, -9),
			UpdatedAt: now.AddDate(0, 0, -5),
		},
		{
			ID:        uuid.NewString(),
			TenantID:  demoTenant,
			Email:     "unknown-8f3a@example.com",
			Status:    model.StatusNew,
			Source:    model.SourcePortal,
			CreatedAt: now.AddDate(0, 0, -1),
			UpdatedAt: now.AddDate(0, 0, -1),
		},
		{
			ID:              uuid.NewString(),
			TenantID:        demoTenant,
			Email:           "peter.schmidt@example.com",
			FirstName:       "Peter",
			LastName:        "Schmidt",
			Phone:           "0171 9876543",
			Status:          model.StatusBooked,
			Source:          model.SourceReferral,
			TimeFrame:       model.TimeFrameImmediate,
			FinancingStatus: model.FinancingCashBuyer,
			MessageCount:    8,
			CreatedAt:       now.AddDate(0, 0, -40),
			UpdatedAt:       now.AddDate(0, 0, -12),
		},
		{
			ID:        uuid.NewString(),
			TenantID:  demoTenant,
			Email:     "anna.weber@example.com",
			FirstName: "Anna",
			Status:    model.StatusLost,
			Source:    model.SourceColdCall,
			CreatedAt: now.AddDate(0, 0, -60),
			UpdatedAt: now.AddDate(0, 0, -30),
		},
	}
}

// demoActivities gives the first leads inbound history at plausible
// business hours so contact-time prediction has a mode to find.
func demoActivities(now time.Time, leads []model.Lead) []model.LeadActivity {
	var activities []model.LeadActivity
	add := func(leadID string, typ model.ActivityType, desc string, at time.Time) {
		activities = append(activities, model.LeadActivity{
			ID:          uuid.NewString(),
			LeadID:      leadID,
			Type:        typ,
			Description: desc,
			CreatedAt:   at,
		})
	}

	first := leads[0].ID
	add(first, model.ActivityPortalInquiry, "Inquiry about the Torstrasse listing", leads[0].CreatedAt)
	add(first, model.ActivityEmailSent, "Sent expose and viewing options", leads[0].CreatedAt.Add(45*time.Minute))
	add(first, model.ActivityEmailReceived, "Asked about viewing on Saturday", leads[0].CreatedAt.Add(3*time.Hour))
	add(first, model.ActivityViewingScheduled, "Viewing confirmed", leads[0].CreatedAt.Add(26*time.Hour))

	second := leads[1].ID
	add(second, model.ActivityEmailReceived, "Referral introduction", leads[1].CreatedAt)
	add(second, model.ActivityEmailSent, "Welcome email with portfolio", leads[1].CreatedAt.Add(2*time.Hour))

	booked := leads[3].ID
	base := leads[3].CreatedAt
	for day := 0; day < 10; day++ {
		at := time.Date(base.Year(), base.Month(), base.Day(), 10, 15, 0, 0, base.Location()).AddDate(0, 0, day*2)
		add(booked, model.ActivityEmailReceived, "Ongoing purchase conversation", at)
	}
	add(booked, model.ActivityViewingScheduled, "Second viewing with spouse", base.AddDate(0, 0, 14))
	add(booked, model.ActivityStatusChanged, "Reservation signed", now.AddDate(0, 0, -12))

	return activities
}
