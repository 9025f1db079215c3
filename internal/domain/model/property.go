package model

import "time"

// Property is a listing record. The engine reads properties as
// comparables input and for budget-match scoring; it never writes them.
type Property struct {
	ID       string
	TenantID string

	Title        string
	City         string
	ZipCode      string
	PropertyType string
	Rooms        float64
	LivingArea   float64

	// Price is the current asking price; SalePrice is the realized
	// price for sold objects and is what comparables are built from.
	Price     float64
	SalePrice float64

	CreatedAt time.Time
}
