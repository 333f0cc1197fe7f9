// Package model holds the listing values produced by the transformer and consumed by the resolver.
package model

import "time"

// ListingType is the only record kind the import accepts.
const ListingType = "RealEstateSoldHistoryItem"

// Comparison types of a comparable property.
const (
	ComparisonForSale = "for sale"
	ComparisonForRent = "for rent"
	ComparisonSold    = "sold"
)

// Listing is one parsed input record.
type Listing struct {
	Type          string
	URL           *string
	CrawlDate     *time.Time
	CrawlDateTime *time.Time
	InputAddress  *string
	CachedPageID  *string
	PropertyDetails
}

// PropertyDetails is the property graph of a listing or of a comparable property.
type PropertyDetails struct {
	AddressPID *string
	Address    *string
	State      *string
	PostCode   *string
	Locality   *string

	PropertyType     *string
	Bedrooms         *int
	Bathrooms        *int
	CarSpots         *int
	LandSizeDesc     *string
	BuildingSizeDesc *string
	YearBuilt        *string
	CouncilArea      *string
	BlockCode        *string
	LotPlan          *string

	PriceDesc               *string
	PriceEstimateFrom       *int
	PriceEstimateTo         *int
	PriceEstimateConfidence *string

	SaleMethod            *string
	SoldDate              *time.Time
	AvailableForLeaseDate *time.Time
	AvailableNow          bool

	ComparablesForSale []PropertyDetails
	ComparablesForRent []PropertyDetails
	ComparablesSold    []PropertyDetails
	NearbySchools      []School
	History            []Event
}

// HasAddress reports whether any part of the denormalized address is present.
func (p *PropertyDetails) HasAddress() bool {
	return p.Address != nil || p.State != nil || p.PostCode != nil || p.Locality != nil
}

// EffectiveLeaseDate returns the lease availability date, or asOf when the property
// is available now and no explicit date was given.
func (p *PropertyDetails) EffectiveLeaseDate(asOf *time.Time) *time.Time {
	if p.AvailableForLeaseDate == nil && p.AvailableNow {
		return asOf
	}
	return p.AvailableForLeaseDate
}

// School is a school listed near a property.
type School struct {
	Name     *string
	Type     *string
	Sector   *string
	Website  *string
	Distance *string

	Street   *string
	Locality *string
	State    *string
	PostCode *string
}

// Event is one entry of a property's sale and rental history.
type Event struct {
	// YearMonth is the first day of the event's month.
	YearMonth *time.Time
	Type      *string
	PriceDesc *string
	Agency    *string
}
