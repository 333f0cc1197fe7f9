// Package entity maps the workload tables written by the listing import.
package entity

import (
	"time"

	"github.com/tigerroll/iconium/internal/domain/model"
)

// PropertyRow is a row of property_details. One row exists per property per as-at date.
type PropertyRow struct {
	ID                      int64      `gorm:"column:prop_dtls_id;primaryKey;autoIncrement"`
	AddressPID              *string    `gorm:"column:gnaf_addr_dtl_pid"`
	AsAt                    time.Time  `gorm:"column:as_at"`
	Address                 *string    `gorm:"column:address"`
	State                   *string    `gorm:"column:state"`
	PostCode                *string    `gorm:"column:post_code"`
	Locality                *string    `gorm:"column:locality"`
	PropertyType            *string    `gorm:"column:property_type"`
	Bedrooms                *int       `gorm:"column:bedrooms"`
	Bathrooms               *int       `gorm:"column:bathrooms"`
	CarSpots                *int       `gorm:"column:car_spots"`
	LandSizeDesc            *string    `gorm:"column:land_size_desc"`
	BuildingSizeDesc        *string    `gorm:"column:bldg_size_desc"`
	CouncilArea             *string    `gorm:"column:council_area"`
	PriceDesc               *string    `gorm:"column:price_desc"`
	PriceEstimateFrom       *int       `gorm:"column:price_estimate_from"`
	PriceEstimateTo         *int       `gorm:"column:price_estimate_to"`
	PriceEstimateConfidence *string    `gorm:"column:price_estimate_confidence"`
	SaleMethod              *string    `gorm:"column:sale_method"`
	SoldDate                *time.Time `gorm:"column:sold_date"`
	AvailableForLease       *time.Time `gorm:"column:avail_for_lease"`
	YearBuilt               *string    `gorm:"column:year_built"`
	BlockCode               *string    `gorm:"column:block_code"`
}

func (PropertyRow) TableName() string { return "property_details" }

// NewPropertyRow maps p onto a row recorded as at asAt. The denormalized address is
// kept only for properties without an AddressPID.
func NewPropertyRow(p *model.PropertyDetails, asAt time.Time) *PropertyRow {
	row := &PropertyRow{
		AddressPID:              p.AddressPID,
		AsAt:                    asAt,
		PropertyType:            p.PropertyType,
		Bedrooms:                p.Bedrooms,
		Bathrooms:               p.Bathrooms,
		CarSpots:                p.CarSpots,
		LandSizeDesc:            p.LandSizeDesc,
		BuildingSizeDesc:        p.BuildingSizeDesc,
		CouncilArea:             p.CouncilArea,
		PriceDesc:               p.PriceDesc,
		PriceEstimateFrom:       p.PriceEstimateFrom,
		PriceEstimateTo:         p.PriceEstimateTo,
		PriceEstimateConfidence: p.PriceEstimateConfidence,
		SaleMethod:              p.SaleMethod,
		SoldDate:                p.SoldDate,
		AvailableForLease:       p.EffectiveLeaseDate(&asAt),
		YearBuilt:               p.YearBuilt,
		BlockCode:               p.BlockCode,
	}
	if p.AddressPID == nil {
		row.Address = p.Address
		row.State = p.State
		row.PostCode = p.PostCode
		row.Locality = p.Locality
	}
	return row
}

// PropertyUpdateColumns are the attributes refreshed when a property is seen again
// for the same as-at date. Identity columns are never updated.
var PropertyUpdateColumns = []string{
	"property_type", "bedrooms", "bathrooms", "car_spots", "land_size_desc", "bldg_size_desc",
	"council_area", "price_estimate_from", "price_estimate_to", "price_estimate_confidence",
	"year_built", "block_code",
}

// UpdateValues returns the PropertyUpdateColumns of the row keyed by column name.
func (r *PropertyRow) UpdateValues() map[string]interface{} {
	return map[string]interface{}{
		"property_type":             r.PropertyType,
		"bedrooms":                  r.Bedrooms,
		"bathrooms":                 r.Bathrooms,
		"car_spots":                 r.CarSpots,
		"land_size_desc":            r.LandSizeDesc,
		"bldg_size_desc":            r.BuildingSizeDesc,
		"council_area":              r.CouncilArea,
		"price_estimate_from":       r.PriceEstimateFrom,
		"price_estimate_to":         r.PriceEstimateTo,
		"price_estimate_confidence": r.PriceEstimateConfidence,
		"year_built":                r.YearBuilt,
		"block_code":                r.BlockCode,
	}
}

// SchoolRow is a row of schools, unique on (name, type, sector).
type SchoolRow struct {
	ID                int64   `gorm:"column:school_id;primaryKey;autoIncrement"`
	Name              *string `gorm:"column:name"`
	Type              *string `gorm:"column:type"`
	Sector            *string `gorm:"column:sector"`
	Website           *string `gorm:"column:website"`
	StreetLocalityPID *string `gorm:"column:gnaf_street_locality_pid"`
}

func (SchoolRow) TableName() string { return "schools" }

// SchoolNearPropertyRow links a school to a property.
type SchoolNearPropertyRow struct {
	PropertyID   int64   `gorm:"column:prop_dtls_id;primaryKey"`
	SchoolID     int64   `gorm:"column:school_id;primaryKey"`
	DistanceDesc *string `gorm:"column:distance_desc"`
}

func (SchoolNearPropertyRow) TableName() string { return "schools_near_props" }

// EventRow is a row of property_sale_rent_hist.
type EventRow struct {
	PropertyID int64   `gorm:"column:prop_dtls_id;primaryKey"`
	Year       int     `gorm:"column:event_year;primaryKey"`
	Month      int     `gorm:"column:event_month;primaryKey"`
	Type       string  `gorm:"column:event_type;primaryKey"`
	PriceDesc  *string `gorm:"column:price_desc"`
}

func (EventRow) TableName() string { return "property_sale_rent_hist" }

// ComparablePropertyRow links a property to a property it was compared with.
type ComparablePropertyRow struct {
	PropertyID     int64     `gorm:"column:prop_compared_id;primaryKey"`
	ComparableID   int64     `gorm:"column:comparable_prop_id;primaryKey"`
	ComparisonType string    `gorm:"column:comparison_type;primaryKey"`
	ComparedOn     time.Time `gorm:"column:compared_on;primaryKey"`
}

func (ComparablePropertyRow) TableName() string { return "comparable_properties" }

// DataAcquisitionRow audits where and when a property was acquired from.
type DataAcquisitionRow struct {
	ID         int64     `gorm:"column:acquisition_id;primaryKey;autoIncrement"`
	AddressPID *string   `gorm:"column:gnaf_addr_dtl_pid"`
	URL        *string   `gorm:"column:url"`
	AcquiredOn time.Time `gorm:"column:acquired_on"`
	PropertyID int64     `gorm:"column:prop_dtls_id"`
}

func (DataAcquisitionRow) TableName() string { return "data_acquisition" }
