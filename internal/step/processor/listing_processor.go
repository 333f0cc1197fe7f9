// Package processor maps raw listing records onto model.Listing values.
package processor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/tigerroll/iconium/internal/domain/model"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

// Layouts of the dated fields. ComparableDateLayout accepts days with or without a
// leading zero.
const (
	DateLayout           = "2006-01-02"
	DateTimeLayout       = "2006-01-02 15:04:05"
	ComparableDateLayout = "2 Jan 2006"
	YearMonthLayout      = "Jan 2006"
)

const (
	typeField       = "_type"
	unavailable     = "Unavailable"
	availableNow    = "Available now"
	maxValueInError = 80
)

// ListingProcessor turns a raw JSON object into a *model.Listing. Records of another
// type are filtered by returning nil. It performs no I/O.
type ListingProcessor struct{}

var _ port.ItemProcessor[json.RawMessage, *model.Listing] = (*ListingProcessor)(nil)

// NewListingProcessor creates a ListingProcessor.
func NewListingProcessor() *ListingProcessor {
	return &ListingProcessor{}
}

// Process implements port.ItemProcessor.
func (p *ListingProcessor) Process(ctx context.Context, raw json.RawMessage) (*model.Listing, error) {
	if !gjson.ValidBytes(raw) {
		return nil, exception.NewValidationError("record", clip(string(raw)), fmt.Errorf("not valid JSON"))
	}
	node := gjson.ParseBytes(raw)
	if !node.IsObject() {
		return nil, exception.NewValidationError("record", clip(node.Raw), fmt.Errorf("record is not a JSON object"))
	}

	kind := node.Get(typeField)
	if kind.Type != gjson.String || kind.Str != model.ListingType {
		return nil, nil
	}

	x := &extractor{}
	listing := &model.Listing{
		Type:          kind.Str,
		URL:           x.text(node, "url"),
		CrawlDate:     x.date(node, "crawl_date", DateLayout),
		CrawlDateTime: x.date(node, "crawl_datetime", DateTimeLayout),
		InputAddress:  x.text(node, "input_address"),
		CachedPageID:  x.text(node, "_cached_page_id"),
	}
	d := &listing.PropertyDetails
	d.AddressPID = x.text(node, "addr_id")
	// The source feed labels the estimate bounds the other way round.
	d.PriceEstimateFrom = x.integer(node, "price_estimation_to")
	d.PriceEstimateTo = x.integer(node, "price_estimation_from")
	d.PriceEstimateConfidence = x.text(node, "price_estimation_confidence")

	if about := x.section(node, "about", gjson.JSON); about.IsObject() {
		d.Bedrooms = x.integer(about, "Bedrooms")
		d.Bathrooms = x.integer(about, "Bathrooms")
		d.CarSpots = x.integer(about, "Car")
		d.CouncilArea = x.text(about, "Council area")
		d.BlockCode = x.text(about, "Section/Block")
		d.YearBuilt = x.text(about, "Year built")
		d.BuildingSizeDesc = x.text(about, "Building area")
		d.LandSizeDesc = x.text(about, "Land size")
		d.LotPlan = x.text(about, "Lot/Plan")
		d.PropertyType = x.text(about, "Property type")
	}

	x.each(node, "schools", func(s gjson.Result) {
		d.NearbySchools = append(d.NearbySchools, model.School{
			Name:     x.text(s, "name"),
			Type:     x.text(s, "school_type"),
			Website:  x.text(s, "website"),
			Sector:   x.text(s, "sector"),
			Locality: x.text(s, "suburb"),
			State:    x.text(s, "state"),
			Street:   x.text(s, "street"),
			PostCode: x.text(s, "postcode"),
			Distance: x.text(s, "distance"),
		})
	})

	if comparables := x.section(node, "comparable_properties", gjson.JSON); comparables.IsObject() {
		x.each(comparables, "for_sale_properties", func(c gjson.Result) {
			d.ComparablesForSale = append(d.ComparablesForSale, x.comparable(c))
		})
		x.each(comparables, "for_rent_properties", func(c gjson.Result) {
			d.ComparablesForRent = append(d.ComparablesForRent, x.comparable(c))
		})
		x.each(comparables, "sold_properties", func(c gjson.Result) {
			d.ComparablesSold = append(d.ComparablesSold, x.comparable(c))
		})
	}

	x.each(node, "history", func(e gjson.Result) {
		d.History = append(d.History, model.Event{
			YearMonth: x.date(e, "date", YearMonthLayout),
			Type:      x.text(e, "rent_or_sold"),
			PriceDesc: x.text(e, "price"),
			Agency:    x.text(e, "agency"),
		})
	})

	if x.err != nil {
		return nil, x.err
	}
	return listing, nil
}

// extractor applies the field rules and keeps the first failure.
type extractor struct {
	err error
}

func (x *extractor) fail(field, value string, cause error) {
	if x.err == nil {
		x.err = exception.NewValidationError(field, clip(value), cause)
	}
}

// text returns nil for an absent, null, blank or "Unavailable" field and the trimmed text otherwise.
func (x *extractor) text(node gjson.Result, field string) *string {
	v := node.Get(escape(field))
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" || strings.EqualFold(s, unavailable) {
		return nil
	}
	return &s
}

func (x *extractor) integer(node gjson.Result, field string) *int {
	s := x.text(node, field)
	if s == nil {
		return nil
	}
	n, err := strconv.Atoi(*s)
	if err != nil {
		x.fail(field, *s, err)
		return nil
	}
	return &n
}

func (x *extractor) date(node gjson.Result, field, layout string) *time.Time {
	s := x.text(node, field)
	if s == nil {
		return nil
	}
	t, err := time.Parse(layout, *s)
	if err != nil {
		x.fail(field, *s, err)
		return nil
	}
	return &t
}

// section returns the named nested value. Absent and null sections yield an empty
// result; a section of another shape is a validation failure.
func (x *extractor) section(node gjson.Result, field string, want gjson.Type) gjson.Result {
	v := node.Get(escape(field))
	if !v.Exists() || v.Type == gjson.Null {
		return gjson.Result{}
	}
	if v.Type != want {
		x.fail(field, v.Raw, fmt.Errorf("unexpected section shape"))
		return gjson.Result{}
	}
	return v
}

// each calls fn for every element of the named array section.
func (x *extractor) each(node gjson.Result, field string, fn func(gjson.Result)) {
	v := x.section(node, field, gjson.JSON)
	if !v.Exists() {
		return
	}
	if !v.IsArray() {
		x.fail(field, v.Raw, fmt.Errorf("expected an array"))
		return
	}
	v.ForEach(func(_, elem gjson.Result) bool {
		fn(elem)
		return true
	})
}

func (x *extractor) comparable(c gjson.Result) model.PropertyDetails {
	p := model.PropertyDetails{
		SoldDate:   x.date(c, "sold_date", ComparableDateLayout),
		Bedrooms:   x.integer(c, "bedrooms"),
		Bathrooms:  x.integer(c, "bathrooms"),
		CarSpots:   x.integer(c, "garages"),
		PriceDesc:  x.text(c, "price"),
		Locality:   x.text(c, "suburb"),
		State:      x.text(c, "state"),
		PostCode:   x.text(c, "postcode"),
		Address:    x.text(c, "address"),
		SaleMethod: x.text(c, "authority_type"),
	}
	if avail := x.text(c, "date_available"); avail != nil {
		if strings.EqualFold(*avail, availableNow) {
			p.AvailableNow = true
		} else {
			p.AvailableForLeaseDate = x.date(c, "date_available", ComparableDateLayout)
		}
	}
	return p
}

// escape protects gjson path metacharacters in a literal field name.
func escape(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// clip shortens s for error text, cutting on a rune boundary.
func clip(s string) string {
	if len(s) <= maxValueInError {
		return s
	}
	cut := maxValueInError
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
