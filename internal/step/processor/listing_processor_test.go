package processor_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/iconium/internal/domain/model"
	"github.com/tigerroll/iconium/internal/step/processor"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
)

const fullRecord = `{
  "_type": "RealEstateSoldHistoryItem",
  "url": " https://example.com/property/1 ",
  "crawl_date": "2017-06-01",
  "crawl_datetime": "2017-06-01 10:11:12",
  "input_address": "1 Main St, Sydney NSW 2000",
  "_cached_page_id": "abc",
  "addr_id": "GANSW704180186",
  "price_estimation_from": "900000",
  "price_estimation_to": "1100000",
  "price_estimation_confidence": "High",
  "about": {
    "Bedrooms": "3",
    "Bathrooms": 2,
    "Car": "Unavailable",
    "Council area": "City of Sydney",
    "Section/Block": "",
    "Year built": "1920",
    "Building area": "120 m2",
    "Land size": "300 m2",
    "Lot/Plan": "1/DP1234",
    "Property type": "House"
  },
  "schools": [
    {"name": "Sydney Public", "school_type": "Primary", "sector": "Government", "website": "http://sps",
     "suburb": "Sydney", "state": "NSW", "street": "George St", "postcode": "2000", "distance": "0.4 km"}
  ],
  "comparable_properties": {
    "for_sale_properties": [{"address": "3 Main St", "suburb": "Sydney", "state": "NSW", "postcode": "2000", "bedrooms": "2", "price": "$800k"}],
    "for_rent_properties": [
      {"address": "5 Main St", "suburb": "Sydney", "state": "NSW", "date_available": "AVAILABLE NOW"},
      {"address": "7 Main St", "suburb": "Sydney", "state": "NSW", "date_available": "05 Mar 2017"}
    ],
    "sold_properties": [{"address": "9 Main St", "sold_date": "12 Feb 2017", "authority_type": "Auction", "garages": "1"}]
  },
  "history": [
    {"date": "Mar 2015", "rent_or_sold": "sold", "price": "$750,000", "agency": "Agent Co"},
    {"date": "Unavailable", "rent_or_sold": "rent", "price": null}
  ]
}`

func process(t *testing.T, record string) (*model.Listing, error) {
	t.Helper()
	return processor.NewListingProcessor().Process(context.Background(), json.RawMessage(record))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProcess_FullRecord(t *testing.T) {
	l, err := process(t, fullRecord)
	require.NoError(t, err)
	require.NotNil(t, l)

	assert.Equal(t, model.ListingType, l.Type)
	assert.Equal(t, "https://example.com/property/1", *l.URL)
	assert.Equal(t, date(2017, time.June, 1), *l.CrawlDate)
	assert.Equal(t, time.Date(2017, time.June, 1, 10, 11, 12, 0, time.UTC), *l.CrawlDateTime)
	assert.Equal(t, "abc", *l.CachedPageID)
	assert.Equal(t, "GANSW704180186", *l.AddressPID)

	assert.Equal(t, 3, *l.Bedrooms)
	assert.Equal(t, 2, *l.Bathrooms)
	assert.Nil(t, l.CarSpots, "Unavailable is treated as absent")
	assert.Nil(t, l.BlockCode, "blank is treated as absent")
	assert.Equal(t, "1920", *l.YearBuilt)
	assert.Equal(t, "1/DP1234", *l.LotPlan)
	assert.Equal(t, "House", *l.PropertyType)

	require.Len(t, l.NearbySchools, 1)
	s := l.NearbySchools[0]
	assert.Equal(t, "Sydney Public", *s.Name)
	assert.Equal(t, "Primary", *s.Type)
	assert.Equal(t, "Government", *s.Sector)
	assert.Equal(t, "George St", *s.Street)
	assert.Equal(t, "0.4 km", *s.Distance)

	require.Len(t, l.ComparablesForSale, 1)
	assert.Equal(t, "3 Main St", *l.ComparablesForSale[0].Address)
	assert.Equal(t, 2, *l.ComparablesForSale[0].Bedrooms)
	require.Len(t, l.ComparablesSold, 1)
	assert.Equal(t, date(2017, time.February, 12), *l.ComparablesSold[0].SoldDate)
	assert.Equal(t, "Auction", *l.ComparablesSold[0].SaleMethod)
	assert.Equal(t, 1, *l.ComparablesSold[0].CarSpots)

	require.Len(t, l.History, 2)
	assert.Equal(t, date(2015, time.March, 1), *l.History[0].YearMonth)
	assert.Equal(t, "sold", *l.History[0].Type)
	assert.Equal(t, "Agent Co", *l.History[0].Agency)
	assert.Nil(t, l.History[1].YearMonth)
	assert.Nil(t, l.History[1].PriceDesc)
}

// The feed's price_estimation_from/to are assigned crosswise, as the source system does.
// Whether the feed or the mapping is reversed has not been confirmed.
func TestProcess_PriceEstimateFieldsAreSwapped(t *testing.T) {
	l, err := process(t, fullRecord)
	require.NoError(t, err)
	assert.Equal(t, 1100000, *l.PriceEstimateFrom)
	assert.Equal(t, 900000, *l.PriceEstimateTo)
}

func TestProcess_AvailableNow(t *testing.T) {
	l, err := process(t, fullRecord)
	require.NoError(t, err)
	require.Len(t, l.ComparablesForRent, 2)

	now := l.ComparablesForRent[0]
	assert.True(t, now.AvailableNow)
	assert.Nil(t, now.AvailableForLeaseDate)

	dated := l.ComparablesForRent[1]
	assert.False(t, dated.AvailableNow)
	require.NotNil(t, dated.AvailableForLeaseDate)
	assert.Equal(t, date(2017, time.March, 5), *dated.AvailableForLeaseDate)

	crawl := date(2017, time.June, 1)
	assert.Equal(t, &crawl, now.EffectiveLeaseDate(&crawl))
	assert.Equal(t, dated.AvailableForLeaseDate, dated.EffectiveLeaseDate(&crawl))
}

func TestProcess_Filtered(t *testing.T) {
	for name, record := range map[string]string{
		"missing type": `{"url": "x"}`,
		"other type":   `{"_type": "RealEstateForSaleItem"}`,
		"null type":    `{"_type": null}`,
	} {
		t.Run(name, func(t *testing.T) {
			l, err := process(t, record)
			assert.NoError(t, err)
			assert.Nil(t, l)
		})
	}
}

func TestProcess_MissingSectionsYieldEmptyCollections(t *testing.T) {
	l, err := process(t, `{"_type": "RealEstateSoldHistoryItem", "about": null, "schools": null,
		"comparable_properties": {"for_sale_properties": null}}`)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Empty(t, l.NearbySchools)
	assert.Empty(t, l.ComparablesForSale)
	assert.Empty(t, l.ComparablesForRent)
	assert.Empty(t, l.ComparablesSold)
	assert.Empty(t, l.History)
	assert.Nil(t, l.Bedrooms)
}

func TestProcess_ValidationErrors(t *testing.T) {
	for name, record := range map[string]string{
		"not an object":  `[1, 2]`,
		"bad integer":    `{"_type": "RealEstateSoldHistoryItem", "about": {"Bedrooms": "three"}}`,
		"bad date":       `{"_type": "RealEstateSoldHistoryItem", "crawl_date": "01/06/2017"}`,
		"bad lease date": `{"_type": "RealEstateSoldHistoryItem", "comparable_properties": {"for_rent_properties": [{"date_available": "soon"}]}}`,
		"bad section":    `{"_type": "RealEstateSoldHistoryItem", "schools": "none"}`,
	} {
		t.Run(name, func(t *testing.T) {
			l, err := process(t, record)
			require.Error(t, err)
			assert.Nil(t, l)
			assert.True(t, errors.Is(err, exception.ErrValidation))
			assert.True(t, exception.IsSkippable(err))
		})
	}
}

func TestProcess_ComparableDateAcceptsOneDigitDay(t *testing.T) {
	for value, want := range map[string]time.Time{
		"5 Mar 2017":  date(2017, time.March, 5),
		"05 Mar 2017": date(2017, time.March, 5),
		"12 Feb 2017": date(2017, time.February, 12),
	} {
		record := `{"_type": "RealEstateSoldHistoryItem", "comparable_properties": {"sold_properties": [{"sold_date": "` + value + `"}]}}`
		l, err := process(t, record)
		require.NoError(t, err, value)
		require.Len(t, l.ComparablesSold, 1)
		assert.Equal(t, want, *l.ComparablesSold[0].SoldDate, value)
	}
}

func TestProcess_LongInvalidValueIsClippedOnRuneBoundary(t *testing.T) {
	value := "x" + strings.Repeat("é", 60)
	_, err := process(t, `{"_type": "RealEstateSoldHistoryItem", "about": {"Bedrooms": "`+value+`"}}`)
	require.Error(t, err)
	assert.True(t, utf8.ValidString(err.Error()))
	assert.NotContains(t, err.Error(), `\x`)
	assert.Contains(t, err.Error(), "...")
}
