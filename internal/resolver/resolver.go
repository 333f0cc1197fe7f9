// Package resolver persists a listing's property graph, reusing existing rows that
// share a natural key.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/tigerroll/iconium/internal/cache"
	"github.com/tigerroll/iconium/internal/domain/entity"
	"github.com/tigerroll/iconium/internal/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/tx"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const dateKeyLayout = "2006-01-02"

// EntityResolver finds or creates the rows of a listing inside the caller's
// transaction. Lookups go through a LookupCache that must be cleared whenever that
// transaction is rolled back.
type EntityResolver struct {
	addresses  AddressAuthority
	properties PropertyStore
	schools    SchoolStore
	cache      *cache.LookupCache
	authority  tx.TxExecutor
}

// NewEntityResolver creates an EntityResolver. authority runs the address authority
// queries; when nil they run inside the caller's transaction.
func NewEntityResolver(addresses AddressAuthority, properties PropertyStore, schools SchoolStore, lookups *cache.LookupCache, authority tx.TxExecutor) *EntityResolver {
	return &EntityResolver{
		addresses:  addresses,
		properties: properties,
		schools:    schools,
		cache:      lookups,
		authority:  authority,
	}
}

// Resolve writes listing through t and returns the id of its property. The listing
// is not modified, so a retry after a rollback starts from the record as read.
// Failures are ResolutionErrors; duplicate associations are logged and ignored.
func (r *EntityResolver) Resolve(ctx context.Context, t tx.Tx, listing *model.Listing) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if listing.CrawlDate == nil {
		return 0, exception.NewResolutionError("listing has no crawl date", nil)
	}
	asAt := *listing.CrawlDate
	p := listing.PropertyDetails

	if p.AddressPID == nil {
		pid, err := r.addressPID(ctx, t, &p)
		if err != nil {
			return 0, err
		}
		p.AddressPID = pid
	}

	id, err := r.propertyID(ctx, t, &p, asAt)
	if err != nil {
		return 0, err
	}
	row := entity.NewPropertyRow(&p, asAt)
	if id != nil {
		if err := r.properties.Update(ctx, t, *id, row); err != nil {
			return 0, resolution("property update failed", err)
		}
	} else {
		newID, err := r.properties.Insert(ctx, t, row)
		if err != nil {
			return 0, resolution("property insert failed", err)
		}
		id = &newID
	}

	for _, group := range []struct {
		comparison string
		properties []model.PropertyDetails
	}{
		{model.ComparisonForSale, p.ComparablesForSale},
		{model.ComparisonForRent, p.ComparablesForRent},
		{model.ComparisonSold, p.ComparablesSold},
	} {
		for _, c := range group.properties {
			if err := r.resolveComparable(ctx, t, *id, c, group.comparison, asAt); err != nil {
				return 0, err
			}
		}
	}

	for i := range p.NearbySchools {
		if err := r.resolveSchool(ctx, t, *id, &p.NearbySchools[i]); err != nil {
			return 0, err
		}
	}

	for _, event := range p.History {
		if err := r.addEvent(ctx, t, *id, event); err != nil {
			return 0, err
		}
	}

	err = r.properties.AddDataAcquisition(ctx, t, &entity.DataAcquisitionRow{
		AddressPID: p.AddressPID,
		URL:        listing.URL,
		AcquiredOn: asAt,
		PropertyID: *id,
	})
	if err := tolerateDuplicate(err); err != nil {
		return 0, resolution("data acquisition insert failed", err)
	}

	logger.Debugf("Listing resolved to property %d (addressPID %s).", *id, str(p.AddressPID))
	return *id, nil
}

// resolveComparable finds or inserts a comparable property and links it to the
// listing's property. c is a copy owned by this call. Existing comparable rows are
// not updated.
func (r *EntityResolver) resolveComparable(ctx context.Context, t tx.Tx, propertyID int64, c model.PropertyDetails, comparison string, asAt time.Time) error {
	pid, err := r.addressPID(ctx, t, &c)
	if err != nil {
		return err
	}
	c.AddressPID = pid

	id, err := r.propertyID(ctx, t, &c, asAt)
	if err != nil {
		return err
	}
	if id == nil {
		newID, err := r.properties.Insert(ctx, t, entity.NewPropertyRow(&c, asAt))
		if err != nil {
			return resolution("comparable property insert failed", err)
		}
		id = &newID
	}

	err = r.properties.AddComparable(ctx, t, &entity.ComparablePropertyRow{
		PropertyID:     propertyID,
		ComparableID:   *id,
		ComparisonType: comparison,
		ComparedOn:     asAt,
	})
	if err := tolerateDuplicate(err); err != nil {
		return resolution("comparable property link failed", err)
	}
	return nil
}

func (r *EntityResolver) resolveSchool(ctx context.Context, t tx.Tx, propertyID int64, s *model.School) error {
	if s.Name == nil {
		logger.Warnf("Property %d: school without a name ignored.", propertyID)
		return nil
	}

	key := cache.NewKey(cache.KindSchoolID, s.Name, s.Type, s.Sector)
	var id int64
	if entry, ok := r.cache.Get(key); ok && entry.Found {
		id = entry.Value.(int64)
	} else {
		found, err := r.schools.FindID(ctx, t, s.Name, s.Type, s.Sector)
		if err != nil {
			return resolution("school lookup failed", err)
		}
		if found != nil {
			id = *found
		} else {
			street, err := r.streetLocalityPID(ctx, t, s)
			if err != nil {
				return err
			}
			id, err = r.schools.Insert(ctx, t, &entity.SchoolRow{
				Name:              s.Name,
				Type:              s.Type,
				Sector:            s.Sector,
				Website:           s.Website,
				StreetLocalityPID: street,
			})
			if err != nil {
				return resolution("school insert failed", err)
			}
		}
		r.cache.Put(key, cache.Entry{Value: id, Found: true})
	}

	err := r.schools.AddNearProperty(ctx, t, &entity.SchoolNearPropertyRow{
		PropertyID:   propertyID,
		SchoolID:     id,
		DistanceDesc: s.Distance,
	})
	if err := tolerateDuplicate(err); err != nil {
		return resolution("school distance insert failed", err)
	}
	return nil
}

func (r *EntityResolver) addEvent(ctx context.Context, t tx.Tx, propertyID int64, e model.Event) error {
	if e.YearMonth == nil || e.Type == nil {
		logger.Warnf("Property %d: history event without date or type ignored.", propertyID)
		return nil
	}
	err := r.properties.AddEvent(ctx, t, &entity.EventRow{
		PropertyID: propertyID,
		Year:       e.YearMonth.Year(),
		Month:      int(e.YearMonth.Month()),
		Type:       NormalizeEventType(*e.Type),
		PriceDesc:  e.PriceDesc,
	})
	if err := tolerateDuplicate(err); err != nil {
		return resolution("history event insert failed", err)
	}
	return nil
}

// addressPID looks up the authority identifier of p's address. Misses are cached too.
func (r *EntityResolver) addressPID(ctx context.Context, t tx.Tx, p *model.PropertyDetails) (*string, error) {
	key := cache.NewKey(cache.KindAddressPID, p.Address, p.State, p.PostCode, p.Locality)
	return r.cachedPID(key, func() (*string, error) {
		pid, err := r.addresses.FindAddressDetailPID(ctx, r.authorityExecutor(t), p.Address, p.State, p.PostCode, p.Locality)
		if err != nil {
			return nil, resolution("address lookup failed", err)
		}
		return pid, nil
	})
}

func (r *EntityResolver) streetLocalityPID(ctx context.Context, t tx.Tx, s *model.School) (*string, error) {
	key := cache.NewKey(cache.KindStreetLocalityPID, s.Street, s.State, s.PostCode, s.Locality)
	return r.cachedPID(key, func() (*string, error) {
		pid, err := r.addresses.FindStreetLocalityPID(ctx, r.authorityExecutor(t), s.Street, s.State, s.PostCode, s.Locality)
		if err != nil {
			return nil, resolution("street locality lookup failed", err)
		}
		return pid, nil
	})
}

func (r *EntityResolver) cachedPID(key cache.Key, lookup func() (*string, error)) (*string, error) {
	if entry, ok := r.cache.Get(key); ok {
		if !entry.Found {
			return nil, nil
		}
		pid := entry.Value.(string)
		return &pid, nil
	}
	pid, err := lookup()
	if err != nil {
		return nil, err
	}
	if pid == nil {
		r.cache.Put(key, cache.Entry{})
	} else {
		r.cache.Put(key, cache.Entry{Value: *pid, Found: true})
	}
	return pid, nil
}

// propertyID finds the property recorded for p on asAt, by AddressPID when known and
// by denormalized address otherwise. Only hits are cached.
func (r *EntityResolver) propertyID(ctx context.Context, t tx.Tx, p *model.PropertyDetails, asAt time.Time) (*int64, error) {
	date := asAt.Format(dateKeyLayout)
	var key cache.Key
	var lookup func() (*int64, error)
	if p.AddressPID != nil {
		key = cache.NewKey(cache.KindPropertyIDByPID, p.AddressPID, &date)
		lookup = func() (*int64, error) {
			return r.properties.FindIDByAddressPID(ctx, t, *p.AddressPID, asAt)
		}
	} else {
		key = cache.NewKey(cache.KindPropertyIDByAddress, p.Address, p.State, p.PostCode, p.Locality, &date)
		lookup = func() (*int64, error) {
			return r.properties.FindIDByAddress(ctx, t, p.Address, p.State, p.PostCode, p.Locality, asAt)
		}
	}

	if entry, ok := r.cache.Get(key); ok && entry.Found {
		id := entry.Value.(int64)
		return &id, nil
	}
	id, err := lookup()
	if err != nil {
		return nil, resolution("property lookup failed", err)
	}
	if id != nil {
		r.cache.Put(key, cache.Entry{Value: *id, Found: true})
	}
	return id, nil
}

func (r *EntityResolver) authorityExecutor(t tx.Tx) tx.TxExecutor {
	if r.authority != nil {
		return r.authority
	}
	return t
}

// NormalizeEventType maps source event types onto "rented" and "sold". Unknown types
// are kept as they are.
func NormalizeEventType(eventType string) string {
	switch eventType {
	case "rent", "rentalCampaign":
		return "rented"
	case "sold":
		return "sold"
	default:
		logger.Warnf("Unexpected event type [%s], keeping it unconverted.", eventType)
		return eventType
	}
}

// tolerateDuplicate swallows a duplicate key error after logging it.
func tolerateDuplicate(err error) error {
	if errors.Is(err, exception.ErrDuplicateKey) {
		logger.Warnf("%s", exception.ExtractErrorMessage(err))
		return nil
	}
	return err
}

func resolution(message string, err error) error {
	if errors.Is(err, exception.ErrResolution) {
		return err
	}
	return exception.NewResolutionError(message, err)
}

func str(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
