// Package cache provides the process-wide lookup cache used during entity resolution.
// Entries computed inside a chunk transaction are only trustworthy while that
// transaction can still commit, so the cache is cleared whenever a chunk rolls back.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

// Kind separates the lookups sharing the cache.
type Kind string

const (
	KindAddressPID          Kind = "gnaf_address_pid"
	KindStreetLocalityPID   Kind = "gnaf_street_locality_pid"
	KindSchoolID            Kind = "school_id"
	KindPropertyIDByPID     Kind = "property_id_by_pid"
	KindPropertyIDByAddress Kind = "property_id_by_address"
	maxKeyFields                 = 5
)

// Field is one nullable component of a key.
type Field struct {
	Value string
	Valid bool
}

// Key is a composite lookup key. Fields are compared positionally, so a nil
// component never collides with an empty string.
type Key struct {
	Kind   Kind
	Fields [maxKeyFields]Field
	n      int
}

// NewKey builds a key from at most five nullable fields.
func NewKey(kind Kind, fields ...*string) Key {
	if len(fields) > maxKeyFields {
		panic(fmt.Sprintf("cache key %s: %d fields exceed the maximum of %d", kind, len(fields), maxKeyFields))
	}
	k := Key{Kind: kind, n: len(fields)}
	for i, f := range fields {
		if f != nil {
			k.Fields[i] = Field{Value: *f, Valid: true}
		}
	}
	return k
}

// Entry is a cached lookup result. Found is false for a cached absence.
type Entry struct {
	Value interface{}
	Found bool
}

// LookupCache is a bounded LRU cache of lookup results. It is safe for concurrent use.
type LookupCache struct {
	entries *lru.Cache
}

// New creates a cache holding at most size entries.
func New(size int) (*LookupCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("lookup cache size must be positive, got %d", size)
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lookup cache: %w", err)
	}
	return &LookupCache{entries: c}, nil
}

// Get returns the cached entry for key.
func (c *LookupCache) Get(key Key) (Entry, bool) {
	v, ok := c.entries.Get(key)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Put stores entry under key, evicting the least recently used entry when full.
func (c *LookupCache) Put(key Key, entry Entry) {
	c.entries.Add(key, entry)
}

// Clear drops every entry.
func (c *LookupCache) Clear() {
	n := c.entries.Len()
	c.entries.Purge()
	logger.Debugf("Lookup cache cleared (%d entries dropped).", n)
}

// Len returns the number of cached entries.
func (c *LookupCache) Len() int {
	return c.entries.Len()
}
