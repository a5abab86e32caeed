package concierge

import (
	"context"
	"strings"
	"sync"
)

// Listing is one property in the catalog.
type Listing struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Zone      string  `json:"zone"`
	Price     float64 `json:"price"`
	Bedrooms  int     `json:"bedrooms"`
	Available bool    `json:"available"`
}

// Query filters the catalog. Zero values mean "any".
type Query struct {
	Zone        string  `json:"zone,omitempty"`
	MaxPrice    float64 `json:"max_price,omitempty"`
	MinBedrooms int     `json:"min_bedrooms,omitempty"`
}

// Catalog is the listing lookup boundary consumed by the search agent.
type Catalog interface {
	Search(ctx context.Context, q Query) ([]Listing, error)
}

// InMemoryCatalog is a volatile Catalog for tests and demos. Safe for
// concurrent access.
type InMemoryCatalog struct {
	mu       sync.RWMutex
	listings []Listing
}

// NewInMemoryCatalog constructs a catalog seeded with the given listings.
func NewInMemoryCatalog(listings ...Listing) *InMemoryCatalog {
	return &InMemoryCatalog{listings: listings}
}

// Add appends a listing.
func (c *InMemoryCatalog) Add(l Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = append(c.listings, l)
}

// Search implements Catalog. Matching is case-insensitive on zone.
func (c *InMemoryCatalog) Search(_ context.Context, q Query) ([]Listing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Listing
	for _, l := range c.listings {
		if !l.Available {
			continue
		}
		if q.Zone != "" && !strings.EqualFold(l.Zone, q.Zone) {
			continue
		}
		if q.MaxPrice > 0 && l.Price > q.MaxPrice {
			continue
		}
		if q.MinBedrooms > 0 && l.Bedrooms < q.MinBedrooms {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

var _ Catalog = (*InMemoryCatalog)(nil)
