package geocode

import (
	"context"
	"sync"

	"github.com/golang/geo/s2"
)

// cacheLevel is the s2 cell level used as cache key; level 20 cells are
// roughly 10m across, which is finer than street-address granularity.
const cacheLevel = 20

// CachedResolver memoizes successful lookups per s2 cell.
type CachedResolver struct {
	next       Resolver
	maxEntries int

	mu      sync.Mutex
	entries map[s2.CellID][]Place
}

func NewCachedResolver(next Resolver, maxEntries int) *CachedResolver {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &CachedResolver{
		next:       next,
		maxEntries: maxEntries,
		entries:    make(map[s2.CellID][]Place),
	}
}

func cellKey(lat, lng float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(cacheLevel)
}

func (c *CachedResolver) Reverse(ctx context.Context, lat, lng float64) ([]Place, error) {
	key := cellKey(lat, lng)

	c.mu.Lock()
	if places, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return places, nil
	}
	c.mu.Unlock()

	places, err := c.next.Reverse(ctx, lat, lng)
	if err != nil || len(places) == 0 {
		return places, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[s2.CellID][]Place)
	}
	c.entries[key] = places
	c.mu.Unlock()
	return places, nil
}

// Len returns the number of cached cells.
func (c *CachedResolver) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
