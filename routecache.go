package transitnotify

import (
	"sync"
	"time"

	"github.com/transitwatch/transit-notify/store"
)

// DefaultRouteTTL is how long a cached route mapping stays valid. Routes
// rarely change, so entries expire lazily on read; there is no background
// sweep.
const DefaultRouteTTL = 24 * time.Hour

type routeEntry struct {
	mapping  *store.RouteMapping
	storedAt time.Time
	light    bool // trip index only, no stop geometry
}

// RouteCache holds route mappings and a trip-to-route index with a TTL.
// Reads come from the polling goroutine and the HTTP layer; Clear comes
// from the admin endpoint, hence the lock.
type RouteCache struct {
	mu     sync.RWMutex
	ttl    time.Duration
	routes map[string]routeEntry
	trips  map[string]string // trip_id -> route_id
	now    func() time.Time
}

func NewRouteCache(ttl time.Duration) *RouteCache {
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &RouteCache{
		ttl:    ttl,
		routes: map[string]routeEntry{},
		trips:  map[string]string{},
		now:    time.Now,
	}
}

// GetRouteDetails returns the cached mapping for routeID, or nil on a miss
// or an expired entry.
func (c *RouteCache) GetRouteDetails(routeID string) *store.RouteMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.routes[routeID]
	if !ok || e.light || c.now().Sub(e.storedAt) > c.ttl {
		return nil
	}
	return e.mapping
}

// SetRouteDetails stores a mapping and indexes every trip on the route.
func (c *RouteCache) SetRouteDetails(routeID string, mapping *store.RouteMapping) {
	if mapping == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[routeID] = routeEntry{mapping: mapping, storedAt: c.now()}
	for _, tripID := range mapping.TripIDs {
		c.trips[tripID] = routeID
	}
}

// GetRouteForTrip resolves a trip through the trip index. The route's own
// entry must still be live for the answer to count: a stale route also
// invalidates its trip mappings.
func (c *RouteCache) GetRouteForTrip(tripID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	routeID, ok := c.trips[tripID]
	if !ok {
		return "", false
	}
	e, ok := c.routes[routeID]
	if !ok || c.now().Sub(e.storedAt) > c.ttl {
		return "", false
	}
	return routeID, true
}

// SetTripRoutes records trip -> route mappings that arrived without full
// route details (the lightweight lookup path).
func (c *RouteCache) SetTripRoutes(routeID string, tripIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.routes[routeID]; !ok {
		// Anchor the trips to a light entry so the TTL applies to them too.
		c.routes[routeID] = routeEntry{
			mapping:  &store.RouteMapping{RouteID: routeID, TripIDs: tripIDs},
			storedAt: c.now(),
			light:    true,
		}
	}
	for _, tripID := range tripIDs {
		c.trips[tripID] = routeID
	}
}

// Clear drops all entries unconditionally. Administrative invalidation
// after reference data reloads.
func (c *RouteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes = map[string]routeEntry{}
	c.trips = map[string]string{}
}

// Len reports the number of cached routes, expired or not.
func (c *RouteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}
