package transitnotify

import (
	"context"
	"fmt"

	"github.com/transitwatch/transit-notify/internal/metrics"
	"github.com/transitwatch/transit-notify/store"
)

// ReferenceStore is the slice of the document store the resolver needs.
type ReferenceStore interface {
	RouteDetails(ctx context.Context, routeID string) (*store.RouteMapping, error)
	RoutesForTrips(ctx context.Context, tripIDs []string) (map[string][]string, error)
}

// RouteResolver answers route questions cache-first, falling back to the
// store and caching what it learns.
type RouteResolver struct {
	cache   *RouteCache
	store   ReferenceStore
	metrics *metrics.Collector
}

func NewRouteResolver(cache *RouteCache, st ReferenceStore, m *metrics.Collector) *RouteResolver {
	return &RouteResolver{cache: cache, store: st, metrics: m}
}

// RouteDetails returns the full mapping for routeID, or nil when the route
// is unknown to the store. Unknown is not an error.
func (r *RouteResolver) RouteDetails(ctx context.Context, routeID string) (*store.RouteMapping, error) {
	if m := r.cache.GetRouteDetails(routeID); m != nil {
		r.metrics.IncRouteCacheHit()
		return m, nil
	}
	r.metrics.IncRouteCacheMiss()

	m, err := r.store.RouteDetails(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("route details for %s: %w", routeID, err)
	}
	if m != nil {
		r.cache.SetRouteDetails(routeID, m)
	}
	return m, nil
}

// RouteForTrip resolves a trip to its route, or ("", nil) when the trip is
// unknown. A store hit caches the mapping for every sibling trip returned.
func (r *RouteResolver) RouteForTrip(ctx context.Context, tripID string) (string, error) {
	if routeID, ok := r.cache.GetRouteForTrip(tripID); ok {
		r.metrics.IncRouteCacheHit()
		return routeID, nil
	}
	r.metrics.IncRouteCacheMiss()

	byRoute, err := r.store.RoutesForTrips(ctx, []string{tripID})
	if err != nil {
		return "", fmt.Errorf("route for trip %s: %w", tripID, err)
	}
	for routeID, tripIDs := range byRoute {
		r.cache.SetTripRoutes(routeID, tripIDs)
		return routeID, nil
	}
	return "", nil
}

// ClearCache drops every cached route and trip mapping.
func (r *RouteResolver) ClearCache() {
	r.cache.Clear()
}
