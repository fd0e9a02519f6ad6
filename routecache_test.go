package transitnotify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitwatch/transit-notify/store"
)

func testMapping(routeID string) *store.RouteMapping {
	return &store.RouteMapping{
		RouteID:  routeID,
		LongName: "Somewhere via Downtown",
		TripIDs:  []string{routeID + "-trip-1", routeID + "-trip-2"},
		Stops: []store.StopRef{
			{StopID: "100", Name: "First St", Lat: 51.05, Lon: -114.07, Sequence: 1},
			{StopID: "200", Name: "Second St", Lat: 51.06, Lon: -114.08, Sequence: 2},
		},
	}
}

func TestRouteCacheRoundTrip(t *testing.T) {
	c := NewRouteCache(time.Hour)

	assert.Nil(t, c.GetRouteDetails("3"))

	want := testMapping("3")
	c.SetRouteDetails("3", want)

	got := c.GetRouteDetails("3")
	require.NotNil(t, got)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, c.Len())
}

func TestRouteCacheTTLExpiry(t *testing.T) {
	c := NewRouteCache(time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.SetRouteDetails("3", testMapping("3"))
	require.NotNil(t, c.GetRouteDetails("3"))

	c.now = func() time.Time { return base.Add(time.Hour + time.Minute) }
	assert.Nil(t, c.GetRouteDetails("3"), "entry past TTL must read as a miss")

	// Expired route entries also invalidate the trip index.
	_, ok := c.GetRouteForTrip("3-trip-1")
	assert.False(t, ok)
}

func TestRouteCacheTripIndex(t *testing.T) {
	c := NewRouteCache(time.Hour)
	c.SetRouteDetails("3", testMapping("3"))

	routeID, ok := c.GetRouteForTrip("3-trip-2")
	require.True(t, ok)
	assert.Equal(t, "3", routeID)

	_, ok = c.GetRouteForTrip("unknown-trip")
	assert.False(t, ok)
}

func TestRouteCacheLightEntries(t *testing.T) {
	c := NewRouteCache(time.Hour)
	c.SetTripRoutes("7", []string{"7-trip-1"})

	// The trip resolves but no stop geometry is available yet.
	routeID, ok := c.GetRouteForTrip("7-trip-1")
	require.True(t, ok)
	assert.Equal(t, "7", routeID)
	assert.Nil(t, c.GetRouteDetails("7"))

	// Full details overwrite the placeholder.
	c.SetRouteDetails("7", testMapping("7"))
	require.NotNil(t, c.GetRouteDetails("7"))
}

func TestRouteCacheClear(t *testing.T) {
	c := NewRouteCache(time.Hour)
	c.SetRouteDetails("3", testMapping("3"))
	c.SetRouteDetails("4", testMapping("4"))
	require.Equal(t, 2, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.GetRouteDetails("3"))
	_, ok := c.GetRouteForTrip("3-trip-1")
	assert.False(t, ok)
}
