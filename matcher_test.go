package transitnotify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/transitwatch/transit-notify/gtfsrt"
	"github.com/transitwatch/transit-notify/store"
)

type fakeMatchStore struct {
	subs  []store.Subscription
	users []store.User
}

func (f *fakeMatchStore) ActiveSubscriptions(ctx context.Context) ([]store.Subscription, error) {
	return f.subs, nil
}

func (f *fakeMatchStore) UsersByFirebaseUID(ctx context.Context, uids []string) ([]store.User, error) {
	var out []store.User
	for _, u := range f.users {
		for _, uid := range uids {
			if u.FirebaseUID == uid {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

type fakeRouteDetailer struct {
	mappings map[string]*store.RouteMapping
}

func (f *fakeRouteDetailer) RouteDetails(ctx context.Context, routeID string) (*store.RouteMapping, error) {
	return f.mappings[routeID], nil
}

// Stop 100 sits at 51.05,-114.07; the test vehicle ~65m away.
var (
	testNow     = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC) // Monday 08:00 Edmonton
	nearVehicle = gtfsrt.VehiclePosition{ID: "bus-1", RouteID: "3", Latitude: 51.0505, Longitude: -114.0705}
	farVehicle  = gtfsrt.VehiclePosition{ID: "bus-2", RouteID: "3", Latitude: 51.10, Longitude: -114.20}
)

func testUser(uid string, tokens ...string) store.User {
	u := store.User{FirebaseUID: uid, NotificationsEnabled: true}
	for i, tok := range tokens {
		u.PushTokens = append(u.PushTokens, store.PushToken{Token: tok, DeviceID: string(rune('a' + i))})
	}
	return u
}

func testSubscription(uid, routeID, stopID string) store.Subscription {
	return store.Subscription{
		ID:      primitive.NewObjectID(),
		UserID:  uid,
		RouteID: routeID,
		StopID:  stopID,
		Active:  true,
	}
}

func newTestMatcher(st *fakeMatchStore, routes *fakeRouteDetailer, perDevice bool) *Matcher {
	return NewMatcher(st, routes, MatcherConfig{
		Location:              time.UTC,
		DefaultDistanceMeters: 1000,
		DefaultMinInterval:    5 * time.Minute,
		PerDevice:             perDevice,
		Concurrency:           2,
	})
}

func testRoutes() *fakeRouteDetailer {
	return &fakeRouteDetailer{mappings: map[string]*store.RouteMapping{"3": testMapping("3")}}
}

func TestMatcherQueuesOneMessagePerMatch(t *testing.T) {
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, updates, 1)

	assert.Equal(t, st.subs[0].ID, updates[0].SubscriptionID)
	assert.Equal(t, "bus-1", updates[0].VehicleID)
	assert.Equal(t, testNow, updates[0].NotifiedAt)

	msg := msgs[0]
	assert.Equal(t, "Your Transit is Approaching", msg.Title)
	assert.Contains(t, msg.Body, "Route 3")
	assert.Contains(t, msg.Body, "stop #100")
	assert.Equal(t, "proximity_alert", msg.Data["type"])
	assert.Equal(t, "3", msg.Data["routeId"])
	assert.Equal(t, "100", msg.Data["stopId"])
	assert.Equal(t, "bus-1", msg.Data["vehicleId"])
	assert.Equal(t, st.subs[0].ID.Hex(), msg.Data["subscriptionId"])
}

func TestMatcherThrottleSuppressesRepeat(t *testing.T) {
	recent := testNow.Add(-2 * time.Minute)
	sub := testSubscription("user-1", "3", "100")
	sub.LastNotifiedAt = &recent
	st := &fakeMatchStore{
		subs:  []store.Subscription{sub},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)

	// Outside the throttle interval the same position matches again.
	old := testNow.Add(-10 * time.Minute)
	st.subs[0].LastNotifiedAt = &old
	msgs, updates, err = m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Len(t, updates, 1)
}

func TestMatcherRespectsUserThrottleSetting(t *testing.T) {
	last := testNow.Add(-7 * time.Minute)
	sub := testSubscription("user-1", "3", "100")
	sub.LastNotifiedAt = &last
	user := testUser("user-1", "ExponentPushToken[abc]")
	user.NotificationSettings.MinIntervalMinutes = 15
	st := &fakeMatchStore{subs: []store.Subscription{sub}, users: []store.User{user}}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, _, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs, "7 minutes is inside the user's 15 minute interval")
}

func TestMatcherDistanceThreshold(t *testing.T) {
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{farVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}

func TestMatcherSkipsUnknownStop(t *testing.T) {
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "999")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}

func TestMatcherSkipsUserWithoutTokens(t *testing.T) {
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}

func TestMatcherSkipsDisabledUser(t *testing.T) {
	// The store never returns users with notifications disabled; a
	// subscription whose user is absent must not match.
	st := &fakeMatchStore{
		subs: []store.Subscription{testSubscription("user-1", "3", "100")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}

func TestMatcherTimeWindowExcludes(t *testing.T) {
	sub := testSubscription("user-1", "3", "100")
	sub.TimeWindows = []store.TimeWindow{{Weekdays: []int{0, 6}, Start: "07:00", End: "09:00"}}
	st := &fakeMatchStore{
		subs:  []store.Subscription{sub},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	// testNow is a Monday.
	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}

func TestMatcherTokenFanOut(t *testing.T) {
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]", "fcm-raw-token")},
	}

	perDevice := newTestMatcher(st, testRoutes(), true)
	msgs, _, err := perDevice.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "per-device fan-out covers every token")

	perUser := newTestMatcher(st, testRoutes(), false)
	msgs, _, err = perUser.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle}, testNow)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "per-user fan-out sends to the first token only")
}

func TestMatcherDeduplicatesAcrossVehicles(t *testing.T) {
	second := nearVehicle
	second.ID = "bus-9"
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{nearVehicle, second}, testNow)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "one message per subscription per tick")
	assert.Len(t, updates, 1)
}

func TestMatcherIgnoresUnsubscribedRoutes(t *testing.T) {
	otherRoute := gtfsrt.VehiclePosition{ID: "bus-5", RouteID: "17", Latitude: 51.0505, Longitude: -114.0705}
	st := &fakeMatchStore{
		subs:  []store.Subscription{testSubscription("user-1", "3", "100")},
		users: []store.User{testUser("user-1", "ExponentPushToken[abc]")},
	}
	m := newTestMatcher(st, testRoutes(), true)

	msgs, updates, err := m.Match(context.Background(), []gtfsrt.VehiclePosition{otherRoute}, testNow)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Empty(t, updates)
}
