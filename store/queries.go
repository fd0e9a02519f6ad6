package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ActiveSubscriptions returns every subscription with active = true.
// Always read fresh: throttling correctness depends on current
// lastNotifiedAt values.
func (s *Store) ActiveSubscriptions(ctx context.Context) ([]Subscription, error) {
	cur, err := s.subscriptions().Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, fmt.Errorf("find active subscriptions: %w", err)
	}
	var subs []Subscription
	if err := cur.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return subs, nil
}

// UsersByFirebaseUID returns the users in uids that have notifications
// enabled. Users with notifications disabled are intentionally absent from
// the result so the matcher skips their subscriptions.
func (s *Store) UsersByFirebaseUID(ctx context.Context, uids []string) ([]User, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	cur, err := s.users().Find(ctx, bson.M{
		"firebaseUid":          bson.M{"$in": uids},
		"notificationsEnabled": true,
	})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// RouteDetails assembles the RouteMapping for routeID: the route document,
// the trips belonging to it, and the ordered stop list taken from the first
// trip's stop orders. Returns (nil, nil) when the route is unknown.
func (s *Store) RouteDetails(ctx context.Context, routeID string) (*RouteMapping, error) {
	var route Route
	err := s.routes().FindOne(ctx, bson.M{"route_short_name": routeID}).Decode(&route)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find route %s: %w", routeID, err)
	}

	mapping := &RouteMapping{
		RouteID:  routeID,
		LongName: route.LongName,
		Shape:    route.Shape.Coordinates,
	}

	cur, err := s.trips().Find(ctx, bson.M{"route_id": routeID})
	if err != nil {
		return nil, fmt.Errorf("find trips for route %s: %w", routeID, err)
	}
	var trips []Trip
	if err := cur.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	for _, t := range trips {
		mapping.TripIDs = append(mapping.TripIDs, t.TripID)
	}
	if len(trips) == 0 {
		// Route with no trips: shape but no stops.
		return mapping, nil
	}

	stops, err := s.stopsForTrip(ctx, trips[0].TripID)
	if err != nil {
		return nil, err
	}
	mapping.Stops = stops
	return mapping, nil
}

// stopsForTrip joins a trip's stop orders with the stop documents and
// returns them sorted by sequence. Stops without a document are dropped.
func (s *Store) stopsForTrip(ctx context.Context, tripID string) ([]StopRef, error) {
	cur, err := s.stopOrders().Find(ctx, bson.M{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("find stop orders for trip %s: %w", tripID, err)
	}
	var orders []StopOrder
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode stop orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	stopIDs := make([]string, 0, len(orders))
	for _, o := range orders {
		stopIDs = append(stopIDs, o.StopID)
	}
	cur, err = s.stops().Find(ctx, bson.M{"stop_id": bson.M{"$in": stopIDs}})
	if err != nil {
		return nil, fmt.Errorf("find stops: %w", err)
	}
	var stopDocs []Stop
	if err := cur.All(ctx, &stopDocs); err != nil {
		return nil, fmt.Errorf("decode stops: %w", err)
	}
	byID := make(map[string]Stop, len(stopDocs))
	for _, st := range stopDocs {
		byID[st.StopID] = st
	}

	refs := make([]StopRef, 0, len(orders))
	for _, o := range orders {
		st, ok := byID[o.StopID]
		if !ok {
			continue
		}
		refs = append(refs, StopRef{
			StopID:   st.StopID,
			Name:     st.Name,
			Lat:      st.Lat,
			Lon:      st.Lon,
			Sequence: o.Sequence,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Sequence < refs[j].Sequence })
	return refs, nil
}

// RoutesForTrips returns the route each of tripIDs belongs to, grouped as
// routeID -> trip IDs on that route. Trips without a document are absent.
func (s *Store) RoutesForTrips(ctx context.Context, tripIDs []string) (map[string][]string, error) {
	if len(tripIDs) == 0 {
		return nil, nil
	}
	cur, err := s.trips().Find(ctx, bson.M{"trip_id": bson.M{"$in": tripIDs}})
	if err != nil {
		return nil, fmt.Errorf("find trips: %w", err)
	}
	var trips []Trip
	if err := cur.All(ctx, &trips); err != nil {
		return nil, fmt.Errorf("decode trips: %w", err)
	}
	byRoute := map[string][]string{}
	for _, t := range trips {
		byRoute[t.RouteID] = append(byRoute[t.RouteID], t.TripID)
	}
	return byRoute, nil
}

// MarkNotified records a delivered notification on a subscription: stamps
// lastNotifiedAt and lastNotifiedVehicleId and increments the counter.
func (s *Store) MarkNotified(ctx context.Context, id primitive.ObjectID, at time.Time, vehicleID string) error {
	_, err := s.subscriptions().UpdateByID(ctx, id, bson.M{
		"$set": bson.M{
			"lastNotifiedAt":        at,
			"lastNotifiedVehicleId": vehicleID,
			"updatedAt":             time.Now(),
		},
		"$inc": bson.M{"notificationCount": 1},
	})
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", id.Hex(), err)
	}
	return nil
}

// RemovePushToken pulls token from every user document holding it and
// returns the number of users modified.
func (s *Store) RemovePushToken(ctx context.Context, token string) (int64, error) {
	res, err := s.users().UpdateMany(ctx,
		bson.M{"pushTokens.token": token},
		bson.M{"$pull": bson.M{"pushTokens": bson.M{"token": token}}},
	)
	if err != nil {
		return 0, fmt.Errorf("remove push token: %w", err)
	}
	return res.ModifiedCount, nil
}
