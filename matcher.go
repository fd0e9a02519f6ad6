package transitnotify

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/transitwatch/transit-notify/geo"
	"github.com/transitwatch/transit-notify/gtfsrt"
	"github.com/transitwatch/transit-notify/push"
	"github.com/transitwatch/transit-notify/store"
)

// MatchStore is the slice of the document store the matcher reads.
// Subscriptions are always fetched fresh: throttling correctness depends
// on the current lastNotifiedAt values.
type MatchStore interface {
	ActiveSubscriptions(ctx context.Context) ([]store.Subscription, error)
	UsersByFirebaseUID(ctx context.Context, uids []string) ([]store.User, error)
}

// RouteDetailer resolves a route's cached geometry.
type RouteDetailer interface {
	RouteDetails(ctx context.Context, routeID string) (*store.RouteMapping, error)
}

// SubscriptionUpdate is the pending accounting write for one notified
// subscription. Deduplicated by subscription ID within a tick; last values
// win.
type SubscriptionUpdate struct {
	SubscriptionID primitive.ObjectID
	NotifiedAt     time.Time
	VehicleID      string
}

// MatcherConfig carries the matching policy knobs.
type MatcherConfig struct {
	// Location is the fixed target timezone time windows are evaluated in,
	// regardless of the host timezone.
	Location *time.Location
	// DefaultDistanceMeters applies when a user has no distance setting.
	DefaultDistanceMeters float64
	// DefaultMinInterval applies when a user has no throttle setting.
	DefaultMinInterval time.Duration
	// PerDevice sends to every registered token; false sends to the first.
	PerDevice bool
	// Concurrency bounds the per-vehicle fan-out.
	Concurrency int
}

// Matcher computes which (user, subscription, vehicle, stop) tuples qualify
// for notification in one tick. It builds messages and pending updates but
// sends and persists nothing itself.
type Matcher struct {
	store  MatchStore
	routes RouteDetailer
	cfg    MatcherConfig
}

func NewMatcher(st MatchStore, routes RouteDetailer, cfg MatcherConfig) *Matcher {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultDistanceMeters <= 0 {
		cfg.DefaultDistanceMeters = 1000
	}
	if cfg.DefaultMinInterval <= 0 {
		cfg.DefaultMinInterval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Matcher{store: st, routes: routes, cfg: cfg}
}

// matchAccumulator collects results from the concurrent per-vehicle tasks.
type matchAccumulator struct {
	mu       sync.Mutex
	messages []push.Message
	updates  map[string]SubscriptionUpdate // subscription ID hex -> last values
}

// record registers a qualifying match. It returns false when the
// subscription already produced a message this tick: the update values are
// refreshed but no second message is queued.
func (a *matchAccumulator) record(upd SubscriptionUpdate) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := upd.SubscriptionID.Hex()
	_, seen := a.updates[key]
	a.updates[key] = upd
	return !seen
}

func (a *matchAccumulator) add(msgs []push.Message) {
	a.mu.Lock()
	a.messages = append(a.messages, msgs...)
	a.mu.Unlock()
}

// Match runs the subscription-matching algorithm for one tick.
//
// A failure resolving one vehicle, one subscription or one stop is logged
// and skipped; only a failure reading subscriptions or users aborts the
// batch.
func (m *Matcher) Match(ctx context.Context, vehicles []gtfsrt.VehiclePosition, now time.Time) ([]push.Message, []SubscriptionUpdate, error) {
	if len(vehicles) == 0 {
		return nil, nil, nil
	}

	subs, err := m.store.ActiveSubscriptions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil, nil, nil
	}

	timeEligible := subs[:0:0]
	for _, sub := range subs {
		if windowsContain(now, m.cfg.Location, sub.TimeWindows) {
			timeEligible = append(timeEligible, sub)
		}
	}
	if len(timeEligible) == 0 {
		return nil, nil, nil
	}

	byRoute := map[string][]store.Subscription{}
	for _, sub := range timeEligible {
		byRoute[sub.RouteID] = append(byRoute[sub.RouteID], sub)
	}

	// Dropping vehicles on routes without subscribers is the primary cost
	// cut: geometry lookup and distance math dominate per-vehicle work.
	relevant := vehicles[:0:0]
	for _, v := range vehicles {
		if _, ok := byRoute[v.RouteID]; ok && v.RouteID != "" {
			relevant = append(relevant, v)
		}
	}
	if len(relevant) == 0 {
		return nil, nil, nil
	}

	users, err := m.loadUsers(ctx, timeEligible)
	if err != nil {
		return nil, nil, err
	}

	acc := &matchAccumulator{updates: map[string]SubscriptionUpdate{}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, v := range relevant {
		v := v
		g.Go(func() error {
			m.matchVehicle(gctx, v, byRoute[v.RouteID], users, now, acc)
			return nil
		})
	}
	_ = g.Wait()

	updates := make([]SubscriptionUpdate, 0, len(acc.updates))
	for _, u := range acc.updates {
		updates = append(updates, u)
	}
	return acc.messages, updates, nil
}

func (m *Matcher) loadUsers(ctx context.Context, subs []store.Subscription) (map[string]store.User, error) {
	seen := map[string]struct{}{}
	uids := make([]string, 0, len(subs))
	for _, sub := range subs {
		if _, ok := seen[sub.UserID]; ok {
			continue
		}
		seen[sub.UserID] = struct{}{}
		uids = append(uids, sub.UserID)
	}
	users, err := m.store.UsersByFirebaseUID(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	byUID := make(map[string]store.User, len(users))
	for _, u := range users {
		byUID[u.FirebaseUID] = u
	}
	return byUID, nil
}

// matchVehicle evaluates one vehicle against its route's subscriptions.
func (m *Matcher) matchVehicle(ctx context.Context, v gtfsrt.VehiclePosition, routeSubs []store.Subscription, users map[string]store.User, now time.Time, acc *matchAccumulator) {
	eligible := routeSubs[:0:0]
	for _, sub := range routeSubs {
		user, ok := users[sub.UserID]
		if !ok {
			// Unknown user or notifications globally disabled.
			continue
		}
		if m.throttled(sub, user, now) {
			continue
		}
		eligible = append(eligible, sub)
	}
	if len(eligible) == 0 {
		return
	}

	mapping, err := m.routes.RouteDetails(ctx, v.RouteID)
	if err != nil {
		log.Printf("matcher: route %s details: %v", v.RouteID, err)
		return
	}
	if mapping == nil || len(mapping.Stops) == 0 {
		return
	}

	for _, sub := range eligible {
		stop, ok := mapping.StopByID(sub.StopID)
		if !ok {
			// Routes and stop sets can legitimately diverge from a stale
			// cache; not an error.
			continue
		}
		user := users[sub.UserID]

		distance := geo.DistanceMeters(v.Latitude, v.Longitude, stop.Lat, stop.Lon)
		threshold := user.NotificationSettings.DistanceMeters
		if threshold <= 0 {
			threshold = m.cfg.DefaultDistanceMeters
		}
		if distance > threshold {
			continue
		}
		if len(user.PushTokens) == 0 {
			continue
		}

		upd := SubscriptionUpdate{SubscriptionID: sub.ID, NotifiedAt: now, VehicleID: v.ID}
		if !acc.record(upd) {
			// Already queued for this subscription this tick.
			continue
		}
		acc.add(m.buildMessages(user, sub, v, stop, distance))
	}
}

func (m *Matcher) throttled(sub store.Subscription, user store.User, now time.Time) bool {
	if sub.LastNotifiedAt == nil {
		return false
	}
	interval := m.cfg.DefaultMinInterval
	if user.NotificationSettings.MinIntervalMinutes > 0 {
		interval = time.Duration(user.NotificationSettings.MinIntervalMinutes) * time.Minute
	}
	return now.Sub(*sub.LastNotifiedAt) < interval
}

func (m *Matcher) buildMessages(user store.User, sub store.Subscription, v gtfsrt.VehiclePosition, stop store.StopRef, distance float64) []push.Message {
	rounded := int(math.Round(distance))
	sound := user.NotificationSettings.SoundEnabled == nil || *user.NotificationSettings.SoundEnabled
	vibrate := user.NotificationSettings.VibrationEnabled == nil || *user.NotificationSettings.VibrationEnabled

	title := "Your Transit is Approaching"
	body := fmt.Sprintf("Route %s is approaching stop #%s (%dm away)", v.RouteID, stop.StopID, rounded)
	data := map[string]string{
		"type":           "proximity_alert",
		"routeId":        v.RouteID,
		"stopId":         stop.StopID,
		"vehicleId":      v.ID,
		"distance":       fmt.Sprintf("%d", rounded),
		"vibrate":        fmt.Sprintf("%t", vibrate),
		"subscriptionId": sub.ID.Hex(),
		"stop_lat":       fmt.Sprintf("%g", stop.Lat),
		"stop_lon":       fmt.Sprintf("%g", stop.Lon),
	}

	tokens := user.PushTokens
	if !m.cfg.PerDevice {
		tokens = tokens[:1]
	}
	msgs := make([]push.Message, 0, len(tokens))
	for _, t := range tokens {
		msg := push.NewMessage(push.Classify(t.Token), title, body, data)
		msg.Sound = sound
		msgs = append(msgs, msg)
	}
	return msgs
}
