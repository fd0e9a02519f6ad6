package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PushToken is one registered device token embedded in a user document.
type PushToken struct {
	Token    string    `bson:"token"`
	DeviceID string    `bson:"deviceId,omitempty"`
	Platform string    `bson:"platform,omitempty"`
	LastUsed time.Time `bson:"lastUsed,omitempty"`
}

// NotificationSettings are per-user delivery preferences. Zero values mean
// "unset"; callers apply the documented defaults (1000m, 5 minutes).
type NotificationSettings struct {
	DistanceMeters     float64 `bson:"distance,omitempty"`
	MinIntervalMinutes int     `bson:"minTimeBetweenNotifications,omitempty"`
	SoundEnabled       *bool   `bson:"soundEnabled,omitempty"`
	VibrationEnabled   *bool   `bson:"vibrationEnabled,omitempty"`
}

// User mirrors the Users collection. Subscriptions reference users by
// FirebaseUID, not by ObjectID.
type User struct {
	ID                   primitive.ObjectID   `bson:"_id,omitempty"`
	FirebaseUID          string               `bson:"firebaseUid"`
	Email                string               `bson:"email"`
	DisplayName          string               `bson:"displayName,omitempty"`
	NotificationsEnabled bool                 `bson:"notificationsEnabled"`
	NotificationSettings NotificationSettings `bson:"notificationSettings,omitempty"`
	PushTokens           []PushToken          `bson:"pushTokens,omitempty"`
	CreatedAt            time.Time            `bson:"createdAt,omitempty"`
	LastLogin            time.Time            `bson:"lastLogin,omitempty"`
}

// TimeWindow is a minute-resolution wall-clock window in the service's
// target timezone. Start and End are "HH:MM" strings, bounds inclusive.
type TimeWindow struct {
	Weekdays []int  `bson:"weekdays"`
	Start    string `bson:"startTime"`
	End      string `bson:"endTime"`
}

// Subscription mirrors the Subscriptions collection.
type Subscription struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty"`
	UserID                string             `bson:"userId"`
	RouteID               string             `bson:"route_id"`
	StopID                string             `bson:"stop_id"`
	Active                bool               `bson:"active"`
	TimeWindows           []TimeWindow       `bson:"times,omitempty"`
	LastNotifiedAt        *time.Time         `bson:"lastNotifiedAt,omitempty"`
	LastNotifiedVehicleID string             `bson:"lastNotifiedVehicleId,omitempty"`
	NotificationCount     int                `bson:"notificationCount,omitempty"`
	CreatedAt             time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt             time.Time          `bson:"updatedAt,omitempty"`
}

// Route mirrors the Routes collection. The feed and subscriptions identify
// routes by the short name, so that is the lookup key.
type Route struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ShortName string             `bson:"route_short_name"`
	LongName  string             `bson:"route_long_name,omitempty"`
	RouteType int                `bson:"route_type,omitempty"`
	Shape     Polyline           `bson:"multilinestring,omitempty"`
}

// Polyline is a GeoJSON-style multi-line geometry as stored on route docs.
type Polyline struct {
	Type        string        `bson:"type,omitempty"`
	Coordinates [][][]float64 `bson:"coordinates,omitempty"`
}

// Trip mirrors the Trips collection (trip -> route membership).
type Trip struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	TripID  string             `bson:"trip_id"`
	RouteID string             `bson:"route_id"`
}

// StopOrder mirrors the StopOrders collection (stop sequence within a trip).
type StopOrder struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	TripID   string             `bson:"trip_id"`
	StopID   string             `bson:"stop_id"`
	Sequence int                `bson:"stop_sequence"`
}

// Stop mirrors the Stops collection.
type Stop struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	StopID string             `bson:"stop_id"`
	Name   string             `bson:"stop_name,omitempty"`
	Lat    float64            `bson:"stop_lat"`
	Lon    float64            `bson:"stop_lon"`
}

// StopRef is a stop with its position in a specific route's stop order.
// Sequence is only meaningful within that route context.
type StopRef struct {
	StopID   string
	Name     string
	Lat      float64
	Lon      float64
	Sequence int
}

// RouteMapping is the assembled view of one route: its trips, shape and
// ordered stop list. Built by RouteDetails and held in the route cache.
type RouteMapping struct {
	RouteID  string
	LongName string
	TripIDs  []string
	Shape    [][][]float64
	Stops    []StopRef
}

// StopByID returns the stop ref for stopID, or false when the stop is not
// part of this route's cached stop list.
func (m *RouteMapping) StopByID(stopID string) (StopRef, bool) {
	for _, s := range m.Stops {
		if s.StopID == stopID {
			return s, true
		}
	}
	return StopRef{}, false
}
