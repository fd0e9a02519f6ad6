package config

// ServerConfig contains the HTTP server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// MongoConfig points at the document store. URI may be overridden by the
// MONGO_URI environment variable so credentials stay out of the file.
type MongoConfig struct {
	URI      string `yaml:"uri" validate:"omitempty"`
	Database string `yaml:"database" validate:"required"`
}

// FeedConfig contains the GTFS-Realtime vehicle positions feed settings
type FeedConfig struct {
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"required,url"`
	IntervalSeconds     int    `yaml:"intervalSeconds" validate:"gte=0"`
	TimeoutSeconds      int    `yaml:"timeoutSeconds" validate:"gte=0"`
	FailureThreshold    int    `yaml:"failureThreshold" validate:"gte=0"`
	CooldownMinutes     int    `yaml:"cooldownMinutes" validate:"gte=0"`
}

// CacheConfig controls the route mapping cache
type CacheConfig struct {
	RouteTTLHours int `yaml:"routeTTLHours" validate:"gte=0"`
}

// NotificationsConfig carries matcher and dispatch policy.
// PerDevice selects the token fan-out: true sends to every registered
// device, false to the first token only.
type NotificationsConfig struct {
	Timezone                  string  `yaml:"timezone" validate:"omitempty"`
	DefaultDistanceMeters     float64 `yaml:"defaultDistanceMeters" validate:"gte=0"`
	DefaultMinIntervalMinutes int     `yaml:"defaultMinIntervalMinutes" validate:"gte=0"`
	PerDevice                 *bool   `yaml:"perDevice"`
	MatchConcurrency          int     `yaml:"matchConcurrency" validate:"gte=0"`
}

// FCMConfig locates the Firebase service account. FCM is optional: with no
// credentials file the FCM provider is not constructed.
type FCMConfig struct {
	CredentialsFile string `yaml:"credentialsFile" validate:"omitempty"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server        ServerConfig        `yaml:"server" validate:"required"`
	Mongo         MongoConfig         `yaml:"mongo" validate:"required"`
	Feed          FeedConfig          `yaml:"feed" validate:"required"`
	Cache         CacheConfig         `yaml:"cache"`
	Notifications NotificationsConfig `yaml:"notifications"`
	FCM           FCMConfig           `yaml:"fcm"`
}

// PerDeviceEnabled reports the token fan-out policy, defaulting to
// per-device delivery when the flag is absent.
func (n NotificationsConfig) PerDeviceEnabled() bool {
	if n.PerDevice == nil {
		return true
	}
	return *n.PerDevice
}
