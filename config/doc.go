// Package config handles application configuration loading and validation.
//
// Configuration is loaded from a yaml file and validated using struct
// tags. Secrets (Mongo URI, FCM credentials path) can be supplied through
// environment variables instead of the file.
package config
