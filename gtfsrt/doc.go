// Package gtfsrt fetches and decodes the upstream GTFS-Realtime vehicle
// positions feed into the flat VehiclePosition records the rest of the
// pipeline consumes.
package gtfsrt
