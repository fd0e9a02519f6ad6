package gtfsrt

import (
	"fmt"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DecodeVehiclePositions parses a FeedMessage and extracts one
// VehiclePosition per distinct trip. Entities must carry both a vehicle
// descriptor with an id and a position; anything else is skipped. When the
// feed repeats a trip, the first occurrence wins. RouteID carries the raw
// feed value, which is in the GTFS route_id namespace; the poller replaces
// it with the store's route key before the batch goes anywhere.
func DecodeVehiclePositions(data []byte) ([]VehiclePosition, error) {
	fm := &gtfsrtpb.FeedMessage{}
	if err := proto.Unmarshal(data, fm); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	seenTrips := map[string]struct{}{}
	vehicles := make([]VehiclePosition, 0, len(fm.Entity))
	for _, e := range fm.Entity {
		v := e.Vehicle
		if v == nil || v.Vehicle == nil || v.Vehicle.Id == nil || v.Position == nil {
			continue
		}
		if v.Position.Latitude == nil || v.Position.Longitude == nil {
			continue
		}

		vp := VehiclePosition{
			ID:        *v.Vehicle.Id,
			Latitude:  float64(*v.Position.Latitude),
			Longitude: float64(*v.Position.Longitude),
		}
		if v.Vehicle.Label != nil {
			vp.Label = *v.Vehicle.Label
		}
		if v.Position.Speed != nil {
			vp.Speed = float64(*v.Position.Speed)
		}
		if v.Trip != nil && v.Trip.TripId != nil {
			vp.TripID = *v.Trip.TripId
		}
		if v.Trip != nil && v.Trip.RouteId != nil {
			vp.RouteID = *v.Trip.RouteId
		}

		if vp.TripID != "" {
			if _, dup := seenTrips[vp.TripID]; dup {
				continue
			}
			seenTrips[vp.TripID] = struct{}{}
		}
		vehicles = append(vehicles, vp)
	}
	return vehicles, nil
}
