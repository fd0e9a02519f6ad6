package gtfsrt

// VehiclePosition is one vehicle observed in a feed tick. Produced once per
// distinct trip per tick and discarded when the tick's processing completes
// (the poller keeps the latest batch in a short-lived snapshot for
// "vehicles near me" queries).
type VehiclePosition struct {
	ID          string  `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	TripID      string  `json:"tripId"`
	RouteID     string  `json:"routeId"`
	Label       string  `json:"label,omitempty"`
	Speed       float64 `json:"speed"`
	VehicleType string  `json:"vehicleType,omitempty"`
}
