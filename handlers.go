package transitnotify

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (d ServerDeps) handleVehiclesNear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	lat, err1 := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	radius := 1000.0
	if s := r.URL.Query().Get("radius"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "invalid radius")
			return
		}
		radius = v
	}
	vehicles := d.Poller.VehiclesNear(r.Context(), lat, lon, radius)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(vehicles),
		"vehicles": vehicles,
	})
}

type testNotificationRequest struct {
	Token string `json:"token"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (d ServerDeps) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req testNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.Title == "" {
		req.Title = "Test Notification"
	}
	if req.Body == "" {
		req.Body = "This is a test notification"
	}
	if !d.Service.SendTestNotification(r.Context(), req.Token, req.Title, req.Body) {
		writeError(w, http.StatusBadGateway, "delivery failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (d ServerDeps) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	d.Resolver.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
