package transitnotify

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status              string `json:"status"`
	Polling             bool   `json:"polling"`
	LastSuccessfulFetch int64  `json:"last_successful_fetch_epoch"`
}

func (d ServerDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{
		Status:  "ok",
		Polling: d.Poller.Running(),
	}
	if last := d.Poller.LastSuccess(); !last.IsZero() {
		resp.LastSuccessfulFetch = last.Unix()
	}
	_ = json.NewEncoder(w).Encode(resp)
}
