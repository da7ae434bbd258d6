package handlers

import "net/http"

type healthResponse struct {
	Status        string `json:"status"`
	RecentEntries int    `json:"recent_entries"`
}

// Health is a liveness check. It never calls the generation service.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, healthResponse{Status: "ok", RecentEntries: a.History.Len()})
}
