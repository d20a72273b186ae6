package handlers

import "net/http"

// AvailabilityWS upgrades the connection and streams availability updates
// for a single visit date.
func (h *Handler) AvailabilityWS(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}
