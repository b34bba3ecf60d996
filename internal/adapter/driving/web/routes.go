package web

import "net/http"

// RegisterRoutes registers the dashboard route on the provided mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /{$}", h.Dashboard)
}
