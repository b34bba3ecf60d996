// Package web implements the HTML status dashboard using templ components.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/releasewatch/internal/application"
)

// Handler is the web driving adapter that serves HTML via templ components.
type Handler struct {
	subs         *application.SubscriptionService
	pollSvc      *application.PollService
	helpMarkdown string
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
// pollSvc may be nil, in which case no cycle summary is shown. helpMarkdown
// documents the bot commands and is rendered below the table.
func NewHandler(
	subs *application.SubscriptionService,
	pollSvc *application.PollService,
	helpMarkdown string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		subs:         subs,
		pollSvc:      pollSvc,
		helpMarkdown: helpMarkdown,
		logger:       logger,
	}
}

// Dashboard renders the tracked repositories page with the full HTML layout.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.subs.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("failed to load dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var (
		stats application.CycleStats
		ok    bool
	)
	if h.pollSvc != nil {
		stats, ok = h.pollSvc.LastCycle()
	}

	page := Layout("releasewatch", Dashboard(toDashboardViewModel(statuses, stats, ok, h.helpMarkdown, time.Now())))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
