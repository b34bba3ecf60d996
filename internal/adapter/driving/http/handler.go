package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/releasewatch/internal/application"
	"github.com/ericfisherdev/releasewatch/internal/domain/model"
	"github.com/ericfisherdev/releasewatch/internal/domain/port/driven"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	subs    *application.SubscriptionService
	pollSvc *application.PollService
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	subs *application.SubscriptionService,
	pollSvc *application.PollService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		subs:    subs,
		pollSvc: pollSvc,
		logger:  logger,
	}
}

// RegisterAPIRoutes registers every /api/v1 route on mux.
func RegisterAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos/refresh", h.RefreshRepo)
	mux.HandleFunc("GET /api/v1/users/{id}/subscriptions", h.ListSubscriptions)
	mux.HandleFunc("POST /api/v1/users/{id}/subscriptions", h.Subscribe)
	mux.HandleFunc("DELETE /api/v1/users/{id}/subscriptions", h.RemoveAllSubscriptions)
	mux.HandleFunc("POST /api/v1/users/{id}/unsubscribe", h.Unsubscribe)
}

// NewServeMux creates an http.Handler with the API routes registered and
// wrapped with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	RegisterAPIRoutes(mux, h)
	return ApplyMiddleware(mux, logger)
}

// Health reports liveness together with the last finished poll cycle, if any.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	if h.pollSvc != nil {
		if stats, ok := h.pollSvc.LastCycle(); ok {
			resp.LastCycle = toCycleResponse(stats)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRepos returns every tracked repository with its latest tag and subscriber count.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.subs.ListRepositories(r.Context())
	if err != nil {
		h.logger.Error("failed to list repositories", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, toRepoResponse(s.Repository, s.Subscribers))
	}

	writeJSON(w, http.StatusOK, resp)
}

// RefreshRepo checks one tracked repository immediately through the poll loop.
func (h *Handler) RefreshRepo(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	if _, err := model.ParseRepoURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "url must be https://github.com/{owner}/{project}")
		return
	}

	if h.pollSvc == nil {
		writeError(w, http.StatusServiceUnavailable, "release monitor not running")
		return
	}

	err := h.pollSvc.RefreshRepo(r.Context(), req.URL)
	switch {
	case errors.Is(err, driven.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, "repository not found")
		return
	case err != nil:
		h.logger.Error("manual refresh failed", "repo", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions returns the repositories a Telegram user is subscribed to.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	externalID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	repos, err := h.subs.ListSubscriptions(r.Context(), externalID)
	if err != nil {
		h.logger.Error("failed to list subscriptions", "external_id", externalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo, -1))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Subscribe subscribes a Telegram user to the given repository URLs.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	externalID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req URLsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	res, err := h.subs.Subscribe(r.Context(), externalID, req.URLs)
	if err != nil {
		h.logger.Error("failed to subscribe", "external_id", externalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SubscribeResponse{
		Subscribed:        nonNil(res.Subscribed),
		AlreadySubscribed: nonNil(res.AlreadySubscribed),
		Invalid:           nonNil(res.Invalid),
	})
}

// Unsubscribe removes a Telegram user's subscriptions to the given repository URLs.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	externalID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req URLsRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	res, err := h.subs.Unsubscribe(r.Context(), externalID, req.URLs)
	if err != nil {
		h.logger.Error("failed to unsubscribe", "external_id", externalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UnsubscribeResponse{
		Unsubscribed:  nonNil(res.Unsubscribed),
		NotSubscribed: nonNil(res.NotSubscribed),
		Invalid:       nonNil(res.Invalid),
	})
}

// RemoveAllSubscriptions drops every subscription of a Telegram user.
func (h *Handler) RemoveAllSubscriptions(w http.ResponseWriter, r *http.Request) {
	externalID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	n, err := h.subs.RemoveAll(r.Context(), externalID)
	if err != nil {
		h.logger.Error("failed to remove subscriptions", "external_id", externalID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, RemoveAllResponse{Removed: n})
}

// decodeBody decodes a JSON request body into v, writing a 400 on failure.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// userIDParam parses the {id} path value as a Telegram user id.
func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
