package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/releasewatch/internal/application"
	"github.com/ericfisherdev/releasewatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RepoResponse is the JSON representation of a tracked repository.
// Subscribers is omitted on per-user listings.
type RepoResponse struct {
	URL         string  `json:"url"`
	ShortName   string  `json:"short_name"`
	LatestTag   *string `json:"latest_tag"`
	Subscribers *int    `json:"subscribers,omitempty"`
	UpdatedAt   string  `json:"updated_at"`
}

// CycleResponse summarizes the last finished poll cycle.
type CycleResponse struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at"`
	Repositories int    `json:"repositories"`
	Changed      int    `json:"changed"`
	Failed       int    `json:"failed"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status    string         `json:"status"`
	Time      string         `json:"time"`
	LastCycle *CycleResponse `json:"last_cycle,omitempty"`
}

// RefreshRequest is the JSON body for the manual refresh endpoint.
type RefreshRequest struct {
	URL string `json:"url"`
}

// URLsRequest is the JSON body for the subscribe and unsubscribe endpoints.
type URLsRequest struct {
	URLs []string `json:"urls"`
}

// SubscribeResponse reports the outcome per URL.
type SubscribeResponse struct {
	Subscribed        []string `json:"subscribed"`
	AlreadySubscribed []string `json:"already_subscribed"`
	Invalid           []string `json:"invalid"`
}

// UnsubscribeResponse reports the outcome per URL.
type UnsubscribeResponse struct {
	Unsubscribed  []string `json:"unsubscribed"`
	NotSubscribed []string `json:"not_subscribed"`
	Invalid       []string `json:"invalid"`
}

// RemoveAllResponse reports how many subscriptions were dropped.
type RemoveAllResponse struct {
	Removed int64 `json:"removed"`
}

// toRepoResponse converts a domain Repository to its JSON response representation.
// A negative subscriber count leaves the field out.
func toRepoResponse(repo model.Repository, subscribers int) RepoResponse {
	resp := RepoResponse{
		URL:       repo.URL,
		ShortName: repo.ShortName,
		LatestTag: repo.LatestTag,
		UpdatedAt: repo.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if subscribers >= 0 {
		resp.Subscribers = &subscribers
	}
	return resp
}

func toCycleResponse(s application.CycleStats) *CycleResponse {
	return &CycleResponse{
		ID:           s.ID,
		StartedAt:    s.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:   s.FinishedAt.UTC().Format(time.RFC3339),
		Repositories: s.Repositories,
		Changed:      s.Changed,
		Failed:       s.Failed,
	}
}
