package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genflow/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 64 << 10
)

type createJobRequest struct {
	Kind string `json:"kind"`
	domain.RequestSpec
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	handle, err := a.Jobs.StartJob(r.Context(), userID, kind, req.RequestSpec)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	status, err := handle.Status(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+string(kind)+"/"+handle.ID())
	a.json(w, http.StatusAccepted, status)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	q := r.URL.Query()

	var kind domain.Kind
	if raw := q.Get("kind"); raw != "" {
		k, err := domain.ParseKind(raw)
		if err != nil {
			a.serviceError(w, r, err)
			return
		}
		kind = k
	}
	filter, err := parseListFilter(q.Get("state"), q.Get("since"), q.Get("limit"))
	if err != nil {
		a.serviceError(w, r, err)
		return
	}

	jobs, err := a.Jobs.List(r.Context(), userID, kind, filter)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func parseListFilter(states, since, limit string) (domain.JobFilter, error) {
	filter := domain.JobFilter{Limit: defaultListLimit}
	for _, raw := range strings.Split(states, ",") {
		raw = strings.ToLower(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		st := domain.State(raw)
		if !isVisibleState(st) {
			return filter, fmt.Errorf("%w: unknown state %q", domain.ErrInvalidRequest, raw)
		}
		filter.States = append(filter.States, st)
	}
	if since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, fmt.Errorf("%w: since must be RFC 3339", domain.ErrInvalidRequest)
		}
		filter.CompletedSince = ts
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidRequest)
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		filter.Limit = n
	}
	return filter, nil
}

func isVisibleState(st domain.State) bool {
	for _, s := range domain.VisibleStates {
		if s == st {
			return true
		}
	}
	return false
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID, kind, id, ok := a.jobRef(w, r)
	if !ok {
		return
	}
	handle, err := a.Jobs.Handle(r.Context(), userID, kind, id)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	status, err := handle.Status(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, status)
}

func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	userID, kind, id, ok := a.jobRef(w, r)
	if !ok {
		return
	}
	if err := a.Jobs.Delete(r.Context(), userID, kind, id); err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) RetryJob(w http.ResponseWriter, r *http.Request) {
	userID, kind, id, ok := a.jobRef(w, r)
	if !ok {
		return
	}
	handle, err := a.Jobs.Retry(r.Context(), userID, kind, id)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	status, err := handle.Status(r.Context())
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+string(kind)+"/"+handle.ID())
	a.json(w, http.StatusAccepted, status)
}

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Jobs.Credits(r.Context(), userID)
	if err != nil {
		a.serviceError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{"balance": balance})
}

// jobRef reads the caller and the {kind}/{id} path parameters, writing the
// error response itself when one is missing.
func (a *App) jobRef(w http.ResponseWriter, r *http.Request) (string, domain.Kind, string, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return "", "", "", false
	}
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		a.serviceError(w, r, err)
		return "", "", "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return "", "", "", false
	}
	return userID, kind, id, true
}
