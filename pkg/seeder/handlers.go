package seeder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitchside/rebuild-server/pkg/apierr"
	"github.com/pitchside/rebuild-server/pkg/cohort"
	"github.com/pitchside/rebuild-server/pkg/rebuildconfig"
)

// seedSingleRequest is the body of POST /cohorts:seed.
type seedSingleRequest struct {
	TeamID   int `json:"teamId"`
	LeagueID int `json:"leagueId"`
	Season   int `json:"season"`
}

// SeedSingleHandler handles POST /cohorts:seed
// Runs synchronously and returns the cohort in its final state.
func SeedSingleHandler(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req seedSingleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if req.TeamID <= 0 || req.LeagueID <= 0 || req.Season <= 0 {
			writeError(w, http.StatusBadRequest, "teamId, leagueId, and season must all be positive")
			return
		}

		c, err := runner.SeedSingle(r.Context(), req.TeamID, req.LeagueID, req.Season)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cohort.ToResponse(c))
	}
}

// SyncJourneysHandler handles POST /cohorts/{cohortId}:syncJourneys
func SyncJourneysHandler(runner *Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := runner.SyncJourneys(r.Context(), chi.URLParam(r, "cohortId"))
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cohort.ToResponse(c))
	}
}

// enqueueBatchRequest is the body of POST /seed-jobs. configId is optional
// and defaults to the active config.
type enqueueBatchRequest struct {
	ConfigID    string `json:"configId"`
	RequestedBy string `json:"requestedBy"`
}

// EnqueueBatchHandler handles POST /seed-jobs
// Returns 202 with the queued job; execution is asynchronous.
func EnqueueBatchHandler(jobs *JobStore, configs *rebuildconfig.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueBatchRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
				return
			}
		}

		job, err := EnqueueBatch(jobs, configs, req.ConfigID, req.RequestedBy)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, jobToResponse(job))
	}
}

// GetJobHandler handles GET /seed-jobs/{jobId}
func GetJobHandler(jobs *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobId")
		job, err := jobs.Get(id)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("seed job %q not found", id))
			return
		}
		writeJSON(w, http.StatusOK, jobToResponse(job))
	}
}

// ListJobsHandler handles GET /seed-jobs
func ListJobsHandler(jobs *JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := JobListFilter{
			ConfigID: r.URL.Query().Get("configId"),
			Status:   r.URL.Query().Get("status"),
		}
		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := jobs.List(filter, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}

		out := make([]jobResponse, len(records))
		for i := range records {
			out[i] = jobToResponse(&records[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":          out,
			"totalSize":     total,
			"nextPageToken": nextToken,
		})
	}
}

// JobRouter creates a chi.Router for the seed-jobs API.
func JobRouter(jobs *JobStore, configs *rebuildconfig.Store) chi.Router {
	r := chi.NewRouter()
	r.Post("/", EnqueueBatchHandler(jobs, configs))
	r.Get("/", ListJobsHandler(jobs))
	r.Get("/{jobId}", GetJobHandler(jobs))
	return r
}

// jobResponse is the API shape of a seed job.
type jobResponse struct {
	ID          string  `json:"id"`
	ConfigID    string  `json:"configId"`
	RequestedBy string  `json:"requestedBy,omitempty"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	Total       int     `json:"total"`
	CurrentItem string  `json:"currentItem,omitempty"`
	Error       string  `json:"error,omitempty"`
	RequestedAt string  `json:"requestedAt"`
	StartedAt   *string `json:"startedAt,omitempty"`
	FinishedAt  *string `json:"finishedAt,omitempty"`
}

func jobToResponse(job *SeedJob) jobResponse {
	resp := jobResponse{
		ID:          job.ID,
		ConfigID:    job.ConfigID,
		RequestedBy: job.RequestedBy,
		Status:      string(job.Status),
		Progress:    job.Progress,
		Total:       job.Total,
		CurrentItem: job.CurrentItem,
		Error:       job.Error,
		RequestedAt: job.RequestedAt.Format(time.RFC3339Nano),
	}
	if job.StartedAt != nil {
		s := job.StartedAt.Format(time.RFC3339Nano)
		resp.StartedAt = &s
	}
	if job.FinishedAt != nil {
		s := job.FinishedAt.Format(time.RFC3339Nano)
		resp.FinishedAt = &s
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
