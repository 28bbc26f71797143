package rebuildconfig

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// CreateConfigHandler handles POST /configs
func CreateConfigHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		cfg, err := store.Create(req)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, configToResponse(cfg, nil, "", 0))
	}
}

// ListConfigsHandler handles GET /configs
func ListConfigsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := store.List()
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"configs": summaries})
	}
}

// GetConfigHandler handles GET /configs/{configId}
// Returns the full payload plus a page of history.
func GetConfigHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "configId")

		cfg, err := store.Get(id)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		entries, nextToken, total, err := store.History(id, pageSize, r.URL.Query().Get("pageToken"))
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, configToResponse(cfg, entries, nextToken, total))
	}
}

// UpdateConfigHandler handles PATCH /configs/{configId}
func UpdateConfigHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "configId")

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}

		cfg, err := store.Update(id, req)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, configToResponse(cfg, nil, "", 0))
	}
}

// ActivateConfigHandler handles POST /configs/{configId}:activate
func ActivateConfigHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "configId")

		cfg, err := store.Activate(id)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, configToResponse(cfg, nil, "", 0))
	}
}

// DeleteConfigHandler handles DELETE /configs/{configId}
func DeleteConfigHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "configId")

		if err := store.Delete(id); err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}

// Router creates a chi.Router for the config store API.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()
	r.Post("/", CreateConfigHandler(store))
	r.Get("/", ListConfigsHandler(store))
	r.Get("/{configId}", GetConfigHandler(store))
	r.Patch("/{configId}", UpdateConfigHandler(store))
	r.Post("/{configId}:activate", ActivateConfigHandler(store))
	r.Delete("/{configId}", DeleteConfigHandler(store))
	return r
}

// configResponse is the API shape of a full config.
type configResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Notes     string  `json:"notes,omitempty"`
	IsActive  bool    `json:"isActive"`
	Payload   Payload `json:"payload"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`

	History          []historyResponse `json:"history,omitempty"`
	HistoryNextToken string            `json:"historyNextPageToken,omitempty"`
	HistoryTotal     int               `json:"historyTotalSize,omitempty"`
}

type historyResponse struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	Diff      JSONMap `json:"diff,omitempty"`
	CreatedAt string  `json:"createdAt"`
}

func configToResponse(cfg *RebuildConfig, entries []HistoryEntry, nextToken string, total int) configResponse {
	resp := configResponse{
		ID:               cfg.ID,
		Name:             cfg.Name,
		Notes:            cfg.Notes,
		IsActive:         cfg.IsActive,
		Payload:          cfg.Payload,
		CreatedAt:        cfg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        cfg.UpdatedAt.Format(time.RFC3339),
		HistoryNextToken: nextToken,
		HistoryTotal:     total,
	}
	for _, e := range entries {
		resp.History = append(resp.History, historyResponse{
			ID:        e.ID,
			Action:    string(e.Action),
			Diff:      e.Diff,
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
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
