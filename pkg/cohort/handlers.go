package cohort

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// ListCohortsHandler handles GET /cohorts
func ListCohortsHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cohorts, err := registry.List()
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}

		out := make([]Response, len(cohorts))
		for i := range cohorts {
			out[i] = ToResponse(&cohorts[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"cohorts": out})
	}
}

// GetCohortHandler handles GET /cohorts/{cohortId}
func GetCohortHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := registry.Get(chi.URLParam(r, "cohortId"))
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ToResponse(c))
	}
}

// RefreshStatsHandler handles POST /cohorts/{cohortId}:refreshStats
func RefreshStatsHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "cohortId")
		total, err := registry.RefreshStats(id)
		if err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "totalPlayers": total})
	}
}

// DeleteCohortHandler handles DELETE /cohorts/{cohortId}
func DeleteCohortHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "cohortId")
		if err := registry.Delete(id); err != nil {
			writeError(w, apierr.StatusCode(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}

// Response is the API shape of a cohort, shared with the seed endpoints.
type Response struct {
	ID          string  `json:"id"`
	TeamAPIID   int     `json:"teamApiId"`
	LeagueAPIID int     `json:"leagueApiId"`
	Season      int     `json:"season"`
	TeamName    string  `json:"teamName"`
	LeagueName  string  `json:"leagueName"`
	TeamLogo    *string `json:"teamLogo,omitempty"`
	SyncStatus  string  `json:"syncStatus"`
	LastError   string  `json:"lastError,omitempty"`
	Analytics   struct {
		TotalPlayers int `json:"totalPlayers"`
	} `json:"analytics"`
	UpdatedAt string `json:"updatedAt"`
}

// ToResponse converts a cohort to its API shape.
func ToResponse(c *Cohort) Response {
	resp := Response{
		ID:          c.ID,
		TeamAPIID:   c.TeamAPIID,
		LeagueAPIID: c.LeagueAPIID,
		Season:      c.Season,
		TeamName:    c.TeamName,
		LeagueName:  c.LeagueName,
		TeamLogo:    c.TeamLogo,
		SyncStatus:  string(c.SyncStatus),
		LastError:   c.LastError,
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
	resp.Analytics.TotalPlayers = c.TotalPlayers
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
