package poll

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPFetcher builds a Fetcher that reads a job snapshot from the seed-jobs
// API. baseURL is the API root, e.g. http://localhost:8080/api/rebuild/v1.
func HTTPFetcher(client *http.Client, baseURL, jobID string) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("%s/seed-jobs/%s", baseURL, jobID)

	return func(ctx context.Context) (JobSnapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return JobSnapshot{}, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return JobSnapshot{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return JobSnapshot{}, fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, body)
		}

		var payload struct {
			ID          string `json:"id"`
			Status      string `json:"status"`
			Progress    int    `json:"progress"`
			Total       int    `json:"total"`
			CurrentItem string `json:"currentItem"`
			Error       string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return JobSnapshot{}, fmt.Errorf("decode job %s: %w", jobID, err)
		}
		return JobSnapshot{
			ID:          payload.ID,
			Status:      payload.Status,
			Progress:    payload.Progress,
			Total:       payload.Total,
			CurrentItem: payload.CurrentItem,
			Error:       payload.Error,
		}, nil
	}
}
