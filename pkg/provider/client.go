// Package provider wraps the external football data API behind a small
// client interface with rate limiting, usage accounting, and a TTL response
// cache. A stub implementation stands in when no credential is configured so
// the rest of the control plane works offline.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pitchside/rebuild-server/pkg/apierr"
)

// Mode describes how the provider is reached.
type Mode string

const (
	ModeDirect  Mode = "direct"
	ModeProxied Mode = "proxied"
	ModeStub    Mode = "stub"
)

// Player is one squad member as reported by the provider.
type Player struct {
	APIID int    `json:"id"`
	Name  string `json:"name"`
}

// TransferEntry is one movement in a player's club-to-club journey.
type TransferEntry struct {
	Date     string `json:"date"`
	Type     string `json:"type"` // "Loan", "Free", fee, ...
	FromTeam string `json:"fromTeam"`
	ToTeam   string `json:"toTeam"`
}

// Client is the provider surface the seed runner consumes.
type Client interface {
	// Squad returns the players registered for a team in a league season.
	// An empty slice with a nil error means the provider has no data for
	// the triple.
	Squad(ctx context.Context, teamID, leagueID, season int) ([]Player, error)
	// Transfers returns a player's transfer/loan journey.
	Transfers(ctx context.Context, playerID int) ([]TransferEntry, error)
	// Mode reports how the provider is reached.
	Mode() Mode
	// KeyConfigured reports whether a provider credential is present.
	KeyConfigured() bool
}

// Config holds connection settings for the HTTP client.
type Config struct {
	BaseURL  string
	ProxyURL string // when set, requests go through the proxy instead
	APIKey   string
	Timeout  time.Duration
}

// HTTPClient talks to the football data API over HTTP. All calls go through
// the shared rate limiter and usage tracker; squad and transfer responses
// are cached by request URL.
type HTTPClient struct {
	baseURL string
	apiKey  string
	mode    Mode
	client  *http.Client
	limiter *RateLimiter
	usage   *UsageTracker
	cache   *ResponseCache
	logger  *slog.Logger
}

// NewHTTPClient creates a provider client for the given config. When
// cfg.ProxyURL is set the client runs in proxied mode against that URL.
func NewHTTPClient(cfg Config, limiter *RateLimiter, usage *UsageTracker, cache *ResponseCache, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	mode := ModeDirect
	if cfg.ProxyURL != "" {
		baseURL = cfg.ProxyURL
		mode = ModeProxied
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		mode:    mode,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		usage:   usage,
		cache:   cache,
		logger:  logger,
	}
}

// Mode reports direct or proxied.
func (c *HTTPClient) Mode() Mode { return c.mode }

// KeyConfigured reports whether an API key is set.
func (c *HTTPClient) KeyConfigured() bool { return c.apiKey != "" }

// Squad fetches the squad for a team/league/season triple.
func (c *HTTPClient) Squad(ctx context.Context, teamID, leagueID, season int) ([]Player, error) {
	endpoint := fmt.Sprintf("/players?team=%d&league=%d&season=%d", teamID, leagueID, season)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Response []struct {
			Player struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"player"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apierr.Provider("malformed squad response: %v", err)
	}

	players := make([]Player, 0, len(parsed.Response))
	for _, item := range parsed.Response {
		players = append(players, Player{APIID: item.Player.ID, Name: item.Player.Name})
	}
	return players, nil
}

// Transfers fetches a player's transfer journey.
func (c *HTTPClient) Transfers(ctx context.Context, playerID int) ([]TransferEntry, error) {
	endpoint := fmt.Sprintf("/transfers?player=%d", playerID)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Response []struct {
			Transfers []struct {
				Date  string `json:"date"`
				Type  string `json:"type"`
				Teams struct {
					In  struct{ Name string } `json:"in"`
					Out struct{ Name string } `json:"out"`
				} `json:"teams"`
			} `json:"transfers"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apierr.Provider("malformed transfers response: %v", err)
	}

	var entries []TransferEntry
	for _, item := range parsed.Response {
		for _, t := range item.Transfers {
			entries = append(entries, TransferEntry{
				Date:     t.Date,
				Type:     t.Type,
				FromTeam: t.Teams.Out.Name,
				ToTeam:   t.Teams.In.Name,
			})
		}
	}
	return entries, nil
}

// get performs a cached, rate-limited GET against the provider. Cache hits
// cost neither quota nor a rate-limit token.
func (c *HTTPClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if c.cache != nil {
		if body, ok := c.cache.Get(endpoint); ok {
			return body, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Allow(); err != nil {
			return nil, err
		}
	}
	if c.usage != nil {
		c.usage.Record()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, apierr.Provider("build provider request: %v", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-apisports-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &apierr.ProviderError{Msg: fmt.Sprintf("provider request timed out: %v", err), Timeout: true}
		}
		return nil, apierr.Provider("provider request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apierr.RateLimited("provider rate limit exceeded")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apierr.Provider("provider returned status %d: %s", resp.StatusCode, string(snippet))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Provider("read provider response: %v", err)
	}

	if c.cache != nil {
		c.cache.Set(endpoint, body)
	}
	return body, nil
}
