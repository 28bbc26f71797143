package rebuildconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeDiffEmptyForIdenticalConfigs(t *testing.T) {
	a := &RebuildConfig{Name: "x", Payload: DefaultPayload()}
	b := &RebuildConfig{Name: "x", Payload: DefaultPayload()}
	assert.Empty(t, computeDiff(a, b))
}

func TestComputeDiffListsOnlyChangedFields(t *testing.T) {
	before := &RebuildConfig{Name: "x", Notes: "old", Payload: DefaultPayload()}
	after := &RebuildConfig{Name: "x", Notes: "new", Payload: DefaultPayload()}
	after.Payload.Seasons = []int{2023}
	after.Payload.RateLimitPerMinute = 42

	diff := computeDiff(before, after)
	assert.Len(t, diff, 3)
	assert.Equal(t, map[string]any{"old": "old", "new": "new"}, diff["notes"])
	assert.Contains(t, diff, "seasons")
	assert.Contains(t, diff, "rate_limit_per_minute")
	assert.NotContains(t, diff, "name")
	assert.NotContains(t, diff, "rate_limit_per_day")
}

func TestComputeDiffSliceOrderMatters(t *testing.T) {
	before := &RebuildConfig{Payload: DefaultPayload()}
	after := &RebuildConfig{Payload: DefaultPayload()}
	before.Payload.Seasons = []int{2022, 2023}
	after.Payload.Seasons = []int{2023, 2022}

	// Seasons are an ordered sequence, so reordering is a change.
	assert.Contains(t, computeDiff(before, after), "seasons")
}

func TestPayloadValidateRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Payload)
	}{
		{"duplicate league", func(p *Payload) { p.LeagueIDs = []int{39, 39} }},
		{"duplicate season", func(p *Payload) { p.Seasons = []int{2023, 2023} }},
		{"inactivity too high", func(p *Payload) { p.InactivityThresholdYears = 11 }},
		{"discover timeout too low", func(p *Payload) { p.CohortDiscoverTimeoutSeconds = 5 }},
		{"sync timeout too high", func(p *Payload) { p.PlayerSyncTimeoutSeconds = 10000 }},
		{"zero per-minute limit", func(p *Payload) { p.RateLimitPerMinute = 0 }},
		{"zero daily limit", func(p *Payload) { p.RateLimitPerDay = 0 }},
		{"non-numeric team key", func(p *Payload) { p.TeamIDs = map[string]string{"abc": "Chelsea"} }},
		{"blank youth league key", func(p *Payload) { p.YouthLeagues = []YouthLeague{{Name: "PL2"}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultPayload()
			tc.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}

	good := DefaultPayload()
	good.TeamIDs = map[string]string{"49": "Chelsea"}
	good.LeagueIDs = []int{39}
	good.Seasons = []int{2023, 2024}
	assert.NoError(t, good.Validate())
}
