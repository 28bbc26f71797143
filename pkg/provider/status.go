package provider

// Status is the read-only snapshot served by the status endpoint. It is
// advisory only: it informs the operator whether a batch seed is worth
// attempting and never throttles a request itself.
type Status struct {
	Mode           Mode `json:"mode"`
	KeyConfigured  bool `json:"keyConfigured"`
	CallsToday     int  `json:"callsToday"`
	DailyQuota     int  `json:"dailyQuota"`
	PerMinuteQuota int  `json:"perMinuteQuota"`
	CacheEntries   int  `json:"cacheEntries"`
}

// Snapshot assembles a Status from the client, usage tracker, and cache.
// The quota numbers come from the active rebuild config; callers pass zero
// when no config is active.
func Snapshot(client Client, usage *UsageTracker, cache *ResponseCache, perMinuteQuota, dailyQuota int) Status {
	st := Status{
		Mode:           client.Mode(),
		KeyConfigured:  client.KeyConfigured(),
		PerMinuteQuota: perMinuteQuota,
		DailyQuota:     dailyQuota,
	}
	if usage != nil {
		st.CallsToday = usage.Today()
	}
	if cache != nil {
		st.CacheEntries = cache.Len()
	}
	return st
}
