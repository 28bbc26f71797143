package rebuildconfig

import "reflect"

// fieldPair holds the before/after values of one changed field.
func fieldPair(old, new any) map[string]any {
	return map[string]any{"old": old, "new": new}
}

// computeDiff compares two config snapshots field by field and returns a map
// of changed field name to {old, new}. Unchanged fields are omitted. Field
// names match the payload's JSON tags so history reads the same as the API.
func computeDiff(before, after *RebuildConfig) JSONMap {
	diff := JSONMap{}

	if before.Name != after.Name {
		diff["name"] = fieldPair(before.Name, after.Name)
	}
	if before.Notes != after.Notes {
		diff["notes"] = fieldPair(before.Notes, after.Notes)
	}
	if before.IsActive != after.IsActive {
		diff["is_active"] = fieldPair(before.IsActive, after.IsActive)
	}

	bp, ap := before.Payload, after.Payload
	if !reflect.DeepEqual(bp.TeamIDs, ap.TeamIDs) {
		diff["team_ids"] = fieldPair(bp.TeamIDs, ap.TeamIDs)
	}
	if !reflect.DeepEqual(bp.LeagueIDs, ap.LeagueIDs) {
		diff["league_ids"] = fieldPair(bp.LeagueIDs, ap.LeagueIDs)
	}
	if !reflect.DeepEqual(bp.Seasons, ap.Seasons) {
		diff["seasons"] = fieldPair(bp.Seasons, ap.Seasons)
	}
	if !reflect.DeepEqual(bp.YouthLeagues, ap.YouthLeagues) {
		diff["youth_leagues"] = fieldPair(bp.YouthLeagues, ap.YouthLeagues)
	}
	if bp.UseTransfersForStatus != ap.UseTransfersForStatus {
		diff["use_transfers_for_status"] = fieldPair(bp.UseTransfersForStatus, ap.UseTransfersForStatus)
	}
	if bp.AssumeFullMinutes != ap.AssumeFullMinutes {
		diff["assume_full_minutes"] = fieldPair(bp.AssumeFullMinutes, ap.AssumeFullMinutes)
	}
	if bp.InactivityThresholdYears != ap.InactivityThresholdYears {
		diff["inactivity_threshold_years"] = fieldPair(bp.InactivityThresholdYears, ap.InactivityThresholdYears)
	}
	if bp.CohortDiscoverTimeoutSeconds != ap.CohortDiscoverTimeoutSeconds {
		diff["cohort_discover_timeout_seconds"] = fieldPair(bp.CohortDiscoverTimeoutSeconds, ap.CohortDiscoverTimeoutSeconds)
	}
	if bp.PlayerSyncTimeoutSeconds != ap.PlayerSyncTimeoutSeconds {
		diff["player_sync_timeout_seconds"] = fieldPair(bp.PlayerSyncTimeoutSeconds, ap.PlayerSyncTimeoutSeconds)
	}
	if bp.RateLimitPerMinute != ap.RateLimitPerMinute {
		diff["rate_limit_per_minute"] = fieldPair(bp.RateLimitPerMinute, ap.RateLimitPerMinute)
	}
	if bp.RateLimitPerDay != ap.RateLimitPerDay {
		diff["rate_limit_per_day"] = fieldPair(bp.RateLimitPerDay, ap.RateLimitPerDay)
	}

	return diff
}
