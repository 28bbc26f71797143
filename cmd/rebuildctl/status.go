package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider mode, quota usage, and cache size",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Mode           string `json:"mode"`
		KeyConfigured  bool   `json:"keyConfigured"`
		CallsToday     int    `json:"callsToday"`
		DailyQuota     int    `json:"dailyQuota"`
		PerMinuteQuota int    `json:"perMinuteQuota"`
		CacheEntries   int    `json:"cacheEntries"`
	}
	if err := client.getJSON("/provider/status", &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	quota := "no active config"
	if resp.DailyQuota > 0 {
		quota = fmt.Sprintf("%d/day, %d/min", resp.DailyQuota, resp.PerMinuteQuota)
	}
	printTable([]string{"Field", "Value"}, [][]string{
		{"Mode", resp.Mode},
		{"Key configured", strconv.FormatBool(resp.KeyConfigured)},
		{"Calls today", strconv.Itoa(resp.CallsToday)},
		{"Quota", quota},
		{"Cache entries", strconv.Itoa(resp.CacheEntries)},
	})
	return nil
}
