package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var cohortsCmd = &cobra.Command{
	Use:   "cohorts",
	Short: "Inspect and seed player cohorts",
}

var (
	seedTeamID   int
	seedLeagueID int
	seedSeason   int
)

var cohortsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cohorts with their sync status",
	RunE:  runCohortsList,
}

var cohortsGetCmd = &cobra.Command{
	Use:   "get <cohort-id>",
	Short: "Show one cohort",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortsGet,
}

var cohortsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a single cohort synchronously under the active config",
	RunE:  runCohortsSeed,
}

var cohortsSyncJourneysCmd = &cobra.Command{
	Use:   "sync-journeys <cohort-id>",
	Short: "Re-run journey discovery for a cohort's players",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortsSyncJourneys,
}

var cohortsRefreshStatsCmd = &cobra.Command{
	Use:   "refresh-stats <cohort-id>",
	Short: "Recompute a cohort's derived player count",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortsRefreshStats,
}

var cohortsDeleteCmd = &cobra.Command{
	Use:   "delete <cohort-id>",
	Short: "Delete a cohort and its player rows",
	Args:  cobra.ExactArgs(1),
	RunE:  runCohortsDelete,
}

func init() {
	cohortsSeedCmd.Flags().IntVar(&seedTeamID, "team", 0, "Provider team id")
	cohortsSeedCmd.Flags().IntVar(&seedLeagueID, "league", 0, "Provider league id")
	cohortsSeedCmd.Flags().IntVar(&seedSeason, "season", 0, "Season start year")
	_ = cohortsSeedCmd.MarkFlagRequired("team")
	_ = cohortsSeedCmd.MarkFlagRequired("league")
	_ = cohortsSeedCmd.MarkFlagRequired("season")

	cohortsCmd.AddCommand(cohortsListCmd)
	cohortsCmd.AddCommand(cohortsGetCmd)
	cohortsCmd.AddCommand(cohortsSeedCmd)
	cohortsCmd.AddCommand(cohortsSyncJourneysCmd)
	cohortsCmd.AddCommand(cohortsRefreshStatsCmd)
	cohortsCmd.AddCommand(cohortsDeleteCmd)
}

type cohortView struct {
	ID         string `json:"id"`
	TeamName   string `json:"teamName"`
	LeagueName string `json:"leagueName"`
	Season     int    `json:"season"`
	SyncStatus string `json:"syncStatus"`
	LastError  string `json:"lastError"`
	Analytics  struct {
		TotalPlayers int `json:"totalPlayers"`
	} `json:"analytics"`
}

func cohortRow(c cohortView) []string {
	return []string{
		c.ID,
		c.TeamName,
		c.LeagueName,
		strconv.Itoa(c.Season),
		c.SyncStatus,
		strconv.Itoa(c.Analytics.TotalPlayers),
		truncate(c.LastError, 40),
	}
}

var cohortHeaders = []string{"ID", "Team", "League", "Season", "Status", "Players", "Last Error"}

func runCohortsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Cohorts []cohortView `json:"cohorts"`
	}
	if err := client.getJSON("/cohorts", &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}
	rows := make([][]string, 0, len(resp.Cohorts))
	for _, c := range resp.Cohorts {
		rows = append(rows, cohortRow(c))
	}
	printTable(cohortHeaders, rows)
	return nil
}

func runCohortsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var c cohortView
	if err := client.getJSON("/cohorts/"+args[0], &c); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(c)
	}
	printTable(cohortHeaders, [][]string{cohortRow(c)})
	return nil
}

func runCohortsSeed(cmd *cobra.Command, args []string) error {
	client := newClient()

	body := map[string]int{
		"teamId":   seedTeamID,
		"leagueId": seedLeagueID,
		"season":   seedSeason,
	}
	fmt.Printf("Seeding team %d, league %d, season %d...\n", seedTeamID, seedLeagueID, seedSeason)

	var c cohortView
	if err := client.postJSON("/cohorts:seed", body, &c); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(c)
	}
	printTable(cohortHeaders, [][]string{cohortRow(c)})
	return nil
}

func runCohortsSyncJourneys(cmd *cobra.Command, args []string) error {
	client := newClient()

	var c cohortView
	if err := client.postJSON("/cohorts/"+args[0]+":syncJourneys", nil, &c); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(c)
	}
	printTable(cohortHeaders, [][]string{cohortRow(c)})
	return nil
}

func runCohortsRefreshStats(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.postJSON("/cohorts/"+args[0]+":refreshStats", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Cohort %v now has %v players\n", resp["id"], resp["totalPlayers"])
	return nil
}

func runCohortsDelete(cmd *cobra.Command, args []string) error {
	client := newClient()
	if err := client.delete("/cohorts/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted cohort %s\n", args[0])
	return nil
}
