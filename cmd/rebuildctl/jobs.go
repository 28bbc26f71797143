package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitchside/rebuild-server/pkg/poll"
	"github.com/pitchside/rebuild-server/pkg/server"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage batch seed jobs",
}

var (
	enqueueConfigID string
	enqueueWatch    bool
	watchInterval   time.Duration
)

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a batch seed for a config (default: the active config)",
	RunE:  runJobsEnqueue,
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one seed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsGet,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List seed jobs, newest first",
	RunE:  runJobsList,
}

var jobsWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a seed job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsWatch,
}

func init() {
	jobsEnqueueCmd.Flags().StringVar(&enqueueConfigID, "config", "", "Config id to seed (empty uses the active config)")
	jobsEnqueueCmd.Flags().BoolVar(&enqueueWatch, "watch", false, "Watch the job after queueing it")
	jobsWatchCmd.Flags().DurationVar(&watchInterval, "interval", poll.DefaultInterval, "Poll interval")
	jobsEnqueueCmd.Flags().DurationVar(&watchInterval, "interval", poll.DefaultInterval, "Poll interval when --watch is set")

	jobsCmd.AddCommand(jobsEnqueueCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsWatchCmd)
}

type jobView struct {
	ID          string `json:"id"`
	ConfigID    string `json:"configId"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Total       int    `json:"total"`
	CurrentItem string `json:"currentItem"`
	Error       string `json:"error"`
	RequestedAt string `json:"requestedAt"`
}

var jobHeaders = []string{"ID", "Config", "Status", "Progress", "Current", "Error"}

func jobRow(j jobView) []string {
	return []string{
		j.ID,
		j.ConfigID,
		j.Status,
		fmt.Sprintf("%d/%d", j.Progress, j.Total),
		truncate(j.CurrentItem, 30),
		truncate(j.Error, 40),
	}
}

func runJobsEnqueue(cmd *cobra.Command, args []string) error {
	client := newClient()

	body := map[string]string{"requestedBy": "rebuildctl"}
	if enqueueConfigID != "" {
		body["configId"] = enqueueConfigID
	}

	var job jobView
	if err := client.postJSON("/seed-jobs", body, &job); err != nil {
		return err
	}
	fmt.Printf("Queued seed job %s (%d units)\n", job.ID, job.Total)

	if enqueueWatch {
		return watchJob(job.ID)
	}
	return nil
}

func runJobsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var job jobView
	if err := client.getJSON("/seed-jobs/"+args[0], &job); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(job)
	}
	printTable(jobHeaders, [][]string{jobRow(job)})
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Jobs      []jobView `json:"jobs"`
		TotalSize int       `json:"totalSize"`
	}
	if err := client.getJSON("/seed-jobs", &resp); err != nil {
		return err
	}
	if outputFmt != "table" {
		return printOutput(resp)
	}
	rows := make([][]string, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		rows = append(rows, jobRow(j))
	}
	printTable(jobHeaders, rows)
	if resp.TotalSize > len(resp.Jobs) {
		fmt.Printf("(%d of %d jobs shown)\n", len(resp.Jobs), resp.TotalSize)
	}
	return nil
}

func runJobsWatch(cmd *cobra.Command, args []string) error {
	return watchJob(args[0])
}

// watchJob polls the job on the configured cadence, printing each progress
// change, until the job reaches a terminal state or the user interrupts.
func watchJob(jobID string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := poll.HTTPFetcher(nil, serverURL()+server.APIBasePath, jobID)

	var (
		lastLine string
		result   poll.JobSnapshot
		finished bool
	)
	p := poll.New(fetcher,
		poll.WithInterval(watchInterval),
		poll.OnUpdate(func(s poll.JobSnapshot) {
			line := fmt.Sprintf("%s %d/%d %s", s.Status, s.Progress, s.Total, s.CurrentItem)
			if line != lastLine {
				fmt.Println(line)
				lastLine = line
			}
		}),
		poll.OnTerminal(func(s poll.JobSnapshot) {
			result = s
			finished = true
		}),
	)
	p.Watch(ctx)

	if !finished {
		fmt.Fprintln(os.Stderr, "watch interrupted; the job keeps running server-side")
		return nil
	}
	if result.Status == "failed" {
		return fmt.Errorf("seed job failed after %d units: %s", result.Progress, result.Error)
	}
	fmt.Printf("Seed job completed: %d/%d units\n", result.Progress, result.Total)
	return nil
}
