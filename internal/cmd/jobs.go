package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/webhaul/webhaul/internal/errors"
	"github.com/webhaul/webhaul/pkg/jobqueue"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs on a running webhaul server",
	Long: `Talk to a running webhaul instance over its HTTP API.

This command group is designed to be agent-friendly:

- stable job ids
- predictable endpoints
- optional JSON output for machine parsing`,
}

var jobsStartCmd = &cobra.Command{
	Use:   "start <url>",
	Short: "Admit a new scraping job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStart,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsStopCmd = &cobra.Command{
	Use:   "stop <job_id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStop,
}

var jobsInputCmd = &cobra.Command{
	Use:   "input <job_id> <value>",
	Short: "Answer a job's human input prompt",
	Args:  cobra.ExactArgs(2),
	RunE:  runJobsInput,
}

var jobsServerURL string

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsStartCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsStopCmd)
	jobsCmd.AddCommand(jobsInputCmd)

	jobsCmd.PersistentFlags().StringVar(&jobsServerURL, "server", "http://localhost:8080", "Base URL of the webhaul server")

	jobsStartCmd.Flags().String("client-id", "cli", "Client id to attribute the job to")
	jobsStartCmd.Flags().StringToString("config", nil, "Job config entries (key=value)")
	jobsStartCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func apiURL(path string) string {
	return strings.TrimRight(jobsServerURL, "/") + path
}

// doAPI performs one API call and decodes the response into out. Non-2xx
// responses are surfaced via the server's error envelope.
func doAPI(method, url string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var envelope apperrors.HTTPErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runJobsStart(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	clientID, _ := cmd.Flags().GetString("client-id")
	configEntries, _ := cmd.Flags().GetStringToString("config")

	jobConfig := make(map[string]any, len(configEntries))
	for k, v := range configEntries {
		jobConfig[k] = v
	}

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	err := doAPI(http.MethodPost, apiURL("/api/v1/scrape/start"), map[string]any{
		"target":    args[0],
		"client_id": clientID,
		"config":    jobConfig,
	}, &resp)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Printf("job_id=%s\nstatus=%s\n", resp.JobID, resp.Status)
	return nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var resp struct {
		Jobs  []jobqueue.JobRecord `json:"jobs"`
		Count int                  `json:"count"`
	}
	if err := doAPI(http.MethodGet, apiURL("/api/v1/scrape/jobs"), nil, &resp); err != nil {
		return err
	}

	if len(resp.Jobs) == 0 {
		fmt.Println("No active jobs")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "JOB ID\tCLIENT\tSTATUS\tPROGRESS\tACTION\tCREATED")
	for _, j := range resp.Jobs {
		action := j.CurrentAction
		if action == "" {
			action = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			shortJobID(j.JobID),
			j.ClientID,
			j.Status,
			j.ProgressPercent,
			action,
			j.CreatedAt.UTC().Format(time.RFC3339),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	var rec jobqueue.JobRecord
	url := apiURL("/api/v1/scrape/status/" + strings.TrimSpace(args[0]))
	if err := doAPI(http.MethodGet, url, nil, &rec); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Printf("job_id=%s\n", rec.JobID)
	fmt.Printf("client_id=%s\n", rec.ClientID)
	fmt.Printf("target=%s\n", rec.Target)
	fmt.Printf("status=%s\n", rec.Status)
	if rec.CurrentAction != "" {
		fmt.Printf("current_action=%s\n", rec.CurrentAction)
	}
	fmt.Printf("progress=%d%%\n", rec.ProgressPercent)
	if rec.RequiresHumanInput {
		fmt.Printf("awaiting_input=%s\n", rec.HumanInputPrompt)
	}
	if rec.Error != "" {
		fmt.Printf("error=%s\n", rec.Error)
	}
	fmt.Printf("created_at=%s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	if rec.StartedAt != nil {
		fmt.Printf("started_at=%s\n", rec.StartedAt.UTC().Format(time.RFC3339))
	}
	if rec.CompletedAt != nil {
		fmt.Printf("completed_at=%s\n", rec.CompletedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runJobsStop(_ *cobra.Command, args []string) error {
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	url := apiURL("/api/v1/scrape/stop/" + strings.TrimSpace(args[0]))
	if err := doAPI(http.MethodPost, url, nil, &resp); err != nil {
		return err
	}
	fmt.Printf("job_id=%s\nstatus=%s\n", resp.JobID, resp.Status)
	return nil
}

func runJobsInput(_ *cobra.Command, args []string) error {
	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	err := doAPI(http.MethodPost, apiURL("/api/v1/scrape/human-input"), map[string]any{
		"job_id": strings.TrimSpace(args[0]),
		"value":  args[1],
	}, &resp)
	if err != nil {
		return err
	}
	fmt.Printf("job_id=%s\nstatus=%s\n", resp.JobID, resp.Status)
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}
