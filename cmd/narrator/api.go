package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Narrator server via HTTP.

These commands require a running server (narrator serve).
Use --server to specify a custom server URL.

Examples:
  narrator api health                   # Check server health
  narrator api jobs create book.epub    # Queue a book
  narrator api jobs list --status failed
  narrator api queue pause              # Pause the queue`,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Narration job commands",
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue worker commands",
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Source ebook library commands",
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Runtime settings commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ListVoicesEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ListEventsEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	jobsCmd.AddCommand((&endpoints.CreateJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.ListJobsEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.GetJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.RetryJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.CancelJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.DeleteJobEndpoint{}).Command(getServerURL))
	jobsCmd.AddCommand((&endpoints.JobMetricsEndpoint{}).Command(getServerURL))

	queueCmd.AddCommand((&endpoints.QueueStatusEndpoint{}).Command(getServerURL))
	queueCmd.AddCommand((&endpoints.QueuePauseEndpoint{Paused: true}).Command(getServerURL))
	queueCmd.AddCommand((&endpoints.QueuePauseEndpoint{Paused: false}).Command(getServerURL))

	libraryCmd.AddCommand((&endpoints.ListLibraryEndpoint{}).Command(getServerURL))
	libraryCmd.AddCommand((&endpoints.GetLibraryBookEndpoint{}).Command(getServerURL))

	settingsCmd.AddCommand((&endpoints.ListSettingsEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.UpdateSettingEndpoint{}).Command(getServerURL))
	settingsCmd.AddCommand((&endpoints.ResetSettingEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(queueCmd)
	apiCmd.AddCommand(libraryCmd)
	apiCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(apiCmd)
}
