package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/jackzampolin/narrator/docs/swagger"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/server"
	"github.com/jackzampolin/narrator/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

//	@title			Narrator API
//	@version		1.0
//	@description	Queue EPUBs for narration and watch the worker.
//	@BasePath		/

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Narrator server",
	Long: `Start the Narrator HTTP server and queue worker.

With defra.enabled (the default) this also starts the DefraDB container,
which is stopped again when the server shuts down (via Ctrl+C or SIGTERM).
Set defra.enabled to false to keep jobs in memory.

The server provides:
  - /health  - Component health (backend, folders, store, worker)
  - /status  - Storage backend and queue state
  - /api/... - Jobs, queue, library, settings, voices and events

Examples:
  narrator serve                    # Start on the configured port (8080)
  narrator serve --port 3000        # Start on custom port
  narrator serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		cm, err := loadConfig(h)
		if err != nil {
			return err
		}

		logger := newLogger(os.Stdout, cm.Get().Log)
		slog.SetDefault(logger)
		if f := cm.File(); f != "" {
			logger.Info("using config file", "path", f)
			cm.WatchConfig(logger)
		} else {
			logger.Info("no config file found, using defaults and environment")
		}

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   cm,
			Home:            h,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from server.port)")

	rootCmd.AddCommand(serveCmd)
}

// newLogger builds the slog handler selected by the log section.
func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
