package endpoints

import (
	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/defra"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	DefraManager    *defra.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&StatusEndpoint{DefraManager: cfg.DefraManager},

		// Job endpoints
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&DeleteJobEndpoint{},
		&RetryJobEndpoint{},
		&CancelJobEndpoint{},
		&JobMetricsEndpoint{},

		// Queue endpoints
		&QueueStatusEndpoint{},
		&QueuePauseEndpoint{Paused: true},
		&QueuePauseEndpoint{Paused: false},

		// Library endpoints
		&ListLibraryEndpoint{},
		&GetLibraryBookEndpoint{},

		// Settings endpoints
		&ListSettingsEndpoint{},
		&UpdateSettingEndpoint{},
		&ResetSettingEndpoint{},

		&ListVoicesEndpoint{},
		&ListEventsEndpoint{},

		// Swagger
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
