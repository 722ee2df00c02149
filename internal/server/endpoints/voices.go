package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// VoicesResponse lists the voices offered by the TTS backend. Cached is set
// when the backend is down and the list comes from the last sync.
type VoicesResponse struct {
	Voices  []string `json:"voices"`
	Default string   `json:"default"`
	Cached  bool     `json:"cached,omitempty"`
}

// ListVoicesEndpoint handles GET /api/voices.
type ListVoicesEndpoint struct{}

func (e *ListVoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/voices", e.handler
}

func (e *ListVoicesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List voices
//	@Description	Voices reported by the TTS backend, or the last synced list while it is down, and the voice used when a job names none
//	@Tags			voices
//	@Produce		json
//	@Success		200	{object}	VoicesResponse
//	@Failure		502	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/voices [get]
func (e *ListVoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	client := svcctx.TTSFrom(r.Context())
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, "tts client not initialized")
		return
	}

	var (
		voices []string
		cached bool
		err    error
	)
	if catalog := svcctx.VoicesFrom(r.Context()); catalog != nil {
		voices, cached, err = catalog.List(r.Context())
	} else {
		voices, err = client.Voices(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if voices == nil {
		voices = []string{}
	}

	def := client.DefaultVoice()
	if cm := svcctx.ConfigManagerFrom(r.Context()); cm != nil {
		def = cm.Get().TTS.DefaultVoice
	}
	writeJSON(w, http.StatusOK, VoicesResponse{Voices: voices, Default: def, Cached: cached})
}

func (e *ListVoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp VoicesResponse
			if err := client.Get(cmd.Context(), "/api/voices", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
