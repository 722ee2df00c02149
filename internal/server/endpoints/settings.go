package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrator/internal/api"
	"github.com/jackzampolin/narrator/internal/config"
	"github.com/jackzampolin/narrator/internal/svcctx"
)

// Setting is one runtime setting as the server currently applies it.
type Setting struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Default     any    `json:"default"`
	Description string `json:"description"`
	Overridden  bool   `json:"overridden"`
}

// SettingsResponse lists every runtime setting.
type SettingsResponse struct {
	Settings []Setting `json:"settings"`
}

// UpdateSettingRequest is the body for changing a setting.
type UpdateSettingRequest struct {
	Value any `json:"value"`
}

// ListSettingsEndpoint handles GET /api/settings.
type ListSettingsEndpoint struct{}

func (e *ListSettingsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings", e.handler
}

func (e *ListSettingsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List settings
//	@Description	Runtime settings with their effective value, built-in default and whether an override is stored
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/settings [get]
func (e *ListSettingsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	settings, err := currentSettings(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}

func currentSettings(ctx context.Context) ([]Setting, error) {
	cm := svcctx.ConfigManagerFrom(ctx)
	store := svcctx.SettingStoreFrom(ctx)
	if cm == nil || store == nil {
		return nil, errNotReady
	}
	stored, err := store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	cfg := cm.Get()
	var out []Setting
	for _, def := range config.DefaultEntries() {
		value, err := config.Value(cfg, def.Key)
		if err != nil {
			return nil, err
		}
		_, overridden := stored[def.Key]
		out = append(out, Setting{
			Key:         def.Key,
			Value:       value,
			Default:     def.Value,
			Description: def.Description,
			Overridden:  overridden,
		})
	}
	return out, nil
}

// UpdateSettingEndpoint handles PUT /api/settings/{key}.
type UpdateSettingEndpoint struct{}

func (e *UpdateSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/settings/{key...}", e.handler
}

func (e *UpdateSettingEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update setting
//	@Description	Store an override. The value must have the same JSON type as the default
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string					true	"Setting key, e.g. worker.paused"
//	@Param			request	body		UpdateSettingRequest	true	"New value"
//	@Success		200		{object}	SettingsResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/settings/{key} [put]
func (e *UpdateSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := svcctx.SettingStoreFrom(ctx)
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, errNotReady.Error())
		return
	}

	var req UpdateSettingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	if err := config.SetSetting(ctx, store, r.PathValue("key"), req.Value); err != nil {
		writeErr(w, err)
		return
	}
	refreshSettings(w, r)
}

func (e *UpdateSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Override a runtime setting",
		Long: `Override a runtime setting.

Values are parsed as booleans or numbers where possible, otherwise sent as
text. Use "narrator api settings list" to see the keys.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := UpdateSettingRequest{Value: parseSettingValue(args[1])}
			var resp SettingsResponse
			if err := client.Put(cmd.Context(), "/api/settings/"+args[0], req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// parseSettingValue picks the JSON type for a value typed on the command line.
func parseSettingValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// ResetSettingEndpoint handles POST /api/settings/reset/{key}.
type ResetSettingEndpoint struct{}

func (e *ResetSettingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/settings/reset/{key...}", e.handler
}

func (e *ResetSettingEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reset setting
//	@Description	Remove an override so the config file value applies again
//	@Tags			settings
//	@Produce		json
//	@Param			key	path		string	true	"Setting key"
//	@Success		200	{object}	SettingsResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/settings/reset/{key} [post]
func (e *ResetSettingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := svcctx.SettingStoreFrom(ctx)
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, errNotReady.Error())
		return
	}
	if err := config.ResetToDefault(ctx, store, r.PathValue("key")); err != nil {
		writeErr(w, err)
		return
	}
	refreshSettings(w, r)
}

func (e *ResetSettingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <key>",
		Short: "Remove a runtime override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingsResponse
			if err := client.Post(cmd.Context(), "/api/settings/reset/"+args[0], nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func (e *ListSettingsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runtime settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SettingsResponse
			if err := client.Get(cmd.Context(), "/api/settings", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// refreshSettings applies stored overrides to the running services and
// answers with the resulting settings.
func refreshSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if cm := svcctx.ConfigManagerFrom(ctx); cm != nil {
		if err := cm.Refresh(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("setting stored but not applied: %v", err))
			return
		}
	}
	settings, err := currentSettings(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{Settings: settings})
}
