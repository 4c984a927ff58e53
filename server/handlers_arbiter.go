package server

import (
	"log/slog"
	"net/http"

	"github.com/zen2281488/gayOfDay/arbiter"
	"github.com/zen2281488/gayOfDay/telemetry"
)

type arbiterView struct {
	arbiter.Config
	APIKeySet bool `json:"api_key_set"`
}

// arbiterPatch carries the fields to change; absent fields keep their value.
type arbiterPatch struct {
	Provider    *string  `json:"provider"`
	BaseURL     *string  `json:"base_url"`
	Model       *string  `json:"model"`
	APIKey      *string  `json:"api_key"`
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

func (p arbiterPatch) apply(c *arbiter.Config) {
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.BaseURL != nil {
		c.BaseURL = *p.BaseURL
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	if p.APIKey != nil {
		c.APIKey = *p.APIKey
	}
	if p.Temperature != nil {
		c.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		c.MaxTokens = *p.MaxTokens
	}
}

func viewOf(c arbiter.Config) arbiterView {
	return arbiterView{Config: c, APIKeySet: c.APIKey != ""}
}

// HandleAdminArbiter reads (GET) or updates (PUT) the completion settings.
// The API key is write-only. Updates take effect on the next arbitration
// and are persisted.
func (h *Handlers) HandleAdminArbiter(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, viewOf(h.deps.Settings.Snapshot()))
		return
	}

	var patch arbiterPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	cfg, err := h.deps.Settings.Update(patch.apply)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := telemetry.LoggerWithCorr(r.Context())
	log.Info("arbiter settings updated",
		slog.String("provider", cfg.Provider), slog.String("model", cfg.Model), slog.Bool("api_key_changed", patch.APIKey != nil))
	if h.deps.Store != nil {
		if err := h.deps.Settings.Save(r.Context(), h.deps.Store); err != nil {
			log.Error("persist arbiter settings", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "applied but not persisted: "+err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, viewOf(cfg))
}
