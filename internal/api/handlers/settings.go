package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pov-scribe/backend/internal/db"
)

// settingsKeys defines which keys are allowed and their display metadata.
// API keys are deliberately absent: credentials come from the process
// environment and are never persisted.
var settingsKeys = []SettingDef{
	{Key: "default_model", Label: "Recognizer Model", Group: "recognizer", Placeholder: "base"},
	{Key: "enable_diarization", Label: "Speaker Diarization", Group: "recognizer", Placeholder: "true"},
	{Key: "default_style_hint", Label: "Narrative Style Hint", Group: "narrator", Placeholder: "close third person, past tense"},
}

type SettingDef struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Group       string `json:"group"`
	Placeholder string `json:"placeholder"`
}

type SettingsHandler struct {
	database *db.Database
}

func NewSettingsHandler(database *db.Database) *SettingsHandler {
	return &SettingsHandler{database: database}
}

// GetSettings returns all settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := h.database.GetAllSettings()
	if err != nil {
		jsonError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}

	type SettingResponse struct {
		SettingDef
		Value string `json:"value"`
	}

	result := make([]SettingResponse, 0, len(settingsKeys))
	for _, def := range settingsKeys {
		result = append(result, SettingResponse{
			SettingDef: def,
			Value:      all[def.Key],
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// UpdateSettings saves settings from the request body
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Validate keys — only allow known settings
	allowed := make(map[string]bool)
	for _, def := range settingsKeys {
		allowed[def.Key] = true
	}

	for key, value := range updates {
		if !allowed[key] {
			continue
		}
		if err := h.database.SetSetting(key, value); err != nil {
			jsonError(w, "failed to save setting: "+key, http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
