package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"epgcacher/models"
	"epgcacher/services/mapping"
	"epgcacher/services/query"
)

// IconChannelLister provides the channels seen from artwork-only sources.
type IconChannelLister interface {
	IconChannels() []models.Channel
}

// MappingsHandler manages the guide-to-icon channel mapping.
type MappingsHandler struct {
	Store *mapping.Store
	Query *query.Service
	Icons IconChannelLister
}

// NewMappingsHandler creates a new MappingsHandler.
func NewMappingsHandler(store *mapping.Store, querySvc *query.Service, icons IconChannelLister) *MappingsHandler {
	return &MappingsHandler{Store: store, Query: querySvc, Icons: icons}
}

// ListMappings returns all mappings sorted by guide channel.
func (h *MappingsHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	entries := h.Store.List()
	if entries == nil {
		entries = []mapping.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// AddMapping inserts or updates one mapping.
func (h *MappingsHandler) AddMapping(w http.ResponseWriter, r *http.Request) {
	var entry mapping.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Store.Add(entry.GuideChannel, entry.IconChannel); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// DeleteMapping removes the mapping for one guide channel.
func (h *MappingsHandler) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	guideChannel := mux.Vars(r)["guideChannel"]
	removed, err := h.Store.Delete(guideChannel)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "no mapping for channel "+guideChannel)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GetStats returns mapping counts.
func (h *MappingsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Store.Stats())
}

// GetSuggestions proposes pairings between unmapped guide channels and the
// artwork source's channels, matched by folded display name.
func (h *MappingsHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	guideChannels, err := h.Query.Channels()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "guide cache is not warmed up yet")
		return
	}

	suggestions := h.Store.Suggest(guideChannels, h.Icons.IconChannels())
	if suggestions == nil {
		suggestions = []mapping.Entry{}
	}
	respondJSON(w, http.StatusOK, suggestions)
}
