package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"epgcacher/models"
	"epgcacher/services/normalize"
	"epgcacher/services/query"
)

// RefreshTrigger requests an immediate refresh cycle.
type RefreshTrigger interface {
	RefreshNow() bool
}

// HistoryReader lists recorded refresh cycles.
type HistoryReader interface {
	Recent(limit int) ([]models.RefreshResult, error)
}

// EPGHandler serves the guide API: snapshot, channels, status, history and
// the rendered guide file.
type EPGHandler struct {
	Query     *query.Service
	Refresher RefreshTrigger
	History   HistoryReader
}

// NewEPGHandler creates a new EPGHandler.
func NewEPGHandler(querySvc *query.Service, refresher RefreshTrigger, history HistoryReader) *EPGHandler {
	return &EPGHandler{Query: querySvc, Refresher: refresher, History: history}
}

// GetStatus returns the refresh engine status.
func (h *EPGHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Query.Status())
}

// GetSnapshot returns the full current snapshot.
func (h *EPGHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Query.Snapshot()
	if err != nil {
		h.respondCacheError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// GetChannels returns the current channel list.
func (h *EPGHandler) GetChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.Query.Channels()
	if err != nil {
		h.respondCacheError(w, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	respondJSON(w, http.StatusOK, channels)
}

// GetProgrammes returns the programmes of one channel. Unknown channels in
// a warmed-up cache yield an empty list.
func (h *EPGHandler) GetProgrammes(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelID"]
	programmes, err := h.Query.Programmes(channelID)
	if err != nil {
		h.respondCacheError(w, err)
		return
	}
	if programmes == nil {
		programmes = []models.Programme{}
	}
	respondJSON(w, http.StatusOK, programmes)
}

// GetHistory returns recent refresh cycle outcomes, newest first.
func (h *EPGHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 200 {
		limit = 200
	}

	results, err := h.History.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load refresh history")
		return
	}
	if results == nil {
		results = []models.RefreshResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// TriggerRefresh queues an immediate refresh cycle.
func (h *EPGHandler) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	if h.Refresher.RefreshNow() {
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "refresh queued"})
		return
	}
	respondJSON(w, http.StatusConflict, map[string]string{"status": "refresh already pending"})
}

// GetGuideXML serves the current snapshot rendered as an XMLTV document,
// the format DVR frontends point at directly.
func (h *EPGHandler) GetGuideXML(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Query.Snapshot()
	if err != nil {
		h.respondCacheError(w, err)
		return
	}

	data, err := normalize.RenderXMLTV(snapshot, false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to render guide")
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("X-Generation-Id", strconv.FormatUint(snapshot.GenerationID, 10))
	w.Write(data)
}

func (h *EPGHandler) respondCacheError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotWarmedUp) {
		respondError(w, http.StatusServiceUnavailable, "guide cache is not warmed up yet")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
