package syncer

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/magangradar/platform/pkg/common/logger"
	"github.com/magangradar/platform/pkg/vacancy"
)

// Handler exposes the sync trigger and observation endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/sync/provinces", h.handleSyncProvinces).Methods(http.MethodPost)
	r.HandleFunc("/sync/incremental", h.handleRunIncremental).Methods(http.MethodPost)
	r.HandleFunc("/sync/full", h.handleTriggerFull).Methods(http.MethodPost)
	r.HandleFunc("/sync/full/blocking", h.handleRunFullBlocking).Methods(http.MethodPost)
	r.HandleFunc("/sync/full/status", h.handleFullStatus).Methods(http.MethodGet)
	r.HandleFunc("/sync/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/sync/runs/{id}", h.handleGetRun).Methods(http.MethodGet)
}

func (h *Handler) handleSyncProvinces(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.RunProvinces(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("Province refresh failed")
		http.Error(w, "province refresh failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"total": total})
}

func (h *Handler) handleRunIncremental(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.RunIncremental(r.Context())
	if err != nil {
		respondRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleTriggerFull(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartFullAsync(); err != nil {
		respondRunError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "accepted"})
}

func (h *Handler) handleRunFullBlocking(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.RunFull(r.Context())
	if err != nil {
		respondRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) handleFullStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.FullStatus())
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := h.service.RecentRuns(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list sync runs")
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.service.GetRun(r.Context(), id)
	if errors.Is(err, vacancy.ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to load sync run")
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func respondRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSyncAlreadyRunning) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	logger.Log.WithError(err).Error("Sync trigger failed")
	http.Error(w, "sync trigger failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}
