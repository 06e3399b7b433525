package retrieval

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/helioscope/platform/pkg/common/logger"
)

type HTTPHandler struct {
	service *Service
	maxBody int64
}

func NewHTTPHandler(service *Service, maxBody int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxBody: maxBody}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/searches", h.handleSearch).Methods(http.MethodPost)
	router.HandleFunc("/cutouts", h.handleCutouts).Methods(http.MethodPost)
	router.HandleFunc("/requests/{id}", h.handleGetRequest).Methods(http.MethodGet)
}

type searchRequest struct {
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

func (h *HTTPHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid search payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.EndTime.After(req.StartTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return
	}

	overrides := make([]Attribute, 0, len(req.Overrides))
	for name, value := range req.Overrides {
		overrides = append(overrides, NewAttribute(name, value))
	}

	found, err := h.service.SearchEvents(r.Context(), req.StartTime, req.EndTime, overrides)
	if err != nil {
		logger.Log.WithError(err).Error("event search failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":  len(found),
		"events": found,
	})
}

type cutoutRequest struct {
	EventIDs []string `json:"event_ids"`
	Cadence  int      `json:"cadence,omitempty"` // seconds between frames
}

type cutoutResult struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	RecordID uint   `json:"record_id"`
	Files    int    `json:"files"`
}

func (h *HTTPHandler) handleCutouts(w http.ResponseWriter, r *http.Request) {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}

	var req cutoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.WithError(err).Warn("invalid cutout payload")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.EventIDs) == 0 {
		http.Error(w, "event_ids required", http.StatusBadRequest)
		return
	}

	var extra []Attribute
	if req.Cadence > 0 {
		extra = append(extra, NewAttribute("cadence", req.Cadence))
	}

	clients, err := h.service.RequestCutouts(r.Context(), req.EventIDs, extra)
	if err != nil {
		logger.Log.WithError(err).Error("cutout batch failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	results := make([]cutoutResult, 0, len(clients))
	for _, client := range clients {
		results = append(results, cutoutResult{
			JobID:    client.JobID(),
			Status:   string(client.Status()),
			RecordID: client.RecordID(),
			Files:    len(client.Files()),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"results": results})
}

func (h *HTTPHandler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "invalid request id", http.StatusBadRequest)
		return
	}

	rec, err := h.service.GetRequest(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "request not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load request record")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	type paramView struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	params := make([]paramView, 0, len(rec.Attributes))
	for _, attr := range rec.Attributes {
		params = append(params, paramView{Name: attr.Name, Value: attr.WireValue()})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":         rec.ID,
		"kind":       rec.Kind,
		"status":     rec.Status,
		"job_id":     rec.JobID,
		"event_id":   rec.EventID,
		"parameters": params,
	})
}
