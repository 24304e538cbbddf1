package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/aeon-gateway/internal/console/service"
	"github.com/xela07ax/aeon-gateway/internal/domain"
)

type PolicyHandler struct {
	service *service.PolicyService
}

func NewPolicyHandler(s *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{service: s}
}

// GetActive возвращает действующую конституцию
// GET /v1/policies/active
func (h *PolicyHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.GetActive(r.Context())
	if err != nil {
		http.Error(w, "No active policy snapshot", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// GetVersion достает историческую версию для разбора аудита
// GET /v1/policies/{version}
func (h *PolicyHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "version")
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "version must be an integer", http.StatusBadRequest)
		return
	}

	snap, err := h.service.GetByVersion(r.Context(), version)
	if err != nil {
		http.Error(w, "Failed to retrieve snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Snapshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Publish принимает новую версию конституции целиком.
// Частичных правок нет: снапшоты неизменяемы, правка = новая версия.
func (h *PolicyHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var snap domain.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	version, err := h.service.Publish(r.Context(), &snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"version": version})
}
