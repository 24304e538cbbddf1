package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/aeon-gateway/internal/console/service"
)

type AgentHandler struct {
	service *service.AgentService
	logger  *zap.Logger
}

func NewAgentHandler(s *service.AgentService, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{service: s, logger: logger}
}

// List возвращает реестр агентов
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.service.ListAgents(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch agents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agents)
}

// Get возвращает карточку агента по DID
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")
	if did == "" {
		http.Error(w, "did is required", http.StatusBadRequest)
		return
	}

	agent, err := h.service.GetAgent(r.Context(), did)
	if err != nil {
		http.Error(w, "Agent not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agent)
}

// Revoke — необратимый отзыв идентичности (kill-switch шлюза)
func (h *AgentHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")
	if did == "" {
		http.Error(w, "did is required", http.StatusBadRequest)
		return
	}

	// Ждем завершения и БД, и Redis-сигнала, чтобы гарантировать безопасность
	if err := h.service.RevokeAgent(r.Context(), did); err != nil {
		h.logger.Error("failed to revoke agent", zap.String("did", did), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
