package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/aeon-gateway/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает записи трейла с поддержкой фильтрации
// GET /v1/audit?intent_id=...&agent_did=...&stage=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	// Извлекаем фильтры из Query-параметров
	intentID := r.URL.Query().Get("intent_id")
	agentDID := r.URL.Query().Get("agent_did")
	stage := r.URL.Query().Get("stage")

	logs, err := h.service.FetchLogs(r.Context(), intentID, agentDID, stage)
	if err != nil {
		http.Error(w, "Failed to fetch audit trail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(logs)
}
