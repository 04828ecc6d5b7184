package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/chat-control-plane/internal/console/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetCommands возвращает архив админ-команд с поддержкой фильтрации
// GET /api/admin/audit?admin_id=...&type=...&limit=...
func (h *AuditHandler) GetCommands(w http.ResponseWriter, r *http.Request) {
	// Извлекаем фильтры из Query-параметров
	adminID := r.URL.Query().Get("admin_id")
	cmdType := r.URL.Query().Get("type")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.service.FetchCommands(r.Context(), adminID, cmdType, limit)
	if err != nil {
		http.Error(w, "Failed to fetch audit records", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}
