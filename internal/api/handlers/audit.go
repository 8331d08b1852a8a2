// audit.go — обработчик чтения журнала аудита.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/arturkryukov/claims-admin/internal/api/middleware"
	"github.com/arturkryukov/claims-admin/internal/domain/model"
)

// auditRecordResponse — запись аудита в API.
type auditRecordResponse struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	TargetUID   string         `json:"targetUid"`
	PerformedBy string         `json:"performedBy"`
	Claims      map[string]any `json:"claims,omitempty"`
	CreatedAt   string         `json:"createdAt"`
}

// auditListResponse — страница записей аудита.
type auditListResponse struct {
	Items  []auditRecordResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// ListAudit — GET /api/v1/audit.
// Возвращает записи журнала аудита, новые первыми. Доступ: админ.
// Query-параметры: action (фильтр), limit (1-100), offset.
func (h *APIHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	callerUID := middleware.SubjectFromContext(r.Context())

	q := r.URL.Query()
	action := q.Get("action")
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit < 1 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := h.claims.ListAudit(r.Context(), callerUID, action, limit, offset)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]auditRecordResponse, len(records))
	for i, rec := range records {
		items[i] = mapAuditRecord(rec)
	}

	writeJSON(w, http.StatusOK, auditListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

// mapAuditRecord конвертирует доменную запись аудита в API-тип.
func mapAuditRecord(rec *model.AuditRecord) auditRecordResponse {
	return auditRecordResponse{
		ID:          rec.ID,
		Action:      rec.Action,
		TargetUID:   rec.TargetUID,
		PerformedBy: rec.PerformedBy,
		Claims:      rec.Claims,
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}
