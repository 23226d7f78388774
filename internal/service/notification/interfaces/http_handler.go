// internal/service/notification/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"time"

	"orderflow/internal/errs"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/notification/application"
	"orderflow/internal/service/notification/domain"
)

// NotificationHandler 暴露通知的查询和已读接口。
type NotificationHandler struct {
	dispatcher *application.Dispatcher
}

func NewNotificationHandler(dispatcher *application.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

func (h *NotificationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /customers/{customerId}/notifications", h.list)
	mux.HandleFunc("POST /customers/{customerId}/notifications/{id}/read", h.markRead)
}

type notificationView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

func (h *NotificationHandler) list(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.dispatcher.ListNotifications(r.Context(), r.PathValue("customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]notificationView, len(notifications))
	for i, n := range notifications {
		views[i] = toNotificationView(n)
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *NotificationHandler) markRead(w http.ResponseWriter, r *http.Request) {
	err := h.dispatcher.MarkRead(r.Context(), r.PathValue("customerId"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toNotificationView(n *domain.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
		Read:      n.Read,
	}
}

func (h *NotificationHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *NotificationHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindTransientInfra:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
