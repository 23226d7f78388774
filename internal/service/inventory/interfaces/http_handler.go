// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"

	"orderflow/internal/errs"
	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/inventory/application"
	"orderflow/internal/service/inventory/domain"
)

// InventoryHandler 暴露库存服务的管理与查询接口。
type InventoryHandler struct {
	service *application.Service
}

func NewInventoryHandler(service *application.Service) *InventoryHandler {
	return &InventoryHandler{service: service}
}

func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /inventory", h.listItems)
	mux.HandleFunc("GET /inventory/{productId}", h.getItem)
	mux.HandleFunc("PUT /inventory/{productId}", h.upsertItem)
	mux.HandleFunc("POST /inventory/{productId}/adjust", h.adjustItem)
	mux.HandleFunc("GET /reservations/{orderId}", h.getReservation)
	mux.HandleFunc("POST /reservations/{orderId}/fulfill", h.fulfill)
	mux.HandleFunc("POST /reservations/{orderId}/release", h.release)
}

type itemView struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Available   int    `json:"available"`
	Reserved    int    `json:"reserved"`
}

func toItemView(item *domain.Item) itemView {
	return itemView{
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Available:   item.Available,
		Reserved:    item.Reserved,
	}
}

type reservationView struct {
	OrderID string                `json:"orderId"`
	Status  string                `json:"status"`
	Lines   []reservationLineView `json:"lines"`
}

type reservationLineView struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *InventoryHandler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListItems(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]itemView, len(items))
	for i, item := range items {
		views[i] = toItemView(item)
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *InventoryHandler) getItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), r.PathValue("productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemView(item))
}

func (h *InventoryHandler) upsertItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductName string `json:"productName"`
		Available   int    `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, errs.Validation("invalid request body: %v", err))
		return
	}
	item, err := h.service.UpsertItem(r.Context(), r.PathValue("productId"), body.ProductName, body.Available)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemView(item))
}

func (h *InventoryHandler) adjustItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, errs.Validation("invalid request body: %v", err))
		return
	}
	item, err := h.service.Adjust(r.Context(), r.PathValue("productId"), body.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItemView(item))
}

func (h *InventoryHandler) getReservation(w http.ResponseWriter, r *http.Request) {
	reservation, err := h.service.GetReservation(r.Context(), r.PathValue("orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	lines := make([]reservationLineView, len(reservation.Lines))
	for i, line := range reservation.Lines {
		lines[i] = reservationLineView{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	h.writeJSON(w, http.StatusOK, reservationView{
		OrderID: reservation.OrderID,
		Status:  string(reservation.Status),
		Lines:   lines,
	})
}

func (h *InventoryHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Fulfill(r.Context(), r.PathValue("orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Release(r.Context(), r.PathValue("orderId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InventoryHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *InventoryHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindValidation:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindInvalidState, errs.KindInsufficientInventory:
		status = http.StatusConflict
	case errs.KindTransientInfra:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
