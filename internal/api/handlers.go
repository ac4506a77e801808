package api

import (
	"net/http"
	"strconv"

	"github.com/example/ec-order-sync/internal/api/middleware"
	"github.com/example/ec-order-sync/internal/domain/order"
	"github.com/example/ec-order-sync/internal/model"
	"go.uber.org/zap"
)

// Handlers serves the order service API.
type Handlers struct {
	orders *order.Service
	logger *zap.Logger
}

func NewHandlers(orders *order.Service, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		orders: orders,
		logger: logger,
	}
}

// UpdateOrderResponse is the body of a successful item update.
type UpdateOrderResponse struct {
	Message   string          `json:"message"`
	OrderItem model.OrderItem `json:"order_item"`
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	caller, _ := middleware.GetIdentity(r.Context())
	if req.BuyerID == "" {
		req.BuyerID = caller.UserID
	}
	if req.BuyerID != caller.UserID && caller.Role != model.RoleAdmin {
		respondJSONError(w, "cannot order on behalf of another user", http.StatusForbidden)
		return
	}

	detail, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, detail)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(extractPathParam(r.URL.Path, "/order/"))
	if err != nil {
		respondJSONError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	detail, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	skip, limit := 0, 0
	q := r.URL.Query()
	if raw := q.Get("skip"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, "skip must be an integer", http.StatusBadRequest)
			return
		}
		skip = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondJSONError(w, "limit must be an integer", http.StatusBadRequest)
			return
		}
		limit = v
	}

	page, err := h.orders.ListOrders(r.Context(), skip, limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(extractPathParam(r.URL.Path, "/update_order/"))
	if err != nil {
		respondJSONError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	var req order.UpdateOrderItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrderID != 0 && req.OrderID != orderID {
		respondJSONError(w, "order_id in body does not match path", http.StatusBadRequest)
		return
	}
	req.OrderID = orderID

	item, err := h.orders.UpdateOrderItem(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, UpdateOrderResponse{
		Message:   "Order updated successfully",
		OrderItem: *item,
	})
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseID(extractPathParam(r.URL.Path, "/delete_order/"))
	if err != nil {
		respondJSONError(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	if err := h.orders.DeleteOrder(r.Context(), orderID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Product Handlers

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.orders.ListProducts(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
