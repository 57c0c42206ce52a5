package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/service"
	"github.com/mmeshcher/condo-delivery/internal/validation"
)

type createOrderRequest struct {
	ServiceID     *int64          `json:"service_id"`
	ScheduledDate string          `json:"scheduled_date"`
	Amount        decimal.Decimal `json:"amount"`
	IsImmediate   bool            `json:"is_immediate"`
	DeliveryNotes string          `json:"delivery_notes"`
}

type orderResponse struct {
	ID            int64           `json:"id"`
	Status        string          `json:"status"`
	ScheduledDate string          `json:"scheduled_date"`
	Amount        decimal.Decimal `json:"amount"`
	ReceiverID    int64           `json:"receiver_id"`
	DelivererID   *int64          `json:"deliverer_id"`
	ServiceID     *int64          `json:"service_id,omitempty"`
	IsImmediate   bool            `json:"is_immediate"`
	DeliveryNotes string          `json:"delivery_notes,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		Status:        string(o.Status),
		ScheduledDate: formatTime(o.ScheduledDate),
		Amount:        o.Amount,
		ReceiverID:    o.ReceiverID,
		DelivererID:   o.DelivererID,
		ServiceID:     o.ServiceID,
		IsImmediate:   o.IsImmediate,
		DeliveryNotes: o.DeliveryNotes,
		CreatedAt:     formatTime(o.CreatedAt),
		UpdatedAt:     formatTime(o.UpdatedAt),
	}
}

// CreateOrder создаёт заказ от имени текущего пользователя.
// Заказ возвращается и тогда, когда курьера подобрать не удалось.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := service.CreateOrderInput{
		ReceiverID:    userID,
		ServiceID:     req.ServiceID,
		Amount:        req.Amount,
		IsImmediate:   req.IsImmediate,
		DeliveryNotes: req.DeliveryNotes,
	}
	if req.ScheduledDate != "" || !req.IsImmediate {
		date, err := validation.ParseScheduledDate(req.ScheduledDate, h.service.Location())
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		in.ScheduledDate = date
	}

	order, err := h.service.CreateOrder(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

// GetOrder возвращает заказ, если текущий пользователь в нём участвует.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		h.fail(w, r, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// ListOrders возвращает заказы текущего пользователя как получателя или, при as=deliverer, как курьера.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var asDeliverer bool
	switch r.URL.Query().Get("as") {
	case "", "receiver":
	case "deliverer":
		asDeliverer = true
	default:
		writeError(w, http.StatusBadRequest, "as must be receiver or deliverer")
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID, asDeliverer)
	if err != nil {
		h.fail(w, r, "list orders", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type orderEventResponse struct {
	From      string `json:"from_status,omitempty"`
	To        string `json:"to_status"`
	Action    string `json:"action"`
	ActorID   *int64 `json:"actor_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

// OrderEvents возвращает журнал переходов заказа.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	events, err := h.service.OrderEvents(r.Context(), orderID, userID)
	if err != nil {
		h.fail(w, r, "order events", err)
		return
	}

	resp := make([]orderEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, orderEventResponse{
			From:      string(e.FromStatus),
			To:        string(e.ToStatus),
			Action:    string(e.Action),
			ActorID:   e.ActorID,
			CreatedAt: formatTime(e.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transition возвращает обработчик действия участника над заказом.
func (h *Handler) Transition(action model.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUser(w, r)
		if !ok {
			return
		}
		orderID, ok := pathID(w, r)
		if !ok {
			return
		}

		order, err := h.service.TransitionOrder(r.Context(), orderID, userID, action)
		if err != nil {
			h.fail(w, r, string(action)+" order", err)
			return
		}

		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

type paymentRequest struct {
	Amount decimal.Decimal     `json:"amount"`
	Method model.PaymentMethod `json:"payment_method"`
}

type paymentResponse struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"payment_method"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
}

// CreatePayment регистрирует оплату заказа текущим пользователем.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.CreatePayment(r.Context(), service.PaymentInput{
		OrderID: orderID,
		PayerID: userID,
		Amount:  req.Amount,
		Method:  req.Method,
	})
	if err != nil {
		h.fail(w, r, "create payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, paymentResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    string(p.Method),
		Status:    string(p.Status),
		CreatedAt: formatTime(p.CreatedAt),
	})
}

type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type reviewResponse struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"created_at"`
}

// CreateReview сохраняет отзыв текущего пользователя о завершённом заказе.
func (h *Handler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rv, err := h.service.CreateReview(r.Context(), orderID, userID, req.Rating, req.Comment)
	if err != nil {
		h.fail(w, r, "create review", err)
		return
	}

	writeJSON(w, http.StatusCreated, reviewResponse{
		ID:        rv.ID,
		OrderID:   rv.OrderID,
		Rating:    rv.Rating,
		Comment:   rv.Comment,
		CreatedAt: formatTime(rv.CreatedAt),
	})
}
