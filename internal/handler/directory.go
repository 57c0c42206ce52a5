package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/validation"
)

type delivererResponse struct {
	ID         int64                `json:"id"`
	FirstName  string               `json:"first_name"`
	LastName   string               `json:"last_name"`
	Department string               `json:"department,omitempty"`
	Tower      string               `json:"tower,omitempty"`
	Floor      int                  `json:"floor"`
	Stats      model.DelivererStats `json:"stats"`
}

// ListDeliverers возвращает курьеров кондоминиума со статистикой, кроме текущего пользователя.
func (h *Handler) ListDeliverers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	condoID, ok := pathID(w, r)
	if !ok {
		return
	}

	list, err := h.service.DeliverersWithStats(r.Context(), condoID, &userID)
	if err != nil {
		h.fail(w, r, "list deliverers", err)
		return
	}

	resp := make([]delivererResponse, 0, len(list))
	for _, d := range list {
		item := delivererResponse{
			ID:        d.User.ID,
			FirstName: d.User.FirstName,
			LastName:  d.User.LastName,
			Stats:     d.Stats,
		}
		if dep := d.User.Department; dep != nil {
			item.Department = dep.Name
			item.Tower = dep.Tower
			item.Floor = dep.Floor
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

type slotResponse struct {
	Time                string `json:"time"`
	AvailableDeliverers int    `json:"available_deliverers"`
	IsAvailable         bool   `json:"is_available"`
}

// ListSlots возвращает получасовые интервалы дня с числом свободных курьеров.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	condoID, ok := pathID(w, r)
	if !ok {
		return
	}

	date, err := validation.ParseDate(r.URL.Query().Get("date"), h.service.Location())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	slots, err := h.service.AvailableSlots(r.Context(), condoID, date, &userID)
	if err != nil {
		h.fail(w, r, "available slots", err)
		return
	}

	resp := make([]slotResponse, 0)
	for s := range slots {
		resp = append(resp, slotResponse{
			Time:                s.Time.Format("15:04"),
			AvailableDeliverers: s.AvailableDeliverers,
			IsAvailable:         s.IsAvailable,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format(validation.DateLayout),
		"slots": resp,
	})
}

// ImmediateAvailability сообщает, есть ли в кондоминиуме курьер для немедленной доставки.
func (h *Handler) ImmediateAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	condoID, ok := pathID(w, r)
	if !ok {
		return
	}

	available, err := h.service.ImmediateDeliveryAvailable(r.Context(), condoID, &userID)
	if err != nil {
		h.fail(w, r, "immediate availability", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

type earningsResponse struct {
	Total              decimal.Decimal `json:"total_earnings"`
	Weekly             decimal.Decimal `json:"weekly_earnings"`
	Monthly            decimal.Decimal `json:"monthly_earnings"`
	TotalOrders        int             `json:"total_orders"`
	AverageRating      float64         `json:"average_rating"`
	TotalReviews       int             `json:"total_reviews"`
	RatingDistribution map[int]int     `json:"rating_distribution"`
}

// Earnings возвращает заработок текущего курьера. Параметры date_from и date_to
// ограничивают итоговую сумму, date_to включает весь день.
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var from, to *time.Time
	q := r.URL.Query()
	if v := q.Get("date_from"); v != "" {
		t, err := validation.ParseDate(v, h.service.Location())
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		from = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := validation.ParseDate(v, h.service.Location())
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		to = &t
	}

	e, err := h.service.Earnings(r.Context(), userID, from, to)
	if err != nil {
		h.fail(w, r, "earnings", err)
		return
	}

	writeJSON(w, http.StatusOK, earningsResponse{
		Total:              e.Total,
		Weekly:             e.Weekly,
		Monthly:            e.Monthly,
		TotalOrders:        e.TotalOrders,
		AverageRating:      e.AverageRating,
		TotalReviews:       e.TotalReviews,
		RatingDistribution: e.RatingDistribution,
	})
}

// CreateCondominium создаёт кондоминиум.
func (h *Handler) CreateCondominium(w http.ResponseWriter, r *http.Request) {
	var req model.Condominium
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.CreateCondominium(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "create condominium", err)
		return
	}

	req.ID = id
	writeJSON(w, http.StatusCreated, req)
}

// CreateDepartment создаёт квартиру в кондоминиуме из пути запроса.
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	condoID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req model.Department
	if !decodeJSON(w, r, &req) {
		return
	}
	req.CondominiumID = condoID

	id, err := h.service.CreateDepartment(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "create department", err)
		return
	}

	req.ID = id
	writeJSON(w, http.StatusCreated, req)
}

type serviceTypeRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// CreateServiceType создаёт тип услуги.
func (h *Handler) CreateServiceType(w http.ResponseWriter, r *http.Request) {
	var req serviceTypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.CreateServiceType(r.Context(), &model.ServiceType{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		h.fail(w, r, "create service type", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type deliveryServiceRequest struct {
	TypeID int64               `json:"type_id"`
	Status model.ServiceStatus `json:"status"`
}

type deliveryServiceResponse struct {
	ID       int64           `json:"id"`
	TypeID   int64           `json:"type_id"`
	TypeName string          `json:"type_name"`
	Status   string          `json:"status"`
	Price    decimal.Decimal `json:"price"`
}

func newDeliveryServiceResponse(s *model.DeliveryService) deliveryServiceResponse {
	return deliveryServiceResponse{
		ID:       s.ID,
		TypeID:   s.TypeID,
		TypeName: s.TypeName,
		Status:   string(s.Status),
		Price:    s.Price,
	}
}

// ListDeliveryServices возвращает услуги текущего курьера.
func (h *Handler) ListDeliveryServices(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListDeliveryServices(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "list delivery services", err)
		return
	}

	resp := make([]deliveryServiceResponse, 0, len(list))
	for i := range list {
		resp = append(resp, newDeliveryServiceResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateDeliveryService меняет статус услуги текущего курьера.
func (h *Handler) UpdateDeliveryService(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req deliveryServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	svc, err := h.service.UpdateDeliveryService(r.Context(), userID, serviceID, req.Status)
	if err != nil {
		h.fail(w, r, "update delivery service", err)
		return
	}

	writeJSON(w, http.StatusOK, newDeliveryServiceResponse(svc))
}

// DeleteDeliveryService удаляет услугу текущего курьера.
func (h *Handler) DeleteDeliveryService(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	serviceID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteDeliveryService(r.Context(), userID, serviceID); err != nil {
		h.fail(w, r, "delete delivery service", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateDeliveryService регистрирует услугу текущего курьера.
func (h *Handler) CreateDeliveryService(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req deliveryServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.CreateDeliveryService(r.Context(), userID, req.TypeID)
	if err != nil {
		h.fail(w, r, "create delivery service", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}
