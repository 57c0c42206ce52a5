// Package handler содержит HTTP-обработчики API сервиса доставки.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/middleware"
	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)
	UpdateDepartment(ctx context.Context, userID, departmentID int64) (*model.User, error)
	ToggleAvailability(ctx context.Context, userID int64) (bool, string, error)
	Earnings(ctx context.Context, userID int64, from, to *time.Time) (*model.Earnings, error)

	CreateOrder(ctx context.Context, in service.CreateOrderInput) (*model.Order, error)
	GetOrder(ctx context.Context, orderID, actorID int64) (*model.Order, error)
	ListOrders(ctx context.Context, userID int64, asDeliverer bool) ([]model.Order, error)
	OrderEvents(ctx context.Context, orderID, actorID int64) ([]model.OrderEvent, error)
	TransitionOrder(ctx context.Context, orderID, actorID int64, action model.Action) (*model.Order, error)
	CreatePayment(ctx context.Context, in service.PaymentInput) (*model.Payment, error)
	CreateReview(ctx context.Context, orderID, userID int64, rating int, comment string) (*model.Review, error)

	DeliverersWithStats(ctx context.Context, condominiumID int64, exclude *int64) ([]model.DelivererSummary, error)
	AvailableSlots(ctx context.Context, condominiumID int64, date time.Time, exclude *int64) (iter.Seq[model.Slot], error)
	ImmediateDeliveryAvailable(ctx context.Context, condominiumID int64, exclude *int64) (bool, error)
	CreateCondominium(ctx context.Context, c *model.Condominium) (int64, error)
	CreateDepartment(ctx context.Context, d *model.Department) (int64, error)
	CreateServiceType(ctx context.Context, st *model.ServiceType) (int64, error)
	CreateDeliveryService(ctx context.Context, userID, typeID int64) (int64, error)
	ListDeliveryServices(ctx context.Context, userID int64) ([]model.DeliveryService, error)
	UpdateDeliveryService(ctx context.Context, userID, serviceID int64, status model.ServiceStatus) (*model.DeliveryService, error)
	DeleteDeliveryService(ctx context.Context, userID, serviceID int64) error

	Location() *time.Location
}

// Handler реализует HTTP-обработчики API сервиса доставки.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
	metrics        http.Handler
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// limiter и metrics могут быть nil: тогда создание заказов не ограничивается, а /metrics не публикуется.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter, metrics http.Handler) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		limiter:        limiter,
		metrics:        metrics,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail переводит ошибку сервиса в HTTP-ответ. Неизвестные ошибки журналируются и скрываются от клиента.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var status int
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStateConflict),
		errors.Is(err, model.ErrCapacity),
		errors.Is(err, model.ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return false
	}
	return true
}

func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "malformed id")
		return 0, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

type credentialsRequest struct {
	Email     string     `json:"email"`
	Password  string     `json:"password"`
	FirstName string     `json:"first_name,omitempty"`
	LastName  string     `json:"last_name,omitempty"`
	Role      model.Role `json:"role,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
	})
	if err != nil {
		h.fail(w, r, "register user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeJSON(w, http.StatusOK, map[string]int64{"id": userID})
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.fail(w, r, "login user", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeJSON(w, http.StatusOK, map[string]int64{"id": userID})
}

type departmentResponse struct {
	ID            int64  `json:"id"`
	CondominiumID int64  `json:"condominium_id"`
	Name          string `json:"name"`
	Tower         string `json:"tower,omitempty"`
	Floor         int    `json:"floor"`
}

type userResponse struct {
	ID                   int64               `json:"id"`
	Email                string              `json:"email"`
	FirstName            string              `json:"first_name"`
	LastName             string              `json:"last_name"`
	Role                 model.Role          `json:"role"`
	AvailableForDelivery bool                `json:"available_for_delivery"`
	Department           *departmentResponse `json:"department,omitempty"`
}

func newUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:                   u.ID,
		Email:                u.Email,
		FirstName:            u.FirstName,
		LastName:             u.LastName,
		Role:                 u.Role,
		AvailableForDelivery: u.AvailableForDelivery,
	}
	if d := u.Department; d != nil {
		resp.Department = &departmentResponse{
			ID:            d.ID,
			CondominiumID: d.CondominiumID,
			Name:          d.Name,
			Tower:         d.Tower,
			Floor:         d.Floor,
		}
	}
	return resp
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(u))
}

type departmentRequest struct {
	DepartmentID int64 `json:"department_id"`
}

// UpdateDepartment привязывает текущего пользователя к квартире.
func (h *Handler) UpdateDepartment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req departmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.UpdateDepartment(r.Context(), userID, req.DepartmentID)
	if err != nil {
		h.fail(w, r, "update department", err)
		return
	}

	writeJSON(w, http.StatusOK, newUserResponse(u))
}

type availabilityResponse struct {
	AvailableForDelivery bool   `json:"available_for_delivery"`
	Message              string `json:"message"`
}

// ToggleAvailability переключает готовность текущего пользователя доставлять заказы.
func (h *Handler) ToggleAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	available, msg, err := h.service.ToggleAvailability(r.Context(), userID)
	if err != nil {
		if errors.Is(err, model.ErrCapacity) {
			writeJSON(w, http.StatusConflict, availabilityResponse{AvailableForDelivery: available, Message: msg})
			return
		}
		h.fail(w, r, "toggle availability", err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{AvailableForDelivery: available, Message: msg})
}
