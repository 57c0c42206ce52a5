// Package service реализует бизнес-логику сервиса доставки: подбор курьеров,
// жизненный цикл заказа, доступность и расписание.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/assignment"
	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/repository"
	"github.com/mmeshcher/condo-delivery/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetUserDepartment(ctx context.Context, userID, departmentID int64) error
	ToggleAvailability(ctx context.Context, userID int64) (bool, int, error)
	ListEligibleDeliverers(ctx context.Context, condominiumID int64, exclude []int64) ([]model.User, error)

	GetCondominium(ctx context.Context, id int64) (*model.Condominium, error)
	CreateCondominium(ctx context.Context, c *model.Condominium) (int64, error)
	CreateDepartment(ctx context.Context, d *model.Department) (int64, error)
	CreateServiceType(ctx context.Context, st *model.ServiceType) (int64, error)
	CreateDeliveryService(ctx context.Context, s *model.DeliveryService) (int64, error)
	GetDeliveryService(ctx context.Context, id int64) (*model.DeliveryService, error)
	ListDeliveryServices(ctx context.Context, userID int64) ([]model.DeliveryService, error)
	UpdateDeliveryServiceStatus(ctx context.Context, id int64, status model.ServiceStatus) error
	DeleteDeliveryService(ctx context.Context, id int64) error

	CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, userID int64, asDeliverer bool) ([]model.Order, error)
	ListUnassignedOrders(ctx context.Context, afterID int64, limit int) ([]model.Order, error)
	ListActiveOrdersBetween(ctx context.Context, delivererIDs []int64, from, to time.Time) ([]model.Order, error)
	CountRecentOrders(ctx context.Context, delivererIDs []int64, since time.Time) (map[int64]int, error)
	CountActiveOrders(ctx context.Context, delivererIDs []int64) (map[int64]int, error)
	AssignDeliverer(ctx context.Context, orderID, delivererID int64) (bool, error)
	ReleaseDeliverer(ctx context.Context, orderID, delivererID int64) error
	ListRejectedDeliverers(ctx context.Context, orderID int64) ([]int64, error)
	TransitionOrderStatus(ctx context.Context, ch repository.StatusChange) (*model.Order, error)
	ListOrderEvents(ctx context.Context, orderID int64) ([]model.OrderEvent, error)

	CreatePayment(ctx context.Context, p *model.Payment) (int64, error)
	CreateReview(ctx context.Context, r *model.Review) (int64, error)
	DelivererStats(ctx context.Context, delivererIDs []int64) (map[int64]model.DelivererStats, error)
	Earnings(ctx context.Context, delivererID int64, f repository.EarningsFilter, now time.Time) (*model.Earnings, error)
}

// Metrics принимает события сервиса для экспорта метрик.
type Metrics interface {
	AssignmentObserved(outcome string)
	TransitionObserved(action model.Action, err error)
	AvailabilityToggled(available bool, err error)
	SweepObserved(assigned int, err error)
}

type nopMetrics struct{}

func (nopMetrics) AssignmentObserved(string) {}
func (nopMetrics) TransitionObserved(model.Action, error) {}
func (nopMetrics) AvailabilityToggled(bool, error) {}
func (nopMetrics) SweepObserved(int, error) {}

// Options задаёт параметры сервиса.
type Options struct {
	// Location — часовой пояс рабочих часов кондоминиумов.
	Location *time.Location
	// Seed — зерно генератора для разрешения ничьих; 0 означает текущее время.
	Seed uint64
	// ByProximity включает близость квартир как второй ключ ранжирования.
	ByProximity bool
	Metrics     Metrics
	// Now подменяет текущее время в тестах.
	Now func() time.Time
}

// Service содержит бизнес-логику сервиса доставки.
type Service struct {
	repo     Repository
	logger   *zap.Logger
	selector *assignment.Selector
	metrics  Metrics
	loc      *time.Location
	now      func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		logger:   logger,
		selector: assignment.NewSelector(opts.Seed, opts.ByProximity),
		metrics:  opts.Metrics,
		loc:      opts.Location,
		now:      opts.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Location возвращает часовой пояс рабочих часов.
func (s *Service) Location() *time.Location {
	return s.loc
}

// RegisterInput содержит данные для регистрации пользователя.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !validation.IsValidEmail(email) {
		return 0, fmt.Errorf("%w: invalid email", model.ErrValidation)
	}
	if in.Password == "" {
		return 0, fmt.Errorf("%w: password is required", model.ErrValidation)
	}
	if in.Role == "" {
		in.Role = model.RoleReceiver
	}
	if !in.Role.Valid() {
		return 0, fmt.Errorf("%w: unknown role %q", model.ErrValidation, in.Role)
	}

	return s.repo.CreateUser(ctx, &model.User{
		Email:        email,
		PasswordHash: hashPassword(email, in.Password),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         in.Role,
	})
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, model.ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if subtle.ConstantTimeCompare(hashed, u.PasswordHash) != 1 {
		return 0, model.ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUser(ctx, userID)
}

// UpdateDepartment привязывает пользователя к квартире.
func (s *Service) UpdateDepartment(ctx context.Context, userID, departmentID int64) (*model.User, error) {
	if departmentID <= 0 {
		return nil, fmt.Errorf("%w: department_id is required", model.ErrValidation)
	}
	if err := s.repo.SetUserDepartment(ctx, userID, departmentID); err != nil {
		return nil, err
	}
	return s.repo.GetUser(ctx, userID)
}

// CreateCondominium создаёт кондоминиум.
func (s *Service) CreateCondominium(ctx context.Context, c *model.Condominium) (int64, error) {
	if strings.TrimSpace(c.Name) == "" {
		return 0, fmt.Errorf("%w: condominium name is required", model.ErrValidation)
	}
	return s.repo.CreateCondominium(ctx, c)
}

// CreateDepartment создаёт квартиру в кондоминиуме.
func (s *Service) CreateDepartment(ctx context.Context, d *model.Department) (int64, error) {
	if strings.TrimSpace(d.Name) == "" {
		return 0, fmt.Errorf("%w: department name is required", model.ErrValidation)
	}
	return s.repo.CreateDepartment(ctx, d)
}

// CreateServiceType создаёт тип услуги.
func (s *Service) CreateServiceType(ctx context.Context, st *model.ServiceType) (int64, error) {
	if strings.TrimSpace(st.Name) == "" {
		return 0, fmt.Errorf("%w: service type name is required", model.ErrValidation)
	}
	if err := validation.CheckAmount(st.Price); err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return s.repo.CreateServiceType(ctx, st)
}

// CreateDeliveryService регистрирует услугу курьера.
func (s *Service) CreateDeliveryService(ctx context.Context, userID, typeID int64) (int64, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !u.Role.CanDeliver() {
		return 0, fmt.Errorf("%w: only deliverers can offer services", model.ErrForbidden)
	}
	return s.repo.CreateDeliveryService(ctx, &model.DeliveryService{
		TypeID: typeID,
		UserID: userID,
		Status: model.ServiceStatusActive,
	})
}

// ListDeliveryServices возвращает услуги курьера.
func (s *Service) ListDeliveryServices(ctx context.Context, userID int64) ([]model.DeliveryService, error) {
	return s.repo.ListDeliveryServices(ctx, userID)
}

func (s *Service) ownService(ctx context.Context, userID, serviceID int64) (*model.DeliveryService, error) {
	svc, err := s.repo.GetDeliveryService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !model.IsOwner(svc, userID) {
		return nil, fmt.Errorf("%w: service %d belongs to another user", model.ErrForbidden, serviceID)
	}
	return svc, nil
}

// UpdateDeliveryService меняет статус услуги. Менять можно только свою услугу.
// Неактивную услугу нельзя выбрать в новом заказе.
func (s *Service) UpdateDeliveryService(ctx context.Context, userID, serviceID int64, status model.ServiceStatus) (*model.DeliveryService, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown service status %q", model.ErrValidation, status)
	}
	svc, err := s.ownService(ctx, userID, serviceID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDeliveryServiceStatus(ctx, serviceID, status); err != nil {
		return nil, err
	}
	svc.Status = status
	return svc, nil
}

// DeleteDeliveryService удаляет свою услугу.
func (s *Service) DeleteDeliveryService(ctx context.Context, userID, serviceID int64) error {
	if _, err := s.ownService(ctx, userID, serviceID); err != nil {
		return err
	}
	return s.repo.DeleteDeliveryService(ctx, serviceID)
}
