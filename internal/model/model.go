// Package model содержит доменные сущности сервиса доставки в кондоминиумах.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condominium описывает жилой комплекс, внутри которого подбираются курьеры.
type Condominium struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	District string `json:"district"`
	Region   string `json:"region"`
	Entries  int    `json:"entries"`
}

// Department описывает квартиру в кондоминиуме. Башня и этаж используются для оценки близости.
type Department struct {
	ID            int64  `json:"id"`
	CondominiumID int64  `json:"condominium_id"`
	Name          string `json:"name"`
	Tower         string `json:"tower"`
	Floor         int    `json:"floor"`
}

// Role определяет, может ли пользователь заказывать и/или доставлять.
type Role string

const (
	RoleReceiver             Role = "RECEIVER"
	RoleDeliverer            Role = "DELIVERER"
	RoleReceiverAndDeliverer Role = "RECEIVER_AND_DELIVERER"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	switch r {
	case RoleReceiver, RoleDeliverer, RoleReceiverAndDeliverer:
		return true
	}
	return false
}

// CanDeliver сообщает, допускает ли роль выполнение доставок.
func (r Role) CanDeliver() bool {
	return r == RoleDeliverer || r == RoleReceiverAndDeliverer
}

// CanReceive сообщает, допускает ли роль создание заказов.
func (r Role) CanReceive() bool {
	return r == RoleReceiver || r == RoleReceiverAndDeliverer
}

// User представляет учётную запись жителя.
// Department равен nil, если пользователь не привязан к квартире.
type User struct {
	ID                   int64
	Email                string
	PasswordHash         []byte
	FirstName            string
	LastName             string
	Role                 Role
	AvailableForDelivery bool
	Department           *Department
	CreatedAt            time.Time
}

// CondominiumID возвращает кондоминиум пользователя, если он известен.
func (u *User) CondominiumID() (int64, bool) {
	if u == nil || u.Department == nil || u.Department.CondominiumID == 0 {
		return 0, false
	}
	return u.Department.CondominiumID, true
}

// FullName возвращает имя и фамилию пользователя.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// ServiceStatus описывает статус услуги курьера.
type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "ACTIVE"
	ServiceStatusInactive ServiceStatus = "INACTIVE"
)

// Valid сообщает, известен ли статус услуги.
func (s ServiceStatus) Valid() bool {
	return s == ServiceStatusActive || s == ServiceStatusInactive
}

// ServiceType описывает тип услуги и её цену.
type ServiceType struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
}

// DeliveryService описывает услугу, которую предлагает курьер.
type DeliveryService struct {
	ID       int64
	TypeID   int64
	UserID   int64
	Status   ServiceStatus
	Price    decimal.Decimal
	TypeName string
}

// Order описывает заказ доставки.
type Order struct {
	ID            int64
	Status        OrderStatus
	ScheduledDate time.Time
	Amount        decimal.Decimal
	ReceiverID    int64
	DelivererID   *int64
	ServiceID     *int64
	IsImmediate   bool
	DeliveryNotes string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasDeliverer сообщает, назначен ли заказу курьер.
func (o *Order) HasDeliverer() bool {
	return o.DelivererID != nil
}

// IsDeliverer сообщает, является ли пользователь назначенным курьером заказа.
func (o *Order) IsDeliverer(userID int64) bool {
	return o.DelivererID != nil && *o.DelivererID == userID
}

// IsParticipant сообщает, является ли пользователь получателем или курьером заказа.
func (o *Order) IsParticipant(userID int64) bool {
	return o.ReceiverID == userID || o.IsDeliverer(userID)
}

// OrderEvent фиксирует переход заказа между статусами.
type OrderEvent struct {
	OrderID    int64
	FromStatus OrderStatus
	ToStatus   OrderStatus
	Action     Action
	ActorID    *int64
	CreatedAt  time.Time
}

// Slot описывает получасовой интервал и число свободных курьеров в нём.
type Slot struct {
	Time                time.Time `json:"time"`
	AvailableDeliverers int       `json:"available_deliverers"`
	IsAvailable         bool      `json:"is_available"`
}

// DelivererStats содержит статистику курьера для выдачи списка доступных курьеров.
type DelivererStats struct {
	CompletedOrders      int     `json:"completed_orders"`
	AverageRating        float64 `json:"average_rating"`
	IsCurrentlyAvailable bool    `json:"is_currently_available"`
}

// DelivererSummary объединяет курьера и его статистику.
type DelivererSummary struct {
	User  User
	Stats DelivererStats
}

// Earnings описывает заработок курьера по завершённым заказам.
type Earnings struct {
	Total              decimal.Decimal
	Weekly             decimal.Decimal
	Monthly            decimal.Decimal
	TotalOrders        int
	AverageRating      float64
	TotalReviews       int
	RatingDistribution map[int]int
}
