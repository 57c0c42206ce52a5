package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ownable реализуют сущности, у которых есть владелец-пользователь.
type Ownable interface {
	OwnerID() int64
}

// OrderLinked реализуют сущности, привязанные к заказу.
type OrderLinked interface {
	LinkedOrderID() int64
}

// PaymentMethod описывает способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard  PaymentMethod = "DEBIT_CARD"
)

// Valid сообщает, известен ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCreditCard, PaymentMethodDebitCard:
		return true
	}
	return false
}

// PaymentStatus описывает статус платежа.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Payment описывает оплату заказа получателем.
type Payment struct {
	ID        int64
	OrderID   int64
	PayerID   int64
	Amount    decimal.Decimal
	Method    PaymentMethod
	Status    PaymentStatus
	CreatedAt time.Time
}

// OwnerID возвращает плательщика.
func (p *Payment) OwnerID() int64 { return p.PayerID }

// LinkedOrderID возвращает оплачиваемый заказ.
func (p *Payment) LinkedOrderID() int64 { return p.OrderID }

// Review описывает отзыв участника о завершённом заказе.
type Review struct {
	ID        int64
	OrderID   int64
	UserID    int64
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// OwnerID возвращает автора отзыва.
func (r *Review) OwnerID() int64 { return r.UserID }

// LinkedOrderID возвращает заказ, к которому относится отзыв.
func (r *Review) LinkedOrderID() int64 { return r.OrderID }

// OwnerID возвращает курьера, предлагающего услугу.
func (s *DeliveryService) OwnerID() int64 { return s.UserID }

var (
	_ Ownable     = (*DeliveryService)(nil)
	_ Ownable     = (*Payment)(nil)
	_ OrderLinked = (*Payment)(nil)
	_ Ownable     = (*Review)(nil)
	_ OrderLinked = (*Review)(nil)
)

// IsOwner сообщает, принадлежит ли сущность пользователю.
func IsOwner(o Ownable, userID int64) bool {
	return o.OwnerID() == userID
}

// CanAccessLinked сообщает, участвует ли пользователь в заказе, к которому привязана сущность.
func CanAccessLinked(l OrderLinked, order *Order, userID int64) bool {
	return order != nil && order.ID == l.LinkedOrderID() && order.IsParticipant(userID)
}
