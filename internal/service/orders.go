package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/repository"
	"github.com/mmeshcher/condo-delivery/internal/validation"
)

// CreateOrderInput содержит данные нового заказа.
type CreateOrderInput struct {
	ReceiverID    int64
	ServiceID     *int64
	ScheduledDate time.Time
	Amount        decimal.Decimal
	IsImmediate   bool
	DeliveryNotes string
}

// CreateOrder создаёт заказ в статусе PENDING и сразу пытается назначить курьера.
// Если курьер не найден, заказ остаётся без курьера и будет подобран фоновым обходом.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if in.ScheduledDate.IsZero() {
		if !in.IsImmediate {
			return nil, fmt.Errorf("%w: scheduled_date is required", model.ErrValidation)
		}
		in.ScheduledDate = s.now()
	}
	if err := validation.CheckAmount(in.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	receiver, err := s.repo.GetUser(ctx, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if !receiver.Role.CanReceive() {
		return nil, fmt.Errorf("%w: role %s cannot create orders", model.ErrForbidden, receiver.Role)
	}
	if _, ok := receiver.CondominiumID(); !ok {
		return nil, fmt.Errorf("%w: receiver has no department in a condominium", model.ErrValidation)
	}

	if in.ServiceID != nil {
		if err := s.checkService(ctx, *in.ServiceID, in.ReceiverID, in.Amount); err != nil {
			return nil, err
		}
	}

	order, err := s.repo.CreateOrder(ctx, &model.Order{
		Status:        model.OrderStatusPending,
		ScheduledDate: in.ScheduledDate,
		Amount:        in.Amount,
		ReceiverID:    in.ReceiverID,
		ServiceID:     in.ServiceID,
		IsImmediate:   in.IsImmediate,
		DeliveryNotes: in.DeliveryNotes,
	})
	if err != nil {
		return nil, err
	}

	assigned, err := s.assign(ctx, order, nil)
	if err != nil {
		s.logger.Warn("assign deliverer error", zap.Error(err), zap.Int64("order_id", order.ID))
		return order, nil
	}
	return assigned, nil
}

func (s *Service) checkService(ctx context.Context, serviceID, receiverID int64, amount decimal.Decimal) error {
	svc, err := s.repo.GetDeliveryService(ctx, serviceID)
	if err != nil {
		return err
	}
	if svc.Status != model.ServiceStatusActive {
		return fmt.Errorf("%w: service %d is not active", model.ErrValidation, serviceID)
	}
	if svc.UserID == receiverID {
		return fmt.Errorf("%w: receiver cannot order own service", model.ErrValidation)
	}
	if !amount.Equal(svc.Price) {
		return fmt.Errorf("%w: amount mismatch, service %s costs %s", model.ErrValidation, svc.TypeName, svc.Price.StringFixed(2))
	}
	return nil
}

// TransitionOrder выполняет действие участника над заказом.
// Неверный исходный статус, чужой участник или проигранная гонка дают ErrStateConflict.
func (s *Service) TransitionOrder(ctx context.Context, orderID, actorID int64, action model.Action) (*model.Order, error) {
	order, err := s.transition(ctx, orderID, actorID, action)
	s.metrics.TransitionObserved(action, err)
	return order, err
}

func (s *Service) transition(ctx context.Context, orderID, actorID int64, action model.Action) (*model.Order, error) {
	t, ok := model.Transitions[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", model.ErrValidation, action)
	}

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch t.Actor {
	case model.ActorDeliverer:
		if !order.IsDeliverer(actorID) {
			return nil, fmt.Errorf("%w: only the assigned deliverer can %s order %d", model.ErrStateConflict, action, orderID)
		}
	case model.ActorReceiver:
		if order.ReceiverID != actorID {
			return nil, fmt.Errorf("%w: only the receiver can %s order %d", model.ErrStateConflict, action, orderID)
		}
	}

	if !t.Permits(order.Status) {
		return nil, fmt.Errorf("%w: cannot %s order %d in status %s", model.ErrStateConflict, action, orderID, order.Status)
	}

	if action == model.ActionReject {
		return s.reject(ctx, order, actorID)
	}

	return s.repo.TransitionOrderStatus(ctx, repository.StatusChange{
		OrderID:          orderID,
		From:             t.From,
		To:               t.To,
		Action:           action,
		ActorID:          actorID,
		RequireDeliverer: t.Actor == model.ActorDeliverer,
		RequireReceiver:  t.Actor == model.ActorReceiver,
	})
}

// reject снимает курьера и подбирает другого. Ошибка подбора не отменяет отказ.
func (s *Service) reject(ctx context.Context, order *model.Order, delivererID int64) (*model.Order, error) {
	res, err := s.reassign(ctx, order, delivererID)
	if err != nil {
		if res == nil {
			return nil, err
		}
		s.logger.Warn("reassign deliverer error", zap.Error(err), zap.Int64("order_id", order.ID))
	}
	return res, nil
}

// GetOrder возвращает заказ, если пользователь в нём участвует.
func (s *Service) GetOrder(ctx context.Context, orderID, actorID int64) (*model.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actorID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of order %d", model.ErrForbidden, actorID, orderID)
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя как получателя или как курьера.
func (s *Service) ListOrders(ctx context.Context, userID int64, asDeliverer bool) ([]model.Order, error) {
	return s.repo.ListOrders(ctx, userID, asDeliverer)
}

// OrderEvents возвращает историю переходов заказа участнику.
func (s *Service) OrderEvents(ctx context.Context, orderID, actorID int64) ([]model.OrderEvent, error) {
	if _, err := s.GetOrder(ctx, orderID, actorID); err != nil {
		return nil, err
	}
	return s.repo.ListOrderEvents(ctx, orderID)
}

// PaymentInput содержит данные оплаты. Нулевая сумма заменяется суммой заказа.
type PaymentInput struct {
	OrderID int64
	PayerID int64
	Amount  decimal.Decimal
	Method  model.PaymentMethod
}

// CreatePayment регистрирует оплату принятого или завершённого заказа его получателем.
func (s *Service) CreatePayment(ctx context.Context, in PaymentInput) (*model.Payment, error) {
	order, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}

	if in.Amount.IsZero() {
		in.Amount = order.Amount
	}
	if in.Method == "" {
		in.Method = model.PaymentMethodCash
	}

	p := &model.Payment{
		OrderID: in.OrderID,
		PayerID: in.PayerID,
		Amount:  in.Amount,
		Method:  in.Method,
		Status:  model.PaymentStatusPending,
	}

	if !model.CanAccessLinked(p, order, in.PayerID) || order.ReceiverID != p.OwnerID() {
		return nil, fmt.Errorf("%w: only the receiver can pay for order %d", model.ErrForbidden, in.OrderID)
	}
	if order.Status != model.OrderStatusAccepted && order.Status != model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: cannot pay for order %d in status %s", model.ErrStateConflict, in.OrderID, order.Status)
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", model.ErrValidation, in.Method)
	}
	if err := validation.CheckAmount(in.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	id, err := s.repo.CreatePayment(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

// CreateReview сохраняет отзыв участника о завершённом заказе.
func (s *Service) CreateReview(ctx context.Context, orderID, userID int64, rating int, comment string) (*model.Review, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	rv := &model.Review{OrderID: orderID, UserID: userID, Rating: rating, Comment: comment}

	if !model.CanAccessLinked(rv, order, userID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of order %d", model.ErrForbidden, userID, orderID)
	}
	if order.Status != model.OrderStatusCompleted {
		return nil, fmt.Errorf("%w: order %d is not completed", model.ErrStateConflict, orderID)
	}
	if !validation.IsValidRating(rating) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", model.ErrValidation)
	}

	id, err := s.repo.CreateReview(ctx, rv)
	if err != nil {
		return nil, err
	}
	rv.ID = id
	return rv, nil
}
