package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/assignment"
	"github.com/mmeshcher/condo-delivery/internal/model"
)

// Исходы подбора курьера.
const (
	outcomeAssigned      = "assigned"
	outcomeNoCondominium = "no_condominium"
	outcomeNoCandidates  = "no_candidates"
	outcomeLostRace      = "lost_race"
	outcomeDelivererGone = "deliverer_unavailable"
)

// assign подбирает курьера для заказа в PENDING без курьера.
// Отсутствие подходящего курьера ошибкой не является: заказ остаётся без курьера.
// Если выбранный курьер успел стать недоступным, подбор повторяется без него.
func (s *Service) assign(ctx context.Context, order *model.Order, exclude []int64) (*model.Order, error) {
	receiver, err := s.repo.GetUser(ctx, order.ReceiverID)
	if err != nil {
		return order, fmt.Errorf("load receiver: %w", err)
	}

	condominiumID, ok := receiver.CondominiumID()
	if !ok {
		s.metrics.AssignmentObserved(outcomeNoCondominium)
		return order, nil
	}

	excluded := append([]int64{receiver.ID}, exclude...)
	for {
		deliverers, err := s.repo.ListEligibleDeliverers(ctx, condominiumID, excluded)
		if err != nil {
			return order, err
		}

		candidates, err := s.candidates(ctx, receiver, deliverers)
		if err != nil {
			return order, err
		}

		best, ok := s.selector.Pick(candidates)
		if !ok {
			s.metrics.AssignmentObserved(outcomeNoCandidates)
			s.logger.Info("order left without deliverer",
				zap.Int64("order_id", order.ID),
				zap.Int("eligible", len(deliverers)),
			)
			return order, nil
		}

		winner := best.User
		bound, err := s.repo.AssignDeliverer(ctx, order.ID, winner.ID)
		if err != nil {
			return order, err
		}
		if bound {
			s.metrics.AssignmentObserved(outcomeAssigned)
			s.logger.Info("deliverer assigned",
				zap.Int64("order_id", order.ID),
				zap.Int64("deliverer_id", winner.ID),
				zap.Int("recent_orders", best.RecentOrders),
			)

			assigned := *order
			assigned.DelivererID = &winner.ID
			return &assigned, nil
		}

		current, err := s.repo.GetOrder(ctx, order.ID)
		if err != nil {
			return order, err
		}
		if current.Status != model.OrderStatusPending || current.HasDeliverer() {
			// Заказ успели назначить, принять или отменить: возвращаем актуальное состояние.
			s.metrics.AssignmentObserved(outcomeLostRace)
			return current, nil
		}

		s.metrics.AssignmentObserved(outcomeDelivererGone)
		excluded = append(excluded, winner.ID)
	}
}

// reassign снимает отказавшегося курьера и подбирает нового среди тех, кто от заказа ещё не отказывался.
func (s *Service) reassign(ctx context.Context, order *model.Order, rejectedBy int64) (*model.Order, error) {
	if err := s.repo.ReleaseDeliverer(ctx, order.ID, rejectedBy); err != nil {
		return nil, err
	}

	released := *order
	released.DelivererID = nil

	rejected, err := s.repo.ListRejectedDeliverers(ctx, order.ID)
	if err != nil {
		return &released, err
	}

	return s.assign(ctx, &released, rejected)
}

// candidates дополняет курьеров недавней нагрузкой, числом активных заказов и близостью к получателю.
func (s *Service) candidates(ctx context.Context, receiver *model.User, deliverers []model.User) ([]assignment.Candidate, error) {
	if len(deliverers) == 0 {
		return nil, nil
	}

	ids := userIDs(deliverers)

	recent, err := s.repo.CountRecentOrders(ctx, ids, s.now().Add(-assignment.RecentWindow))
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountActiveOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]assignment.Candidate, 0, len(deliverers))
	for _, d := range deliverers {
		res = append(res, assignment.Candidate{
			User:         d,
			RecentOrders: recent[d.ID],
			ActiveOrders: active[d.ID],
			Proximity:    assignment.ProximityScore(receiver.Department, d.Department),
		})
	}
	return res, nil
}
