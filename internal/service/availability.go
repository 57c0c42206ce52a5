package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/assignment"
	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/repository"
	"github.com/mmeshcher/condo-delivery/internal/schedule"
)

// ToggleAvailability переключает готовность курьера принимать заказы.
// Отключение при наличии активных заказов отклоняется с ErrCapacity.
// Возвращает новое значение и сообщение для пользователя.
func (s *Service) ToggleAvailability(ctx context.Context, userID int64) (bool, string, error) {
	available, active, err := s.repo.ToggleAvailability(ctx, userID)
	s.metrics.AvailabilityToggled(available, err)
	if err != nil {
		if errors.Is(err, model.ErrCapacity) {
			return true, fmt.Sprintf("cannot disable availability while holding %d active orders", active), err
		}
		return false, "", err
	}

	s.logger.Info("availability toggled", zap.Int64("user_id", userID), zap.Bool("available", available))

	if available {
		return true, "you are now available for deliveries", nil
	}
	return false, "you are no longer available for deliveries", nil
}

// EligibleDeliverers возвращает доступных курьеров кондоминиума, исключая exclude, если он задан.
func (s *Service) EligibleDeliverers(ctx context.Context, condominiumID int64, exclude *int64) ([]model.User, error) {
	if _, err := s.repo.GetCondominium(ctx, condominiumID); err != nil {
		return nil, err
	}

	var excluded []int64
	if exclude != nil {
		excluded = []int64{*exclude}
	}

	deliverers, err := s.repo.ListEligibleDeliverers(ctx, condominiumID, excluded)
	if err != nil {
		return nil, err
	}
	if deliverers == nil {
		deliverers = []model.User{}
	}
	return deliverers, nil
}

// ImmediateDeliveryAvailable сообщает, есть ли в кондоминиуме доступный курьер с запасом мощности.
func (s *Service) ImmediateDeliveryAvailable(ctx context.Context, condominiumID int64, exclude *int64) (bool, error) {
	deliverers, err := s.EligibleDeliverers(ctx, condominiumID, exclude)
	if err != nil || len(deliverers) == 0 {
		return false, err
	}

	active, err := s.repo.CountActiveOrders(ctx, userIDs(deliverers))
	if err != nil {
		return false, err
	}

	for _, d := range deliverers {
		if assignment.HasCapacity(active[d.ID]) {
			return true, nil
		}
	}
	return false, nil
}

// AvailableSlots возвращает ленивую последовательность будущих слотов дня date
// с числом свободных курьеров в каждом. Данные читаются один раз, последовательность можно обходить повторно.
func (s *Service) AvailableSlots(ctx context.Context, condominiumID int64, date time.Time, exclude *int64) (iter.Seq[model.Slot], error) {
	deliverers, err := s.EligibleDeliverers(ctx, condominiumID, exclude)
	if err != nil {
		return nil, err
	}

	day := date.In(s.loc)
	from, to := schedule.Range(day, s.loc)

	orders, err := s.repo.ListActiveOrdersBetween(ctx, userIDs(deliverers), from, to)
	if err != nil {
		return nil, err
	}

	board := schedule.NewBoard(day, s.now(), s.loc, deliverers, orders)
	return board.Slots(), nil
}

// DeliverersWithStats возвращает доступных курьеров со статистикой,
// отсортированных по рейтингу, затем по числу завершённых заказов.
func (s *Service) DeliverersWithStats(ctx context.Context, condominiumID int64, exclude *int64) ([]model.DelivererSummary, error) {
	deliverers, err := s.EligibleDeliverers(ctx, condominiumID, exclude)
	if err != nil {
		return nil, err
	}
	ids := userIDs(deliverers)

	stats, err := s.repo.DelivererStats(ctx, ids)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountActiveOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := make([]model.DelivererSummary, 0, len(deliverers))
	for _, d := range deliverers {
		st := stats[d.ID]
		st.IsCurrentlyAvailable = d.AvailableForDelivery && assignment.HasCapacity(active[d.ID])
		res = append(res, model.DelivererSummary{User: d, Stats: st})
	}

	slices.SortStableFunc(res, func(a, b model.DelivererSummary) int {
		if c := cmp.Compare(b.Stats.AverageRating, a.Stats.AverageRating); c != 0 {
			return c
		}
		return cmp.Compare(b.Stats.CompletedOrders, a.Stats.CompletedOrders)
	})

	return res, nil
}

// Earnings возвращает заработок курьера. Фильтр ограничивает только итоговую сумму.
func (s *Service) Earnings(ctx context.Context, userID int64, from, to *time.Time) (*model.Earnings, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Role.CanDeliver() {
		return nil, fmt.Errorf("%w: only deliverers have earnings", model.ErrForbidden)
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, fmt.Errorf("%w: date_to is before date_from", model.ErrValidation)
	}

	return s.repo.Earnings(ctx, userID, repository.EarningsFilter{From: from, To: to}, s.now())
}

func userIDs(users []model.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
