package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

const sweepBatchSize = 100

// RunAssignmentSweep периодически пытается назначить курьеров заказам, оставшимся без курьера.
// Блокируется до отмены ctx.
func (s *Service) RunAssignmentSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			assigned, err := s.SweepUnassigned(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Warn("assignment sweep error", zap.Error(err))
			}
			if assigned > 0 {
				s.logger.Info("assignment sweep finished", zap.Int("assigned", assigned))
			}
		}
	}
}

// SweepUnassigned выполняет один проход: для каждого заказа в PENDING без курьера
// повторяет подбор, исключая курьеров, которые от заказа уже отказались.
// Заказы читаются страницами по sweepBatchSize с курсором по id, пока не кончатся.
// Возвращает число назначенных заказов.
func (s *Service) SweepUnassigned(ctx context.Context) (int, error) {
	var (
		assigned int
		cursor   int64
	)
	for ctx.Err() == nil {
		orders, err := s.repo.ListUnassignedOrders(ctx, cursor, sweepBatchSize)
		if err != nil {
			s.metrics.SweepObserved(assigned, err)
			return assigned, err
		}

		for i := range orders {
			if ctx.Err() != nil {
				break
			}

			o := &orders[i]
			cursor = o.ID
			if s.sweepOne(ctx, o) {
				assigned++
			}
		}

		if len(orders) < sweepBatchSize {
			break
		}
	}

	s.metrics.SweepObserved(assigned, ctx.Err())
	return assigned, ctx.Err()
}

func (s *Service) sweepOne(ctx context.Context, o *model.Order) bool {
	rejected, err := s.repo.ListRejectedDeliverers(ctx, o.ID)
	if err != nil {
		s.logger.Warn("load rejections error", zap.Error(err), zap.Int64("order_id", o.ID))
		return false
	}

	res, err := s.assign(ctx, o, rejected)
	if err != nil {
		s.logger.Warn("sweep assign error", zap.Error(err), zap.Int64("order_id", o.ID))
		return false
	}
	return res != nil && res.HasDeliverer()
}
