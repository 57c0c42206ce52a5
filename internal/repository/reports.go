package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

// CreatePayment сохраняет платёж по заказу.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p *model.Payment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO payments (order_id, payer_id, amount, method, status)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.OrderID, p.PayerID, p.Amount, string(p.Method), string(p.Status),
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: order %d", model.ErrNotFound, p.OrderID)
		}
		return 0, fmt.Errorf("create payment: %w", err)
	}
	return id, nil
}

// CreateReview сохраняет отзыв. Повторный отзыв того же участника отклоняется.
func (r *PostgresRepository) CreateReview(ctx context.Context, rv *model.Review) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (order_id, user_id, rating, comment)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		rv.OrderID, rv.UserID, rv.Rating, rv.Comment,
	).Scan(&id)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return 0, fmt.Errorf("%w: order %d already reviewed by user %d", model.ErrStateConflict, rv.OrderID, rv.UserID)
		case isCheckViolation(err):
			return 0, fmt.Errorf("%w: rating must be between 1 and 5", model.ErrValidation)
		case isForeignKeyViolation(err):
			return 0, fmt.Errorf("%w: order %d", model.ErrNotFound, rv.OrderID)
		}
		return 0, fmt.Errorf("create review: %w", err)
	}
	return id, nil
}

// DelivererStats возвращает число завершённых заказов и средний рейтинг каждого курьера.
// Рейтинг считается по отзывам о завершённых заказах, где пользователь был курьером.
func (r *PostgresRepository) DelivererStats(ctx context.Context, delivererIDs []int64) (map[int64]model.DelivererStats, error) {
	res := make(map[int64]model.DelivererStats, len(delivererIDs))
	if len(delivererIDs) == 0 {
		return res, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT o.deliverer_id,
		        COUNT(DISTINCT o.id),
		        COALESCE(AVG(rv.rating)::float8, 0)
		 FROM orders o
		 LEFT JOIN reviews rv ON rv.order_id = o.id AND rv.user_id <> o.deliverer_id
		 WHERE o.deliverer_id = ANY($1) AND o.status = $2
		 GROUP BY o.deliverer_id`,
		delivererIDs, string(model.OrderStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select deliverer stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			st model.DelivererStats
		)
		if err := rows.Scan(&id, &st.CompletedOrders, &st.AverageRating); err != nil {
			return nil, fmt.Errorf("scan deliverer stats: %w", err)
		}
		res[id] = st
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// EarningsFilter ограничивает итоговую сумму заработка по дате доставки.
type EarningsFilter struct {
	From *time.Time
	To   *time.Time
}

// Earnings считает заработок курьера по завершённым заказам.
// Недельная и месячная суммы считаются за последние 7 и 30 дней от now без учёта фильтра.
func (r *PostgresRepository) Earnings(ctx context.Context, delivererID int64, f EarningsFilter, now time.Time) (*model.Earnings, error) {
	e := &model.Earnings{RatingDistribution: make(map[int]int)}

	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0), COUNT(*)
		 FROM orders
		 WHERE deliverer_id = $1 AND status = $2
		   AND ($3::timestamptz IS NULL OR scheduled_date >= $3)
		   AND ($4::timestamptz IS NULL OR scheduled_date <= $4)`,
		delivererID, string(model.OrderStatusCompleted), f.From, f.To,
	).Scan(&e.Total, &e.TotalOrders)
	if err != nil {
		return nil, fmt.Errorf("select earnings: %w", err)
	}

	var weekly, monthly decimal.Decimal
	err = r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount) FILTER (WHERE scheduled_date >= $3), 0),
		        COALESCE(SUM(amount) FILTER (WHERE scheduled_date >= $4), 0)
		 FROM orders
		 WHERE deliverer_id = $1 AND status = $2`,
		delivererID, string(model.OrderStatusCompleted), now.AddDate(0, 0, -7), now.AddDate(0, 0, -30),
	).Scan(&weekly, &monthly)
	if err != nil {
		return nil, fmt.Errorf("select period earnings: %w", err)
	}
	e.Weekly, e.Monthly = weekly, monthly

	rows, err := r.pool.Query(ctx,
		`SELECT rv.rating, COUNT(*)
		 FROM reviews rv JOIN orders o ON o.id = rv.order_id
		 WHERE o.deliverer_id = $1 AND o.status = $2 AND rv.user_id <> o.deliverer_id
		 GROUP BY rv.rating
		 ORDER BY rv.rating`,
		delivererID, string(model.OrderStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select rating distribution: %w", err)
	}
	defer rows.Close()

	sum := 0
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		e.RatingDistribution[rating] = n
		e.TotalReviews += n
		sum += rating * n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if e.TotalReviews > 0 {
		e.AverageRating = float64(sum) / float64(e.TotalReviews)
	}

	return e, nil
}
