package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/condo-delivery/internal/assignment"
	"github.com/mmeshcher/condo-delivery/internal/model"
)

const orderColumns = `id, status, scheduled_date, amount, receiver_id, deliverer_id, service_id,
	is_immediate, delivery_notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(
		&o.ID, &status, &o.ScheduledDate, &o.Amount, &o.ReceiverID, &o.DelivererID, &o.ServiceID,
		&o.IsImmediate, &o.DeliveryNotes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateOrder сохраняет новый заказ в статусе PENDING и записывает событие создания.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o *model.Order) (*model.Order, error) {
	var created *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		created, err = scanOrder(tx.QueryRow(ctx,
			`INSERT INTO orders (status, scheduled_date, amount, receiver_id, service_id, is_immediate, delivery_notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+orderColumns,
			string(model.OrderStatusPending), o.ScheduledDate, o.Amount, o.ReceiverID,
			o.ServiceID, o.IsImmediate, o.DeliveryNotes,
		))
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("%w: receiver or service does not exist", model.ErrNotFound)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		if err := insertEvent(ctx, tx, model.OrderEvent{
			OrderID:    created.ID,
			FromStatus: model.OrderStatusPending,
			ToStatus:   model.OrderStatusPending,
			Action:     model.ActionCreate,
			ActorID:    &o.ReceiverID,
		}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders возвращает заказы пользователя как получателя или как курьера, новые первыми.
func (r *PostgresRepository) ListOrders(ctx context.Context, userID int64, asDeliverer bool) ([]model.Order, error) {
	column := "receiver_id"
	if asDeliverer {
		column = "deliverer_id"
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return collectOrders(rows)
}

// ListUnassignedOrders возвращает до limit заказов в PENDING без курьера с id больше afterID
// в порядке возрастания id.
func (r *PostgresRepository) ListUnassignedOrders(ctx context.Context, afterID int64, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE deliverer_id IS NULL AND status = $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		string(model.OrderStatusPending), afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select unassigned orders: %w", err)
	}
	return collectOrders(rows)
}

// ListActiveOrdersBetween возвращает активные заказы курьеров, запланированные в [from, to).
func (r *PostgresRepository) ListActiveOrdersBetween(ctx context.Context, delivererIDs []int64, from, to time.Time) ([]model.Order, error) {
	if len(delivererIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE deliverer_id = ANY($1)
		   AND status = ANY($2)
		   AND scheduled_date >= $3 AND scheduled_date < $4
		 ORDER BY scheduled_date`,
		delivererIDs, statusStrings(model.ActiveStatuses), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("select active orders: %w", err)
	}
	return collectOrders(rows)
}

// CountRecentOrders считает заказы каждого курьера в статусах нагрузки, созданные после since.
// Курьеры без заказов в результат не попадают.
func (r *PostgresRepository) CountRecentOrders(ctx context.Context, delivererIDs []int64, since time.Time) (map[int64]int, error) {
	return r.countByDeliverer(ctx,
		`SELECT deliverer_id, COUNT(*) FROM orders
		 WHERE deliverer_id = ANY($1) AND status = ANY($2) AND created_at >= $3
		 GROUP BY deliverer_id`,
		delivererIDs, statusStrings(model.LoadStatuses), since,
	)
}

// CountActiveOrders считает активные заказы каждого курьера.
func (r *PostgresRepository) CountActiveOrders(ctx context.Context, delivererIDs []int64) (map[int64]int, error) {
	return r.countByDeliverer(ctx,
		`SELECT deliverer_id, COUNT(*) FROM orders
		 WHERE deliverer_id = ANY($1) AND status = ANY($2)
		 GROUP BY deliverer_id`,
		delivererIDs, statusStrings(model.ActiveStatuses),
	)
}

func (r *PostgresRepository) countByDeliverer(ctx context.Context, query string, args ...any) (map[int64]int, error) {
	res := make(map[int64]int)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		res[id] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AssignDeliverer назначает курьера заказу, если заказ всё ещё в PENDING и без курьера,
// а курьер доступен и не превысил лимит активных заказов.
// Возвращает false, если одно из условий уже не выполняется.
func (r *PostgresRepository) AssignDeliverer(ctx context.Context, orderID, delivererID int64) (bool, error) {
	var assigned bool

	err := r.withRetry(ctx, func() error {
		assigned = false

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокировка строки курьера упорядочивает назначения ему и переключение его готовности.
		var available bool
		err = tx.QueryRow(ctx,
			`SELECT available_for_delivery FROM users WHERE id = $1 FOR UPDATE`, delivererID,
		).Scan(&available)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return fmt.Errorf("lock deliverer: %w", err)
		}
		if !available {
			return nil
		}

		var active int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM orders WHERE deliverer_id = $1 AND status = ANY($2)`,
			delivererID, statusStrings(model.ActiveStatuses),
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active orders: %w", err)
		}
		if !assignment.HasCapacity(active) {
			return nil
		}

		tag, err := tx.Exec(ctx,
			`UPDATE orders SET deliverer_id = $2, updated_at = NOW()
			 WHERE id = $1 AND status = $3 AND deliverer_id IS NULL AND receiver_id <> $2`,
			orderID, delivererID, string(model.OrderStatusPending),
		)
		if err != nil {
			return fmt.Errorf("assign deliverer: %w", err)
		}

		assigned = tag.RowsAffected() == 1
		if !assigned {
			return nil
		}

		if err := insertEvent(ctx, tx, model.OrderEvent{
			OrderID:    orderID,
			FromStatus: model.OrderStatusPending,
			ToStatus:   model.OrderStatusPending,
			Action:     model.ActionAssign,
			ActorID:    &delivererID,
		}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return assigned, nil
}

// ReleaseDeliverer снимает курьера с заказа в PENDING и запоминает его отказ,
// чтобы при переназначении он больше не выбирался.
func (r *PostgresRepository) ReleaseDeliverer(ctx context.Context, orderID, delivererID int64) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx,
			`UPDATE orders SET deliverer_id = NULL, updated_at = NOW()
			 WHERE id = $1 AND deliverer_id = $2 AND status = $3`,
			orderID, delivererID, string(model.OrderStatusPending),
		)
		if err != nil {
			return fmt.Errorf("release deliverer: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("%w: order %d is not pending for deliverer %d", model.ErrStateConflict, orderID, delivererID)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO order_rejections (order_id, deliverer_id) VALUES ($1, $2)
			 ON CONFLICT (order_id, deliverer_id) DO NOTHING`,
			orderID, delivererID,
		); err != nil {
			return fmt.Errorf("insert rejection: %w", err)
		}

		if err := insertEvent(ctx, tx, model.OrderEvent{
			OrderID:    orderID,
			FromStatus: model.OrderStatusPending,
			ToStatus:   model.OrderStatusPending,
			Action:     model.ActionReject,
			ActorID:    &delivererID,
		}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// ListRejectedDeliverers возвращает курьеров, которые уже отказались от заказа.
func (r *PostgresRepository) ListRejectedDeliverers(ctx context.Context, orderID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT deliverer_id FROM order_rejections WHERE order_id = $1 ORDER BY rejected_at`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select rejections: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// StatusChange описывает условное изменение статуса заказа.
type StatusChange struct {
	OrderID int64
	From    []model.OrderStatus
	To      model.OrderStatus
	Action  model.Action
	ActorID int64
	// RequireDeliverer требует, чтобы актор был назначенным курьером заказа.
	RequireDeliverer bool
	// RequireReceiver требует, чтобы актор был получателем заказа.
	RequireReceiver bool
}

// TransitionOrderStatus атомарно меняет статус, если заказ всё ещё в одном из статусов From
// и актор соответствует условиям. Проигравший в гонке получает ErrStateConflict.
func (r *PostgresRepository) TransitionOrderStatus(ctx context.Context, ch StatusChange) (*model.Order, error) {
	var updated *model.Order

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var current string
		err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, ch.OrderID).Scan(&current)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: order %d", model.ErrNotFound, ch.OrderID)
			}
			return fmt.Errorf("select order status: %w", err)
		}

		query := `UPDATE orders SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = ANY($3)`
		args := []any{ch.OrderID, string(ch.To), statusStrings(ch.From)}
		if ch.RequireDeliverer {
			query += ` AND deliverer_id = $4`
			args = append(args, ch.ActorID)
		} else if ch.RequireReceiver {
			query += ` AND receiver_id = $4`
			args = append(args, ch.ActorID)
		}

		updated, err = scanOrder(tx.QueryRow(ctx, query+` RETURNING `+orderColumns, args...))
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: cannot %s order %d from %s", model.ErrStateConflict, ch.Action, ch.OrderID, current)
			}
			return fmt.Errorf("update order status: %w", err)
		}

		if err := insertEvent(ctx, tx, model.OrderEvent{
			OrderID:    ch.OrderID,
			FromStatus: model.OrderStatus(current),
			ToStatus:   ch.To,
			Action:     ch.Action,
			ActorID:    &ch.ActorID,
		}); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// ListOrderEvents возвращает историю переходов заказа в хронологическом порядке.
func (r *PostgresRepository) ListOrderEvents(ctx context.Context, orderID int64) ([]model.OrderEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, from_status, to_status, action, actor_id, created_at
		 FROM order_events WHERE order_id = $1 ORDER BY created_at, id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order events: %w", err)
	}
	defer rows.Close()

	var res []model.OrderEvent
	for rows.Next() {
		var (
			e            model.OrderEvent
			from, to, ac string
		)
		if err := rows.Scan(&e.OrderID, &from, &to, &ac, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order event: %w", err)
		}
		e.FromStatus = model.OrderStatus(from)
		e.ToStatus = model.OrderStatus(to)
		e.Action = model.Action(ac)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e model.OrderEvent) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO order_events (order_id, from_status, to_status, action, actor_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.OrderID, string(e.FromStatus), string(e.ToStatus), string(e.Action), e.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert order event: %w", err)
	}
	return nil
}
