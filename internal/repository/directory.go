package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

const userColumns = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
	u.available_for_delivery, u.created_at, d.id, d.condominium_id, d.name, d.tower, d.floor`

const userFrom = `FROM users u LEFT JOIN departments d ON d.id = u.department_id`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u     model.User
		role  string
		depID *int64
		condo *int64
		name  *string
		tower *string
		floor *int
	)

	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &role,
		&u.AvailableForDelivery, &u.CreatedAt, &depID, &condo, &name, &tower, &floor,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	if depID != nil {
		u.Department = &model.Department{ID: *depID, CondominiumID: *condo, Name: *name, Tower: *tower, Floor: *floor}
	}

	return &u, nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, role)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", model.ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` `+userFrom+` WHERE u.email = $1`, email,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, email)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetUser возвращает пользователя вместе с его квартирой.
func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` `+userFrom+` WHERE u.id = $1`, id,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// SetUserDepartment привязывает пользователя к квартире.
func (r *PostgresRepository) SetUserDepartment(ctx context.Context, userID, departmentID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET department_id = $2 WHERE id = $1`,
		userID, departmentID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: department %d", model.ErrNotFound, departmentID)
		}
		return fmt.Errorf("update user department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	return nil
}

// ListEligibleDeliverers возвращает доступных курьеров кондоминиума, кроме исключённых пользователей.
func (r *PostgresRepository) ListEligibleDeliverers(ctx context.Context, condominiumID int64, exclude []int64) ([]model.User, error) {
	if exclude == nil {
		exclude = []int64{}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` `+userFrom+`
		 WHERE d.condominium_id = $1
		   AND u.role = ANY($2)
		   AND u.available_for_delivery
		   AND NOT (u.id = ANY($3))
		 ORDER BY u.id`,
		condominiumID,
		[]string{string(model.RoleDeliverer), string(model.RoleReceiverAndDeliverer)},
		exclude,
	)
	if err != nil {
		return nil, fmt.Errorf("select deliverers: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deliverer: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ToggleAvailability переключает доступность курьера. Перед отключением проверяется,
// что у курьера нет активных заказов. Возвращает новое значение и число активных заказов.
func (r *PostgresRepository) ToggleAvailability(ctx context.Context, userID int64) (bool, int, error) {
	var (
		available bool
		active    int
	)

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем строку пользователя, чтобы новый заказ не назначился между проверкой и обновлением.
		var role string
		err = tx.QueryRow(ctx,
			`SELECT role, available_for_delivery FROM users WHERE id = $1 FOR UPDATE`, userID,
		).Scan(&role, &available)
		if err != nil {
			if isNoRows(err) {
				return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		if !model.Role(role).CanDeliver() {
			return fmt.Errorf("%w: user has no deliverer role", model.ErrValidation)
		}

		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM orders WHERE deliverer_id = $1 AND status = ANY($2)`,
			userID, statusStrings(model.ActiveStatuses),
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active orders: %w", err)
		}

		if available && active > 0 {
			return fmt.Errorf("%w: cannot disable availability with %d active orders", model.ErrCapacity, active)
		}

		available = !available
		if _, err := tx.Exec(ctx,
			`UPDATE users SET available_for_delivery = $2 WHERE id = $1`, userID, available,
		); err != nil {
			return fmt.Errorf("update availability: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, active, err
	}

	return available, active, nil
}

// GetCondominium возвращает кондоминиум по идентификатору.
func (r *PostgresRepository) GetCondominium(ctx context.Context, id int64) (*model.Condominium, error) {
	var c model.Condominium
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, address, district, region, entries FROM condominiums WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Address, &c.District, &c.Region, &c.Entries)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: condominium %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get condominium: %w", err)
	}
	return &c, nil
}

// CreateCondominium создаёт кондоминиум.
func (r *PostgresRepository) CreateCondominium(ctx context.Context, c *model.Condominium) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO condominiums (name, address, district, region, entries)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		c.Name, c.Address, c.District, c.Region, c.Entries,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create condominium: %w", err)
	}
	return id, nil
}

// CreateDepartment создаёт квартиру в кондоминиуме.
func (r *PostgresRepository) CreateDepartment(ctx context.Context, d *model.Department) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO departments (condominium_id, name, tower, floor)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		d.CondominiumID, d.Name, d.Tower, d.Floor,
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: condominium %d", model.ErrNotFound, d.CondominiumID)
		}
		return 0, fmt.Errorf("create department: %w", err)
	}
	return id, nil
}

// CreateServiceType создаёт тип услуги.
func (r *PostgresRepository) CreateServiceType(ctx context.Context, st *model.ServiceType) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO service_types (name, description, price) VALUES ($1, $2, $3) RETURNING id`,
		st.Name, st.Description, st.Price,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create service type: %w", err)
	}
	return id, nil
}

// CreateDeliveryService регистрирует услугу курьера.
func (r *PostgresRepository) CreateDeliveryService(ctx context.Context, s *model.DeliveryService) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO services (type_id, user_id, status) VALUES ($1, $2, $3) RETURNING id`,
		s.TypeID, s.UserID, string(s.Status),
	).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: service type %d", model.ErrNotFound, s.TypeID)
		}
		return 0, fmt.Errorf("create service: %w", err)
	}
	return id, nil
}

// GetDeliveryService возвращает услугу вместе с ценой её типа.
func (r *PostgresRepository) GetDeliveryService(ctx context.Context, id int64) (*model.DeliveryService, error) {
	var (
		s      model.DeliveryService
		status string
		price  decimal.Decimal
	)
	err := r.pool.QueryRow(ctx,
		`SELECT s.id, s.type_id, s.user_id, s.status, t.price, t.name
		 FROM services s JOIN service_types t ON t.id = s.type_id
		 WHERE s.id = $1`, id,
	).Scan(&s.ID, &s.TypeID, &s.UserID, &status, &price, &s.TypeName)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%w: service %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	s.Status = model.ServiceStatus(status)
	s.Price = price
	return &s, nil
}

// ListDeliveryServices возвращает услуги курьера вместе с ценами их типов.
func (r *PostgresRepository) ListDeliveryServices(ctx context.Context, userID int64) ([]model.DeliveryService, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.type_id, s.user_id, s.status, t.price, t.name
		 FROM services s JOIN service_types t ON t.id = s.type_id
		 WHERE s.user_id = $1
		 ORDER BY s.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var res []model.DeliveryService
	for rows.Next() {
		var (
			s      model.DeliveryService
			status string
		)
		if err := rows.Scan(&s.ID, &s.TypeID, &s.UserID, &status, &s.Price, &s.TypeName); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		s.Status = model.ServiceStatus(status)
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	return res, nil
}

// UpdateDeliveryServiceStatus меняет статус услуги.
func (r *PostgresRepository) UpdateDeliveryServiceStatus(ctx context.Context, id int64, status model.ServiceStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE services SET status = $2 WHERE id = $1`, id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: service %d", model.ErrNotFound, id)
	}
	return nil
}

// DeleteDeliveryService удаляет услугу. Заказы, ссылавшиеся на неё, теряют ссылку.
func (r *PostgresRepository) DeleteDeliveryService(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: service %d", model.ErrNotFound, id)
	}
	return nil
}
