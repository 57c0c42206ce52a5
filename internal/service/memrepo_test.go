package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmeshcher/condo-delivery/internal/assignment"
	"github.com/mmeshcher/condo-delivery/internal/model"
	"github.com/mmeshcher/condo-delivery/internal/repository"
)

// memRepo — хранилище в памяти с теми же условными обновлениями, что и PostgresRepository.
type memRepo struct {
	mu sync.Mutex

	now         time.Time
	nextID      int64
	users       map[int64]*model.User
	condos      map[int64]*model.Condominium
	departments map[int64]*model.Department
	types       map[int64]*model.ServiceType
	services    map[int64]*model.DeliveryService
	orders      map[int64]*model.Order
	rejections  map[int64][]int64
	events      []model.OrderEvent
	payments    []model.Payment
	reviews     []model.Review

	// beforeAssign вызывается перед условным назначением и позволяет смоделировать гонку.
	beforeAssign func(orderID, delivererID int64)
}

func newMemRepo(now time.Time) *memRepo {
	return &memRepo{
		now:         now,
		users:       map[int64]*model.User{},
		condos:      map[int64]*model.Condominium{},
		departments: map[int64]*model.Department{},
		types:       map[int64]*model.ServiceType{},
		services:    map[int64]*model.DeliveryService{},
		orders:      map[int64]*model.Order{},
		rejections:  map[int64][]int64{},
	}
}

func (r *memRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) CreateUser(_ context.Context, u *model.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return 0, fmt.Errorf("%w: %s", model.ErrUserExists, u.Email)
		}
	}
	cp := *u
	cp.ID = r.id()
	r.users[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return r.userCopy(u), nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, email)
}

func (r *memRepo) GetUser(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	return r.userCopy(u), nil
}

func (r *memRepo) userCopy(u *model.User) *model.User {
	cp := *u
	if u.Department != nil {
		d := *r.departments[u.Department.ID]
		cp.Department = &d
	}
	return &cp
}

func (r *memRepo) SetUserDepartment(_ context.Context, userID, departmentID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	d, ok := r.departments[departmentID]
	if !ok {
		return fmt.Errorf("%w: department %d", model.ErrNotFound, departmentID)
	}
	u.Department = d
	return nil
}

func (r *memRepo) ToggleAvailability(_ context.Context, userID int64) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return false, 0, fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}
	if !u.Role.CanDeliver() {
		return false, 0, fmt.Errorf("%w: user has no deliverer role", model.ErrValidation)
	}

	active := r.activeCount(userID)
	if u.AvailableForDelivery && active > 0 {
		return false, active, fmt.Errorf("%w: cannot disable availability with %d active orders", model.ErrCapacity, active)
	}
	u.AvailableForDelivery = !u.AvailableForDelivery
	return u.AvailableForDelivery, active, nil
}

func (r *memRepo) ListEligibleDeliverers(_ context.Context, condominiumID int64, exclude []int64) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.User
	for _, u := range r.users {
		if !u.Role.CanDeliver() || !u.AvailableForDelivery || u.Department == nil {
			continue
		}
		if r.departments[u.Department.ID].CondominiumID != condominiumID || slices.Contains(exclude, u.ID) {
			continue
		}
		res = append(res, *r.userCopy(u))
	}
	slices.SortFunc(res, func(a, b model.User) int { return int(a.ID - b.ID) })
	return res, nil
}

func (r *memRepo) GetCondominium(_ context.Context, id int64) (*model.Condominium, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.condos[id]
	if !ok {
		return nil, fmt.Errorf("%w: condominium %d", model.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) CreateCondominium(_ context.Context, c *model.Condominium) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	cp.ID = r.id()
	r.condos[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memRepo) CreateDepartment(_ context.Context, d *model.Department) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.condos[d.CondominiumID]; !ok {
		return 0, fmt.Errorf("%w: condominium %d", model.ErrNotFound, d.CondominiumID)
	}
	cp := *d
	cp.ID = r.id()
	r.departments[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memRepo) CreateServiceType(_ context.Context, st *model.ServiceType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *st
	cp.ID = r.id()
	r.types[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memRepo) CreateDeliveryService(_ context.Context, s *model.DeliveryService) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.types[s.TypeID]
	if !ok {
		return 0, fmt.Errorf("%w: service type %d", model.ErrNotFound, s.TypeID)
	}
	cp := *s
	cp.ID = r.id()
	cp.Price = st.Price
	cp.TypeName = st.Name
	r.services[cp.ID] = &cp
	return cp.ID, nil
}

func (r *memRepo) GetDeliveryService(_ context.Context, id int64) (*model.DeliveryService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %d", model.ErrNotFound, id)
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) ListDeliveryServices(_ context.Context, userID int64) ([]model.DeliveryService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.DeliveryService
	for _, s := range r.services {
		if s.UserID == userID {
			res = append(res, *s)
		}
	}
	slices.SortFunc(res, func(a, b model.DeliveryService) int { return int(a.ID - b.ID) })
	return res, nil
}

func (r *memRepo) UpdateDeliveryServiceStatus(_ context.Context, id int64, status model.ServiceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.services[id]
	if !ok {
		return fmt.Errorf("%w: service %d", model.ErrNotFound, id)
	}
	s.Status = status
	return nil
}

func (r *memRepo) DeleteDeliveryService(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[id]; !ok {
		return fmt.Errorf("%w: service %d", model.ErrNotFound, id)
	}
	delete(r.services, id)
	for _, o := range r.orders {
		if o.ServiceID != nil && *o.ServiceID == id {
			o.ServiceID = nil
		}
	}
	return nil
}

func (r *memRepo) CreateOrder(_ context.Context, o *model.Order) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *o
	cp.ID = r.id()
	cp.Status = model.OrderStatusPending
	cp.DelivererID = nil
	cp.CreatedAt = r.now
	cp.UpdatedAt = r.now
	r.orders[cp.ID] = &cp
	r.events = append(r.events, model.OrderEvent{
		OrderID: cp.ID, FromStatus: cp.Status, ToStatus: cp.Status, Action: model.ActionCreate, ActorID: &o.ReceiverID,
	})

	res := cp
	return &res, nil
}

// seedOrder добавляет заказ как есть, минуя бизнес-правила.
func (r *memRepo) seedOrder(o model.Order) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	o.ID = r.id()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = r.now
	}
	r.orders[o.ID] = &o
	return o.ID
}

func (r *memRepo) order(id int64) model.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.orders[id]
}

func (r *memRepo) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) ListOrders(_ context.Context, userID int64, asDeliverer bool) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.orders {
		if (asDeliverer && o.IsDeliverer(userID)) || (!asDeliverer && o.ReceiverID == userID) {
			res = append(res, *o)
		}
	}
	slices.SortFunc(res, func(a, b model.Order) int { return int(b.ID - a.ID) })
	return res, nil
}

func (r *memRepo) ListUnassignedOrders(_ context.Context, afterID int64, limit int) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.orders {
		if o.ID > afterID && o.Status == model.OrderStatusPending && o.DelivererID == nil {
			res = append(res, *o)
		}
	}
	slices.SortFunc(res, func(a, b model.Order) int { return int(a.ID - b.ID) })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memRepo) ListActiveOrdersBetween(_ context.Context, delivererIDs []int64, from, to time.Time) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Order
	for _, o := range r.orders {
		if o.DelivererID == nil || !slices.Contains(delivererIDs, *o.DelivererID) || !o.Status.IsActive() {
			continue
		}
		if o.ScheduledDate.Before(from) || !o.ScheduledDate.Before(to) {
			continue
		}
		res = append(res, *o)
	}
	return res, nil
}

func (r *memRepo) CountRecentOrders(_ context.Context, delivererIDs []int64, since time.Time) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := map[int64]int{}
	for _, o := range r.orders {
		if o.DelivererID == nil || !slices.Contains(delivererIDs, *o.DelivererID) {
			continue
		}
		if slices.Contains(model.LoadStatuses, o.Status) && !o.CreatedAt.Before(since) {
			res[*o.DelivererID]++
		}
	}
	return res, nil
}

func (r *memRepo) CountActiveOrders(_ context.Context, delivererIDs []int64) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := map[int64]int{}
	for _, id := range delivererIDs {
		if n := r.activeCount(id); n > 0 {
			res[id] = n
		}
	}
	return res, nil
}

func (r *memRepo) activeCount(delivererID int64) int {
	n := 0
	for _, o := range r.orders {
		if o.IsDeliverer(delivererID) && o.Status.IsActive() {
			n++
		}
	}
	return n
}

func (r *memRepo) AssignDeliverer(_ context.Context, orderID, delivererID int64) (bool, error) {
	if r.beforeAssign != nil {
		r.beforeAssign(orderID, delivererID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || o.Status != model.OrderStatusPending || o.DelivererID != nil || o.ReceiverID == delivererID {
		return false, nil
	}
	d, ok := r.users[delivererID]
	if !ok || !d.AvailableForDelivery || !assignment.HasCapacity(r.activeCount(delivererID)) {
		return false, nil
	}
	id := delivererID
	o.DelivererID = &id
	r.events = append(r.events, model.OrderEvent{
		OrderID: orderID, FromStatus: o.Status, ToStatus: o.Status, Action: model.ActionAssign, ActorID: &id,
	})
	return true, nil
}

func (r *memRepo) ReleaseDeliverer(_ context.Context, orderID, delivererID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok || !o.IsDeliverer(delivererID) || o.Status != model.OrderStatusPending {
		return fmt.Errorf("%w: order %d is not pending for deliverer %d", model.ErrStateConflict, orderID, delivererID)
	}
	o.DelivererID = nil
	if !slices.Contains(r.rejections[orderID], delivererID) {
		r.rejections[orderID] = append(r.rejections[orderID], delivererID)
	}
	id := delivererID
	r.events = append(r.events, model.OrderEvent{
		OrderID: orderID, FromStatus: o.Status, ToStatus: o.Status, Action: model.ActionReject, ActorID: &id,
	})
	return nil
}

func (r *memRepo) ListRejectedDeliverers(_ context.Context, orderID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.rejections[orderID]), nil
}

func (r *memRepo) TransitionOrderStatus(_ context.Context, ch repository.StatusChange) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[ch.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, ch.OrderID)
	}

	allowed := slices.Contains(ch.From, o.Status)
	if ch.RequireDeliverer && !o.IsDeliverer(ch.ActorID) {
		allowed = false
	}
	if ch.RequireReceiver && o.ReceiverID != ch.ActorID {
		allowed = false
	}
	if !allowed {
		return nil, fmt.Errorf("%w: cannot %s order %d from %s", model.ErrStateConflict, ch.Action, ch.OrderID, o.Status)
	}

	from := o.Status
	o.Status = ch.To
	actor := ch.ActorID
	r.events = append(r.events, model.OrderEvent{
		OrderID: ch.OrderID, FromStatus: from, ToStatus: ch.To, Action: ch.Action, ActorID: &actor,
	})

	cp := *o
	return &cp, nil
}

func (r *memRepo) ListOrderEvents(_ context.Context, orderID int64) ([]model.OrderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.OrderEvent
	for _, e := range r.events {
		if e.OrderID == orderID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (r *memRepo) CreatePayment(_ context.Context, p *model.Payment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *p
	cp.ID = r.id()
	r.payments = append(r.payments, cp)
	return cp.ID, nil
}

func (r *memRepo) CreateReview(_ context.Context, rv *model.Review) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.reviews {
		if existing.OrderID == rv.OrderID && existing.UserID == rv.UserID {
			return 0, fmt.Errorf("%w: order %d already reviewed by user %d", model.ErrStateConflict, rv.OrderID, rv.UserID)
		}
	}
	cp := *rv
	cp.ID = r.id()
	r.reviews = append(r.reviews, cp)
	return cp.ID, nil
}

func (r *memRepo) DelivererStats(_ context.Context, delivererIDs []int64) (map[int64]model.DelivererStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := map[int64]model.DelivererStats{}
	for _, id := range delivererIDs {
		var (
			st      model.DelivererStats
			sum, nr int
		)
		for _, o := range r.orders {
			if !o.IsDeliverer(id) || o.Status != model.OrderStatusCompleted {
				continue
			}
			st.CompletedOrders++
			for _, rv := range r.reviews {
				if rv.OrderID == o.ID && rv.UserID != id {
					sum += rv.Rating
					nr++
				}
			}
		}
		if nr > 0 {
			st.AverageRating = float64(sum) / float64(nr)
		}
		if st.CompletedOrders > 0 {
			res[id] = st
		}
	}
	return res, nil
}

func (r *memRepo) Earnings(_ context.Context, delivererID int64, f repository.EarningsFilter, now time.Time) (*model.Earnings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &model.Earnings{RatingDistribution: map[int]int{}}
	for _, o := range r.orders {
		if !o.IsDeliverer(delivererID) || o.Status != model.OrderStatusCompleted {
			continue
		}
		if (f.From == nil || !o.ScheduledDate.Before(*f.From)) && (f.To == nil || !o.ScheduledDate.After(*f.To)) {
			e.Total = e.Total.Add(o.Amount)
			e.TotalOrders++
		}
		if !o.ScheduledDate.Before(now.AddDate(0, 0, -7)) {
			e.Weekly = e.Weekly.Add(o.Amount)
		}
		if !o.ScheduledDate.Before(now.AddDate(0, 0, -30)) {
			e.Monthly = e.Monthly.Add(o.Amount)
		}
	}
	return e, nil
}
