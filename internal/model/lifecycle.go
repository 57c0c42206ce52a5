package model

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// Зарезервированные статусы. Конечный автомат их не порождает и не принимает.
const (
	OrderStatusAssigned    OrderStatus = "ASSIGNED"
	OrderStatusNotAssigned OrderStatus = "NOT_ASSIGNED"
	OrderStatusInProgress  OrderStatus = "IN_PROGRESS"
)

// ActiveStatuses — статусы, которые учитываются в лимите одновременных заказов курьера.
var ActiveStatuses = []OrderStatus{OrderStatusPending, OrderStatusAccepted}

// LoadStatuses — статусы, которые учитываются при балансировке нагрузки за последние дни.
var LoadStatuses = []OrderStatus{OrderStatusPending, OrderStatusAccepted, OrderStatusCompleted}

// IsTerminal сообщает, является ли статус конечным.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsActive сообщает, занимает ли заказ в этом статусе курьера.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusPending || s == OrderStatusAccepted
}

// Action — действие участника над заказом.
type Action string

const (
	ActionCreate   Action = "create"
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
	ActionAssign   Action = "assign"
)

// Actor определяет, какой участник заказа вправе выполнить действие.
type Actor int

const (
	ActorReceiver Actor = iota + 1
	ActorDeliverer
)

// Transition описывает допустимое действие: из каких статусов, в какой и кем.
type Transition struct {
	Action Action
	From   []OrderStatus
	To     OrderStatus
	Actor  Actor
}

// Permits сообщает, допускает ли переход исходный статус.
func (t Transition) Permits(from OrderStatus) bool {
	for _, s := range t.From {
		if s == from {
			return true
		}
	}
	return false
}

// Transitions — конечный автомат заказа в виде кода.
// Отказ курьера оставляет заказ в PENDING: курьер снимается и подбирается новый.
var Transitions = map[Action]Transition{
	ActionAccept: {
		Action: ActionAccept,
		From:   []OrderStatus{OrderStatusPending},
		To:     OrderStatusAccepted,
		Actor:  ActorDeliverer,
	},
	ActionReject: {
		Action: ActionReject,
		From:   []OrderStatus{OrderStatusPending},
		To:     OrderStatusPending,
		Actor:  ActorDeliverer,
	},
	ActionComplete: {
		Action: ActionComplete,
		From:   []OrderStatus{OrderStatusAccepted},
		To:     OrderStatusCompleted,
		Actor:  ActorDeliverer,
	},
	ActionCancel: {
		Action: ActionCancel,
		From:   []OrderStatus{OrderStatusPending, OrderStatusAccepted},
		To:     OrderStatusCancelled,
		Actor:  ActorReceiver,
	},
}

// ParseAction возвращает переход для действия участника.
func ParseAction(s string) (Transition, bool) {
	t, ok := Transitions[Action(s)]
	return t, ok
}

// CanTransition сообщает, существует ли переход между статусами.
func CanTransition(from, to OrderStatus) bool {
	for _, t := range Transitions {
		if t.To == to && t.Permits(from) {
			return true
		}
	}
	return false
}
