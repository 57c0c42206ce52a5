// Package metrics экспортирует показатели подбора курьеров и жизненного цикла заказов в Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/condo-delivery/internal/model"
)

const defaultNamespace = "condo_delivery"

// Collector реализует service.Metrics поверх Prometheus.
type Collector struct {
	gatherer prometheus.Gatherer

	assignments  *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	toggles      *prometheus.CounterVec
	sweepRuns    *prometheus.CounterVec
	sweepAssigns prometheus.Counter
}

// NewPrometheus создаёт коллектор и регистрирует метрики в reg.
// Если reg равен nil, используется отдельный реестр.
func NewPrometheus(reg *prometheus.Registry, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = defaultNamespace
	}

	c := &Collector{
		gatherer: reg,
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "attempts_total",
			Help:      "Deliverer assignment attempts by outcome (assigned, no_candidates, no_condominium, lost_race, deliverer_unavailable).",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "transitions_total",
			Help:      "Order transitions by action and result.",
		}, []string{"action", "result"}),
		toggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deliverer",
			Name:      "availability_toggles_total",
			Help:      "Availability toggles by result (on, off, refused, error).",
		}, []string{"result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Background assignment sweep runs by result.",
		}, []string{"result"}),
		sweepAssigns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "assigned_total",
			Help:      "Orders assigned by the background sweep.",
		}),
	}

	reg.MustRegister(c.assignments, c.transitions, c.toggles, c.sweepRuns, c.sweepAssigns)
	return c
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// AssignmentObserved учитывает исход подбора курьера.
func (c *Collector) AssignmentObserved(outcome string) {
	c.assignments.WithLabelValues(outcome).Inc()
}

// TransitionObserved учитывает действие над заказом.
func (c *Collector) TransitionObserved(action model.Action, err error) {
	c.transitions.WithLabelValues(string(action), result(err)).Inc()
}

// AvailabilityToggled учитывает переключение доступности курьера.
func (c *Collector) AvailabilityToggled(available bool, err error) {
	switch {
	case errors.Is(err, model.ErrCapacity):
		c.toggles.WithLabelValues("refused").Inc()
	case err != nil:
		c.toggles.WithLabelValues("error").Inc()
	case available:
		c.toggles.WithLabelValues("on").Inc()
	default:
		c.toggles.WithLabelValues("off").Inc()
	}
}

// SweepObserved учитывает проход фонового подбора.
func (c *Collector) SweepObserved(assigned int, err error) {
	c.sweepRuns.WithLabelValues(result(err)).Inc()
	c.sweepAssigns.Add(float64(assigned))
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrStateConflict):
		return "conflict"
	case errors.Is(err, model.ErrValidation):
		return "invalid"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	}
	return "error"
}
