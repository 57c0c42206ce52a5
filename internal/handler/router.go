package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/condo-delivery/internal/middleware"
	"github.com/mmeshcher/condo-delivery/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса доставки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/", h.GetProfile)
				r.Put("/department", h.UpdateDepartment)
				r.Post("/availability/toggle", h.ToggleAvailability)
				r.Get("/earnings", h.Earnings)
				r.Get("/services", h.ListDeliveryServices)
				r.Post("/services", h.CreateDeliveryService)
				r.Put("/services/{id}", h.UpdateDeliveryService)
				r.Delete("/services/{id}", h.DeleteDeliveryService)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/orders", func(r chi.Router) {
				r.With(h.limiter.Middleware).Post("/", h.CreateOrder)
				r.Get("/", h.ListOrders)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetOrder)
					r.Get("/events", h.OrderEvents)
					r.Post("/accept", h.Transition(model.ActionAccept))
					r.Post("/reject", h.Transition(model.ActionReject))
					r.Post("/complete", h.Transition(model.ActionComplete))
					r.Post("/cancel", h.Transition(model.ActionCancel))
					r.Post("/payments", h.CreatePayment)
					r.Post("/reviews", h.CreateReview)
				})
			})

			r.Post("/condominiums", h.CreateCondominium)
			r.Route("/condominiums/{id}", func(r chi.Router) {
				r.Post("/departments", h.CreateDepartment)
				r.Get("/deliverers", h.ListDeliverers)
				r.Get("/slots", h.ListSlots)
				r.Get("/availability", h.ImmediateAvailability)
			})

			r.Post("/service-types", h.CreateServiceType)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
