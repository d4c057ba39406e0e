package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/masatreat/orders-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(h.loginLimiter.Middleware)
			r.Post("/auth/login", h.Login)
		})

		// Витрина: оформление заказа и оплата доступны без учётной записи.
		r.Get("/products", h.GetProducts)
		r.Post("/orders", h.CreateOrder)
		r.Post("/payments/initiate", h.InitiatePayment)
		r.Post("/payments/verify", h.VerifyPayment)
		r.Post("/balance/topup", h.VerifyTopUp)

		// Администрирование.
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.authMiddleware.RequireAdmin)

			r.Post("/products", h.CreateProduct)
			r.Get("/orders", h.GetOrders)
			r.Get("/orders/{id}", h.GetOrderByID)
			r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
