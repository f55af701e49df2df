package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/swad-client/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware клиента Swad.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/login", h.Login)
		r.Post("/session/logout", h.Logout)

		r.Get("/menu", h.GetMenu)
		r.Get("/menu/veg", h.GetVegMenu)
		r.Get("/menu/category/{category}", h.GetMenuByCategory)

		r.Get("/reviews", h.GetReviews)

		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddCartItem)
		r.Patch("/cart/items/{dishID}", h.SetCartItemQuantity)
		r.Delete("/cart/items/{dishID}", h.RemoveCartItem)
		r.Post("/cart/coupon", h.ApplyCoupon)
		r.Delete("/cart/coupon", h.RemoveCoupon)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(h.sessionGuard)

			r.Post("/checkout", h.Checkout)

			r.Get("/orders", h.GetOrders)

			r.Get("/reservations", h.GetReservations)
			r.Post("/reservations", h.MakeReservation)

			r.Post("/reviews", h.SubmitReview)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.SaveProfile)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.adminGuard)

				r.Get("/orders", h.GetAllOrders)
				r.Get("/report", h.GetReport)
				r.Put("/orders/{orderID}/status", h.UpdateOrderStatus)

				r.Post("/dishes", h.AddDish)
				r.Put("/dishes/{dishID}", h.EditDish)
				r.Delete("/dishes/{dishID}", h.DeleteDish)

				r.Post("/coupons", h.AddCoupon)
			})
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
