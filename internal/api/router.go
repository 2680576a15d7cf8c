package api

import (
	"net/http"

	"github.com/example/swirly-orders/internal/api/middleware"
	"github.com/example/swirly-orders/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func NewRouter(handlers *Handlers, jwtService *auth.JWTService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.DeviceID)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Orders: checkout and tracking by ID
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(jwtService))
		r.Post("/orders", handlers.PlaceOrder)
		r.Get("/orders/{id}", handlers.GetOrder)
		r.Get("/orders/{id}/history", handlers.GetOrderHistory)
		r.Get("/orders/{id}/stream", handlers.StreamOrder)
	})

	// My orders: signed-in users, or guests by device
	r.Route("/me/orders", func(r chi.Router) {
		r.Use(middleware.OptionalAuthMiddleware(jwtService))
		r.With(middleware.RequireIdentity).Get("/", handlers.ListMyOrders)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser)
			r.Get("/search", handlers.SearchMyOrders)
			r.Get("/analytics", handlers.MyAnalytics)
			r.Get("/stream", handlers.StreamMyOrders)
		})
	})

	// Admin
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(jwtService))
		r.Use(middleware.RequireRole(auth.RoleAdmin))
		r.Get("/orders", handlers.ListAllOrders)
		r.Get("/orders/stream", handlers.StreamDashboard)
		r.Get("/stats", handlers.Stats)
		r.Post("/orders/{id}/advance", handlers.AdvanceOrder)
		r.Put("/orders/{id}/status", handlers.SetOrderStatus)
		r.Delete("/orders/{id}", handlers.DeleteOrder)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.DeviceHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
	})
	return c.Handler(r)
}
