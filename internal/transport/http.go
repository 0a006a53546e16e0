package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	handler "github.com/gamemarket/backend/internal/handler/http"
)

func NewRouter(orderHandler *handler.OrderHandler, notificationHandler *handler.NotificationHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(handler.RequireIdentity)
		orderHandler.RegisterRoutes(r)
		notificationHandler.RegisterRoutes(r)
	})

	return r
}
