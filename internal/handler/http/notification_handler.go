package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gamemarket/backend/internal/notification"
)

// NotificationLister reads back the notification feed of one user.
type NotificationLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]notification.Notification, error)
}

type NotificationHandler struct {
	lister NotificationLister
}

func NewNotificationHandler(lister NotificationLister) *NotificationHandler {
	return &NotificationHandler{lister: lister}
}

func (h *NotificationHandler) RegisterRoutes(router chi.Router) {
	router.Get("/notifications", h.handleList)
}

func (h *NotificationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}

	items, err := h.lister.ListByUser(r.Context(), callerID, queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list notifications")
		respondWithError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"notifications": items})
}
