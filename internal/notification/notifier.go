package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const TypeOrder = "order"

type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Read      bool            `json:"read"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Notifier persists per-user notification records. Delivery (push, email,
// websocket) is someone else's problem; a row in the notifications table is
// the contract.
type Notifier struct {
	db *pgxpool.Pool
}

func NewNotifier(db *pgxpool.Pool) *Notifier {
	return &Notifier{db: db}
}

var statusTitles = map[string]string{
	"pending":   "Order placed",
	"paid":      "Order paid",
	"shipped":   "Order shipped",
	"delivered": "Order delivered",
	"cancelled": "Order cancelled",
}

// OrderStatusChanged records an order notification for one user, with the
// message phrased for their side of the transaction.
func (n *Notifier) OrderStatusChanged(ctx context.Context, userID, orderID uuid.UUID, newStatus, productTitle string, isSeller bool) error {
	if productTitle == "" {
		productTitle = "your item"
	}

	title, ok := statusTitles[newStatus]
	if !ok {
		title = "Order updated"
	}

	var message string
	switch {
	case isSeller && newStatus == "pending":
		title = "New order received"
		message = fmt.Sprintf("You received a new order for %q", productTitle)
	case isSeller:
		message = fmt.Sprintf("The order for %q is now %s", productTitle, newStatus)
	default:
		message = fmt.Sprintf("Your order for %q is now %s", productTitle, newStatus)
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":      orderID.String(),
		"status":        newStatus,
		"product_title": productTitle,
		"is_seller":     isSeller,
	})
	if err != nil {
		return fmt.Errorf("notification: failed to marshal payload: %w", err)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("notification: failed to generate id: %w", err)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO notifications (id, user_id, type, title, message, read, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $7)
	`
	if _, err := n.db.Exec(ctx, query, id, userID, TypeOrder, title, message, payload, now); err != nil {
		return fmt.Errorf("notification: failed to insert notification for user %s: %w", userID, err)
	}

	log.Debug().
		Stringer("user_id", userID).
		Stringer("order_id", orderID).
		Str("status", newStatus).
		Msg("notification: order notification recorded")

	return nil
}

// ListByUser returns the newest notifications for a user.
func (n *Notifier) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, user_id, type, title, message, read, payload, created_at, updated_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := n.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("notification: failed to query notifications for user %s: %w", userID, err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Title, &item.Message, &item.Read, &item.Payload, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("notification: failed to scan notification for user %s: %w", userID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: error iterating notifications for user %s: %w", userID, err)
	}

	return items, nil
}
