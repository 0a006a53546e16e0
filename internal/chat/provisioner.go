package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const welcomeMessage = "Chat created for this order. Use it to sort out the details of the transaction."

// Provisioner creates the per-order chat room on demand. Messaging itself
// lives elsewhere; the order core only needs the room to exist.
type Provisioner struct {
	db *pgxpool.Pool
}

func NewProvisioner(db *pgxpool.Pool) *Provisioner {
	return &Provisioner{db: db}
}

// EnsureRoom creates the chat room for an order if it does not exist yet.
// The room is keyed by order id, so calling this twice is harmless.
func (p *Provisioner) EnsureRoom(ctx context.Context, orderID, buyerID, sellerID uuid.UUID) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chat: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("chat: failed to rollback transaction")
			}
		}
	}()

	var existingID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM chat_rooms WHERE order_id = $1`, orderID).Scan(&existingID)
	if err == nil {
		return tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("chat: failed to look up room for order %s: %w", orderID, err)
	}

	roomID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("chat: failed to generate room id: %w", err)
	}

	now := time.Now().UTC()
	cmdTag, err := tx.Exec(ctx, `
		INSERT INTO chat_rooms (id, order_id, buyer_id, seller_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		ON CONFLICT (order_id) DO NOTHING
	`, roomID, orderID, buyerID, sellerID, now)
	if err != nil {
		return fmt.Errorf("chat: failed to insert room for order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// A concurrent provisioner won; its room already has the welcome message.
		return tx.Commit(ctx)
	}

	messageID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("chat: failed to generate message id: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, room_id, user_id, content, is_system, created_at)
		VALUES ($1, $2, NULL, $3, true, $4)
	`, messageID, roomID, welcomeMessage, now)
	if err != nil {
		return fmt.Errorf("chat: failed to insert welcome message for order %s: %w", orderID, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("chat: failed to commit transaction: %w", err)
	}

	log.Info().Stringer("order_id", orderID).Stringer("room_id", roomID).Msg("chat: room provisioned")

	return nil
}
