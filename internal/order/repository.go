package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, ord *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Order, int64, error)
	// CompareAndSwapStatus atomically moves the order from the expected status
	// to the new one. It reports false when the order no longer carries the
	// expected status (or does not exist), without modifying anything.
	CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to Status, payment *PaymentStatus, updatedAt time.Time) (bool, error)
	StatusCounts(ctx context.Context, userID uuid.UUID, role Role) (map[Status]int64, error)
	DeliveredTotal(ctx context.Context, userID uuid.UUID, role Role) (decimal.Decimal, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, buyer_id, seller_id, listing_id, game_id, quantity, unit_price, total_price,
	status, payment_status, shipping_address, note, listing_snapshot, created_at, updated_at, expires_at`

func (r *postgresRepository) Create(ctx context.Context, ord *Order) error {
	addressJSON, err := json.Marshal(ord.ShippingAddress)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal shipping address: %w", err)
	}
	snapshotJSON, err := json.Marshal(ord.Snapshot)
	if err != nil {
		return fmt.Errorf("repository: failed to marshal listing snapshot: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = r.db.Exec(ctx, query,
		ord.ID,
		ord.BuyerID,
		ord.SellerID,
		ord.ListingID,
		ord.GameID,
		ord.Quantity,
		ord.UnitPrice,
		ord.TotalPrice,
		string(ord.Status),
		string(ord.PaymentStatus),
		addressJSON,
		ord.Note,
		snapshotJSON,
		ord.CreatedAt,
		ord.UpdatedAt,
		ord.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			// The listing row vanished between snapshot and insert.
			return ErrListingUnavailable
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", ord.ID, err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	ord, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	return ord, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Order, int64, error) {
	where, args := userRoleFilter(userID, q.Role)
	if q.Status != nil {
		args = append(args, string(*q.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM orders WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders for user %s: %w", userID, err)
	}

	args = append(args, q.Limit, q.Offset)
	listQuery := fmt.Sprintf(
		`SELECT `+orderColumns+` FROM orders WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan order for user %s: %w", userID, err)
		}
		orders = append(orders, *ord)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating orders for user %s: %w", userID, err)
	}

	return orders, total, nil
}

func (r *postgresRepository) CompareAndSwapStatus(ctx context.Context, id uuid.UUID, from, to Status, payment *PaymentStatus, updatedAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, payment_status = COALESCE($2, payment_status), updated_at = $3
		WHERE id = $4 AND status = $5
	`

	var paymentArg *string
	if payment != nil {
		s := string(*payment)
		paymentArg = &s
	}

	cmdTag, err := r.db.Exec(ctx, query, string(to), paymentArg, updatedAt, id, string(from))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Str("new_status", string(to)).Msg("repository: failed to update order status")
		return false, fmt.Errorf("repository: failed to update status of order %s: %w", id, err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func (r *postgresRepository) StatusCounts(ctx context.Context, userID uuid.UUID, role Role) (map[Status]int64, error) {
	where, args := userRoleFilter(userID, role)
	query := `SELECT status, COUNT(*) FROM orders WHERE ` + where + ` GROUP BY status`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to count orders by status for user %s: %w", userID, err)
	}
	defer rows.Close()

	counts := make(map[Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status count for user %s: %w", userID, err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating status counts for user %s: %w", userID, err)
	}

	return counts, nil
}

func (r *postgresRepository) DeliveredTotal(ctx context.Context, userID uuid.UUID, role Role) (decimal.Decimal, error) {
	where, args := userRoleFilter(userID, role)
	query := `SELECT COALESCE(SUM(total_price), 0) FROM orders WHERE ` + where + ` AND status = 'delivered'`

	var total decimal.Decimal
	if err := r.db.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("repository: failed to sum delivered orders for user %s: %w", userID, err)
	}

	return total, nil
}

func userRoleFilter(userID uuid.UUID, role Role) (string, []any) {
	switch role {
	case RoleBuyer:
		return "buyer_id = $1", []any{userID}
	case RoleSeller:
		return "seller_id = $1", []any{userID}
	default:
		return "(buyer_id = $1 OR seller_id = $1)", []any{userID}
	}
}

func scanOrder(row pgx.Row) (*Order, error) {
	var ord Order
	var addressJSON, snapshotJSON []byte

	err := row.Scan(
		&ord.ID,
		&ord.BuyerID,
		&ord.SellerID,
		&ord.ListingID,
		&ord.GameID,
		&ord.Quantity,
		&ord.UnitPrice,
		&ord.TotalPrice,
		&ord.Status,
		&ord.PaymentStatus,
		&addressJSON,
		&ord.Note,
		&snapshotJSON,
		&ord.CreatedAt,
		&ord.UpdatedAt,
		&ord.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(addressJSON, &ord.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address of order %s: %w", ord.ID, err)
	}
	if err := json.Unmarshal(snapshotJSON, &ord.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing snapshot of order %s: %w", ord.ID, err)
	}

	return &ord, nil
}
