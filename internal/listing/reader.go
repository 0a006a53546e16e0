package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound     = errors.New("listing not found")
	ErrGameNotFound = errors.New("game not found")
)

// Reader provides the catalog views consumed by the order core.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	GameName(ctx context.Context, gameID uuid.UUID) (string, error)
}

type postgresReader struct {
	db *pgxpool.Pool
}

func NewReader(db *pgxpool.Pool) Reader {
	return &postgresReader{db: db}
}

func (r *postgresReader) GetByID(ctx context.Context, id uuid.UUID) (*Listing, error) {
	query := `
		SELECT id, owner_id, game_id, listing_type, status, title, description, platform, condition, image_url, price, created_at, updated_at
		FROM listings
		WHERE id = $1
	`

	var l Listing
	err := r.db.QueryRow(ctx, query, id).Scan(
		&l.ID,
		&l.OwnerID,
		&l.GameID,
		&l.Type,
		&l.Status,
		&l.Title,
		&l.Description,
		&l.Platform,
		&l.Condition,
		&l.ImageURL,
		&l.Price,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("listing: failed to select listing by id %s: %w", id, err)
	}

	return &l, nil
}

func (r *postgresReader) GameName(ctx context.Context, gameID uuid.UUID) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT name FROM games WHERE id = $1`, gameID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrGameNotFound
		}
		return "", fmt.Errorf("listing: failed to select game name by id %s: %w", gameID, err)
	}

	return name, nil
}
