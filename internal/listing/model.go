package listing

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeSale   Type = "sale"
	TypeTrade  Type = "trade"
	TypeWanted Type = "wanted"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Listing is a read-only view of a marketplace post. The order core never
// mutates listings; it only snapshots them at order-creation time.
type Listing struct {
	ID          uuid.UUID       `json:"id"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	GameID      uuid.UUID       `json:"game_id"`
	Type        Type            `json:"listing_type"`
	Status      Status          `json:"status"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Platform    string          `json:"platform"`
	Condition   string          `json:"condition"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (l *Listing) Active() bool {
	return l.Status == StatusActive
}
