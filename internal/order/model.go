package order

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// remember to add new statuses to the validStatuses map
var validStatuses = map[Status]struct{}{
	StatusPending:   {},
	StatusPaid:      {},
	StatusShipped:   {},
	StatusDelivered: {},
	StatusCancelled: {},
}

func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := validStatuses[status]; !ok {
		return "", fmt.Errorf("invalid order status %q", s)
	}
	return status, nil
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Role is a caller's relation to one specific order.
type Role string

const (
	RoleNone   Role = ""
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAll    Role = "all" // list-query filter only, never a transition actor
)

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipcode"`
}

func (a Address) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"street", a.Street},
		{"number", a.Number},
		{"neighborhood", a.Neighborhood},
		{"city", a.City},
		{"state", a.State},
		{"zipcode", a.ZipCode},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: field %q is required", ErrInvalidAddress, f.name)
		}
	}
	return nil
}

// Snapshot is the listing data frozen into the order at creation time, so
// later edits or deletion of the listing cannot corrupt historical orders.
type Snapshot struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Platform    string `json:"platform"`
	Condition   string `json:"condition"`
	ImageURL    string `json:"image_url"`
	GameName    string `json:"game_name"`
}

type Order struct {
	ID              uuid.UUID       `json:"id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	SellerID        uuid.UUID       `json:"seller_id"`
	ListingID       uuid.UUID       `json:"listing_id"`
	GameID          uuid.UUID       `json:"game_id"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Status          Status          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ShippingAddress Address         `json:"shipping_address"`
	Note            string          `json:"note"`
	Snapshot        Snapshot        `json:"listing_snapshot"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// RoleOf reports how userID relates to the order.
func (o *Order) RoleOf(userID uuid.UUID) Role {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	default:
		return RoleNone
	}
}

// Expired reports whether an unpaid order has passed its payment window.
// Expiry is a read-time check: the stored status is never rewritten without
// an explicit transition.
func (o *Order) Expired(now time.Time) bool {
	return o.Status == StatusPending && now.After(o.ExpiresAt)
}

type CartItem struct {
	ListingID uuid.UUID `json:"listing_id"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
}

type FailedItem struct {
	Item   CartItem `json:"item"`
	Reason string   `json:"reason"`
}

type BatchSummary struct {
	TotalItems      int `json:"total_items"`
	SuccessfulCount int `json:"successful_count"`
	FailedCount     int `json:"failed_count"`
}

// BatchResult is the per-item outcome of one checkout call. It is never
// persisted; each created order stands on its own.
type BatchResult struct {
	Orders  []Order      `json:"orders"`
	Failed  []FailedItem `json:"failed_items,omitempty"`
	Summary BatchSummary `json:"summary"`
}

type CreateOrderInput struct {
	ListingID       uuid.UUID
	Quantity        int
	ShippingAddress Address
	Note            string
}

type CheckoutInput struct {
	Items           []CartItem
	ShippingAddress Address
	PaymentMethod   string
}

type ListQuery struct {
	Role   Role
	Status *Status
	Limit  int
	Offset int
}

type RoleStats struct {
	Total    int64            `json:"total"`
	ByStatus map[Status]int64 `json:"by_status"`
}

type UserStats struct {
	Buyer        RoleStats       `json:"buyer_stats"`
	Seller       RoleStats       `json:"seller_stats"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}
