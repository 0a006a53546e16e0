package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/gamemarket/backend/internal/cache"
	"github.com/gamemarket/backend/internal/listing"
)

// maxTransitionAttempts bounds the compare-and-set retry loop. Each retry
// re-reads the persisted status, so a loser of a race is re-evaluated against
// the status that actually won.
const maxTransitionAttempts = 3

// pendingOrderTTL is the payment window for a pending order. Expiry is
// checked at read time, never enforced by a background sweep.
const pendingOrderTTL = 24 * time.Hour

const statsCacheTTL = time.Minute

// Notifier dispatches a user-facing notification about an order status
// change. Implementations must be safe to fail: the order core logs and
// swallows any error.
type Notifier interface {
	OrderStatusChanged(ctx context.Context, userID, orderID uuid.UUID, newStatus, productTitle string, isSeller bool) error
}

// ChatProvisioner creates (or finds) the chat room tied to an order.
type ChatProvisioner interface {
	EnsureRoom(ctx context.Context, orderID, buyerID, sellerID uuid.UUID) error
}

type Service interface {
	CreateOrder(ctx context.Context, buyerID uuid.UUID, in CreateOrderInput) (*Order, error)
	Checkout(ctx context.Context, buyerID uuid.UUID, in CheckoutInput) (*BatchResult, error)
	Transition(ctx context.Context, orderID, actorID uuid.UUID, target Status) (*Order, error)
	GetOrderByID(ctx context.Context, orderID, callerID uuid.UUID) (*Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Order, int64, error)
	Stats(ctx context.Context, userID uuid.UUID) (*UserStats, error)
}

type service struct {
	repo       Repository
	listings   listing.Reader
	notifier   Notifier
	chat       ChatProvisioner
	statsCache cache.Cache
}

// NewService wires the order core. Notifier, chat and statsCache may be nil;
// the corresponding side effects are then skipped.
func NewService(repo Repository, listings listing.Reader, notifier Notifier, chat ChatProvisioner, statsCache cache.Cache) Service {
	return &service{
		repo:       repo,
		listings:   listings,
		notifier:   notifier,
		chat:       chat,
		statsCache: statsCache,
	}
}

func (s *service) CreateOrder(ctx context.Context, buyerID uuid.UUID, in CreateOrderInput) (*Order, error) {
	if err := in.ShippingAddress.Validate(); err != nil {
		return nil, err
	}

	lst, err := s.listings.GetByID(ctx, in.ListingID)
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil, ErrListingUnavailable
		}
		log.Error().Err(err).Stringer("listing_id", in.ListingID).Msg("service: failed to fetch listing")
		return nil, fmt.Errorf("service: failed to fetch listing: %w", err)
	}
	if !lst.Active() {
		return nil, ErrListingUnavailable
	}
	if lst.Type != listing.TypeSale {
		return nil, ErrNotPurchasable
	}
	if lst.OwnerID == buyerID {
		return nil, ErrSelfPurchase
	}
	if !lst.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	// The game is only decoration for the snapshot; a missing game must not
	// block the order.
	gameName, err := s.listings.GameName(ctx, lst.GameID)
	if err != nil {
		if !errors.Is(err, listing.ErrGameNotFound) {
			log.Warn().Err(err).Stringer("game_id", lst.GameID).Msg("service: failed to resolve game name for snapshot")
		}
		gameName = ""
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate order id: %w", err)
	}

	now := time.Now().UTC()
	ord := &Order{
		ID:            id,
		BuyerID:       buyerID,
		SellerID:      lst.OwnerID,
		ListingID:     lst.ID,
		GameID:        lst.GameID,
		Quantity:      in.Quantity,
		UnitPrice:     lst.Price,
		TotalPrice:    lst.Price.Mul(decimal.NewFromInt(int64(in.Quantity))),
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		ShippingAddress: in.ShippingAddress,
		Note:            in.Note,
		Snapshot: Snapshot{
			Title:       lst.Title,
			Description: lst.Description,
			Platform:    lst.Platform,
			Condition:   lst.Condition,
			ImageURL:    lst.ImageURL,
			GameName:    gameName,
		},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(pendingOrderTTL),
	}

	if err := s.repo.Create(ctx, ord); err != nil {
		if errors.Is(err, ErrListingUnavailable) {
			return nil, ErrListingUnavailable
		}
		log.Error().Err(err).Stringer("order_id", ord.ID).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", ord.ID).
		Stringer("buyer_id", buyerID).
		Stringer("listing_id", lst.ID).
		Str("total_price", ord.TotalPrice.String()).
		Msg("service: order created")

	if s.notifier != nil {
		if err := s.notifier.OrderStatusChanged(ctx, ord.SellerID, ord.ID, string(StatusPending), ord.Snapshot.Title, true); err != nil {
			log.Warn().Err(err).Stringer("order_id", ord.ID).Msg("service: failed to notify seller about new order")
		}
	}

	return ord, nil
}

func (s *service) Checkout(ctx context.Context, buyerID uuid.UUID, in CheckoutInput) (*BatchResult, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := in.ShippingAddress.Validate(); err != nil {
		return nil, err
	}

	result := &BatchResult{
		Orders: make([]Order, 0, len(in.Items)),
		Failed: make([]FailedItem, 0),
	}

	// Items are processed sequentially in submission order; one bad item must
	// not prevent later items from being attempted. Nothing is rolled back.
	for _, item := range in.Items {
		ord, err := s.CreateOrder(ctx, buyerID, CreateOrderInput{
			ListingID:       item.ListingID,
			Quantity:        item.Quantity,
			ShippingAddress: in.ShippingAddress,
			Note:            item.Note,
		})
		if err != nil {
			result.Failed = append(result.Failed, FailedItem{Item: item, Reason: err.Error()})
			continue
		}
		result.Orders = append(result.Orders, *ord)
	}

	result.Summary = BatchSummary{
		TotalItems:      len(in.Items),
		SuccessfulCount: len(result.Orders),
		FailedCount:     len(result.Failed),
	}

	log.Info().
		Stringer("buyer_id", buyerID).
		Int("total_items", result.Summary.TotalItems).
		Int("successful", result.Summary.SuccessfulCount).
		Int("failed", result.Summary.FailedCount).
		Msg("service: checkout processed")

	if result.Summary.SuccessfulCount == 0 {
		return result, ErrCheckoutFailed
	}

	return result, nil
}

func (s *service) Transition(ctx context.Context, orderID, actorID uuid.UUID, target Status) (*Order, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		ord, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, ErrOrderNotFound) {
				return nil, ErrOrderNotFound
			}
			log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for transition")
			return nil, fmt.Errorf("service: failed to load order for transition: %w", err)
		}

		role := ord.RoleOf(actorID)
		if role == RoleNone {
			return nil, ErrAccessDenied
		}
		if !CanTransition(ord.Status, target) {
			return nil, &InvalidTransitionError{From: ord.Status, To: target}
		}
		if !roleMayTrigger(role, target) {
			return nil, ErrRoleNotPermitted
		}

		now := time.Now().UTC()
		swapped, err := s.repo.CompareAndSwapStatus(ctx, orderID, ord.Status, target, paymentStatusFor(target), now)
		if err != nil {
			return nil, fmt.Errorf("service: failed to persist transition of order %s: %w", orderID, err)
		}
		if !swapped {
			// Lost a race against a concurrent transition: re-read and
			// re-validate against the status that actually persisted.
			log.Warn().
				Stringer("order_id", orderID).
				Str("expected_status", string(ord.Status)).
				Msg("service: order status changed concurrently, retrying")
			continue
		}

		ord.Status = target
		if ps := paymentStatusFor(target); ps != nil {
			ord.PaymentStatus = *ps
		}
		ord.UpdatedAt = now

		log.Info().
			Stringer("order_id", orderID).
			Stringer("actor_id", actorID).
			Str("new_status", string(target)).
			Msg("service: order status updated")

		s.afterTransition(ctx, ord, role)

		return ord, nil
	}

	return nil, fmt.Errorf("service: gave up transitioning order %s after %d attempts: %w",
		orderID, maxTransitionAttempts, ErrInvalidTransition)
}

// afterTransition fires the best-effort collaborators once the authoritative
// state mutation has committed. Failures are logged and never surface to the
// caller, and can never revert the transition.
func (s *service) afterTransition(ctx context.Context, ord *Order, actorRole Role) {
	title := ord.Snapshot.Title

	notify := func(userID uuid.UUID, isSeller bool) {
		if s.notifier == nil {
			return
		}
		if err := s.notifier.OrderStatusChanged(ctx, userID, ord.ID, string(ord.Status), title, isSeller); err != nil {
			log.Warn().Err(err).Stringer("order_id", ord.ID).Stringer("user_id", userID).Msg("service: failed to dispatch order notification")
		}
	}

	switch ord.Status {
	case StatusPaid:
		notify(ord.BuyerID, false)
		notify(ord.SellerID, true)
		if s.chat != nil {
			if err := s.chat.EnsureRoom(ctx, ord.ID, ord.BuyerID, ord.SellerID); err != nil {
				log.Warn().Err(err).Stringer("order_id", ord.ID).Msg("service: failed to provision chat room")
			}
		}
	case StatusCancelled, StatusShipped, StatusDelivered:
		// Only the counterparty of whoever triggered the change is told.
		if actorRole == RoleBuyer {
			notify(ord.SellerID, true)
		} else {
			notify(ord.BuyerID, false)
		}
	}
}

func (s *service) GetOrderByID(ctx context.Context, orderID, callerID uuid.UUID) (*Order, error) {
	ord, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	if ord.RoleOf(callerID) == RoleNone {
		return nil, ErrAccessDenied
	}

	return ord, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, q ListQuery) ([]Order, int64, error) {
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	orders, total, err := s.repo.ListByUser(ctx, userID, q)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, 0, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, total, nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	var cacheKey string
	if s.statsCache != nil {
		cacheKey = s.statsCache.GenerateKey("order_stats", userID.String())
		if cached, err := s.statsCache.Get(ctx, cacheKey); err == nil && cached != "" {
			var stats UserStats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				return &stats, nil
			}
		}
	}

	stats := &UserStats{}

	buyerCounts, err := s.repo.StatusCounts(ctx, userID, RoleBuyer)
	if err != nil {
		return nil, fmt.Errorf("service: failed to compute buyer stats: %w", err)
	}
	stats.Buyer = buildRoleStats(buyerCounts)

	sellerCounts, err := s.repo.StatusCounts(ctx, userID, RoleSeller)
	if err != nil {
		return nil, fmt.Errorf("service: failed to compute seller stats: %w", err)
	}
	stats.Seller = buildRoleStats(sellerCounts)

	if stats.TotalSpent, err = s.repo.DeliveredTotal(ctx, userID, RoleBuyer); err != nil {
		return nil, fmt.Errorf("service: failed to compute total spent: %w", err)
	}
	if stats.TotalRevenue, err = s.repo.DeliveredTotal(ctx, userID, RoleSeller); err != nil {
		return nil, fmt.Errorf("service: failed to compute total revenue: %w", err)
	}

	if s.statsCache != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.statsCache.Set(ctx, cacheKey, payload, statsCacheTTL); err != nil {
				log.Warn().Err(err).Stringer("user_id", userID).Msg("service: failed to cache order stats")
			}
		}
	}

	return stats, nil
}

func buildRoleStats(counts map[Status]int64) RoleStats {
	rs := RoleStats{ByStatus: make(map[Status]int64, len(validStatuses))}
	for status := range validStatuses {
		rs.ByStatus[status] = counts[status]
		rs.Total += counts[status]
	}
	return rs
}

// paymentStatusFor mirrors the status change into the payment side-field for
// the two statuses that imply one.
func paymentStatusFor(target Status) *PaymentStatus {
	switch target {
	case StatusPaid:
		ps := PaymentPaid
		return &ps
	case StatusCancelled:
		ps := PaymentCancelled
		return &ps
	default:
		return nil
	}
}
