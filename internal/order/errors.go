package order

import (
	"errors"
	"fmt"
)

var (
	// validation
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("listing has no valid price")
	ErrInvalidAddress  = errors.New("invalid shipping address")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrNotPurchasable  = errors.New("only sale listings can be purchased")
	ErrSelfPurchase    = errors.New("you cannot purchase your own listing")

	// not found
	ErrListingUnavailable = errors.New("listing not found or inactive")
	ErrOrderNotFound      = errors.New("order not found")

	// authorization
	ErrAccessDenied     = errors.New("access denied")
	ErrRoleNotPermitted = errors.New("this party cannot perform the requested transition")

	// state conflict
	ErrInvalidTransition = errors.New("invalid status transition")

	// checkout batch where every item failed
	ErrCheckoutFailed = errors.New("no orders could be created")
)

// InvalidTransitionError carries the persisted status the transition was
// evaluated against, so callers can render an actionable message.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
