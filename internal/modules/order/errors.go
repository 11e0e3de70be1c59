// README: Sentinel errors returned by the order module.
package order

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrBadRequest        = errors.New("bad request")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidAddress    = errors.New("address does not belong to customer")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrForbidden         = errors.New("actor may not request this transition")
	ErrItemsNotPicked    = errors.New("not all items picked")
	ErrAlreadyClaimed    = errors.New("order already claimed by another driver")
	ErrOrderNotClaimable = errors.New("order is not claimable in its current state")
	ErrConflict          = errors.New("order state conflict")
	ErrSupportNeeded     = errors.New("cancellation requires support")
	ErrAlreadyRated      = errors.New("order already rated")
	ErrPaymentInit       = errors.New("payment session could not be created")
)

// ProductUnavailableError reports which requested line cannot be fulfilled.
type ProductUnavailableError struct {
	Line      int
	ProductID int64
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %d (line %d) unavailable", e.ProductID, e.Line)
}
