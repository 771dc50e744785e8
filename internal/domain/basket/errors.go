package basket

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for basket operations.
var (
	// ErrEmptyBasket is returned by Checkout when the basket has no lines.
	ErrEmptyBasket = errors.New("basket has no lines")

	// ErrDuplicateBasket is returned by CreateBasket when the user already
	// has an open basket. The FindOrCreateBasket path never surfaces it;
	// seeing it from that path indicates a concurrency-control bug.
	ErrDuplicateBasket = errors.New("user already has an open basket")

	// ErrOrderNotFound is returned when a requested order does not exist.
	ErrOrderNotFound = errors.New("order not found")

	// ErrPersistenceUnavailable wraps storage timeouts and cancellations.
	// The Composer does not retry; retry policy belongs to the caller.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// InvalidQuantityError indicates a quantity outside 1..MaxLineQuantity
// (0..MaxLineQuantity for direct quantity updates, where zero removes).
type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity %d outside allowed range 1..%d", e.Quantity, MaxLineQuantity)
}

// ProductNotFoundError indicates a requested product does not exist in the
// catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// LineNotFoundError indicates the basket holds no line for the product.
type LineNotFoundError struct {
	ProductID string
}

func (e *LineNotFoundError) Error() string {
	return fmt.Sprintf("no basket line for product %s", e.ProductID)
}

// QuantityLimitExceededError indicates an increment would push a line past
// MaxLineQuantity.
type QuantityLimitExceededError struct {
	ProductID string
	Requested int
}

func (e *QuantityLimitExceededError) Error() string {
	return fmt.Sprintf("quantity %d for product %s exceeds limit %d", e.Requested, e.ProductID, MaxLineQuantity)
}

// InvalidStateTransitionError indicates a status change the order state
// machine does not define.
type InvalidStateTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition %s -> %s", e.From, e.To)
}
