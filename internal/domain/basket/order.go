package basket

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. An order starts as an open
// basket, becomes placed at checkout, and ends fulfilled or cancelled.
type Status string

const (
	StatusBasket    Status = "basket"
	StatusPlaced    Status = "placed"
	StatusCancelled Status = "cancelled"
	StatusFulfilled Status = "fulfilled"
)

// transitions maps each status to the statuses reachable from it.
// Cancelled and fulfilled are terminal.
var transitions = map[Status][]Status{
	StatusBasket: {StatusPlaced},
	StatusPlaced: {StatusFulfilled, StatusCancelled},
}

// canTransitionTo reports whether next is a legal successor of s.
func (s Status) canTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// MaxLineQuantity bounds a single line's quantity. The original schema
// stored quantity as a single byte.
const MaxLineQuantity = 255

// Line is one product entry within an order. UnitPrice is snapshotted from
// the catalog when the line is first created and never re-derived; later
// catalog price changes do not affect existing lines.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total returns quantity x unit price.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the aggregate root owning its lines. All line mutations go
// through the Composer, which keeps Total equal to the sum of line totals.
type Order struct {
	ID        string
	UserID    string
	Status    Status
	Total     decimal.Decimal
	CreatedAt time.Time
	Lines     []Line
}

// NewBasket returns a new empty basket-status order for the given user.
func NewBasket(userID string) *Order {
	return &Order{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    StatusBasket,
		Total:     decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition moves the order to next, enforcing the status machine.
func (o *Order) Transition(next Status) error {
	if !o.Status.canTransitionTo(next) {
		return &InvalidStateTransitionError{From: o.Status, To: next}
	}
	o.Status = next
	return nil
}

// line returns a pointer to the line for productID, or nil.
func (o *Order) line(productID string) *Line {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			return &o.Lines[i]
		}
	}
	return nil
}

// removeLine deletes the line for productID, reporting whether it existed.
func (o *Order) removeLine(productID string) bool {
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// recomputeTotal resets Total to the sum of line totals.
func (o *Order) recomputeTotal() {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Total())
	}
	o.Total = total
}

// Repository defines persistence operations for orders and their lines.
//
// FindOrCreateBasket must be atomic with respect to the one-basket-per-user
// invariant: a single transactional insert-if-absent keyed on
// (user_id, status = basket), never a read followed by a conditional write.
type Repository interface {
	// FindBasket returns the user's open basket, or (nil, nil) when the user
	// has none. Absence is an expected state, not an error.
	FindBasket(ctx context.Context, userID string) (*Order, error)

	// CreateBasket inserts a new basket order. It returns ErrDuplicateBasket
	// when the user already has an open basket.
	CreateBasket(ctx context.Context, o *Order) error

	// FindOrCreateBasket atomically returns the user's open basket, creating
	// an empty one when absent. It never returns ErrDuplicateBasket.
	FindOrCreateBasket(ctx context.Context, userID string) (*Order, error)

	// UpdateLines replaces the stored lines and total of an open basket.
	UpdateLines(ctx context.Context, o *Order) error

	// UpdateStatus transitions an order from one status to another. The from
	// status acts as an optimistic guard: no row is updated when the stored
	// status differs.
	UpdateStatus(ctx context.Context, orderID string, from, to Status) error

	// GetByID returns an order with its lines, or ErrOrderNotFound.
	GetByID(ctx context.Context, orderID string) (*Order, error)

	// ListByUser returns all of a user's orders, newest first, lines included.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}
