package basket

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ozsapka/shop-api/internal/domain/product"
)

// userLocks serializes basket mutations per user. Striping keeps memory
// bounded regardless of how many distinct users are seen.
type userLocks struct {
	stripes [64]sync.Mutex
}

// mutationKind labels line mutation metrics by operation.
func mutationKind(op string) metric.AddOption {
	return metric.WithAttributes(attribute.String("operation", op))
}

func (l *userLocks) lock(userID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	mu := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}

// Composer owns the basket mutation protocol: it finds or creates a user's
// open basket, adds, updates and removes product lines, keeps the basket
// total consistent, and drives order status transitions.
//
// All mutations for one user are serialized through per-user locks; the
// repository's transactional find-or-create additionally guarantees at most
// one basket row per user across processes.
type Composer struct {
	products product.Repository
	orders   Repository
	locks    userLocks

	addCounter      metric.Int64Counter
	checkoutCounter metric.Int64Counter
}

// NewComposer creates a Composer with the required repositories. The meter
// registers counters for basket mutations and checkouts.
func NewComposer(products product.Repository, orders Repository, meter metric.Meter) (*Composer, error) {
	addCounter, err := meter.Int64Counter("basket.line_mutations",
		metric.WithDescription("Number of basket line add/update/remove operations"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create line mutation counter")
	}

	checkoutCounter, err := meter.Int64Counter("basket.checkouts",
		metric.WithDescription("Number of successful checkouts"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout counter")
	}

	return &Composer{
		products:        products,
		orders:          orders,
		addCounter:      addCounter,
		checkoutCounter: checkoutCounter,
	}, nil
}

// FindBasket returns the user's open basket, or (nil, nil) when absent.
func (c *Composer) FindBasket(ctx context.Context, userID string) (*Order, error) {
	return c.orders.FindBasket(ctx, userID)
}

// AddProduct adds quantity units of a product to the user's basket, creating
// the basket when absent. An existing line is incremented and keeps the unit
// price captured when it was first added; a new line snapshots the current
// catalog price. It returns the updated basket and its distinct line count.
func (c *Composer) AddProduct(ctx context.Context, userID, productID string, quantity int) (*Order, int, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return nil, 0, &InvalidQuantityError{Quantity: quantity}
	}

	p, err := c.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, 0, &ProductNotFoundError{ProductID: productID}
		}
		return nil, 0, errors.Wrapf(err, "get product %s", productID)
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	o, err := c.orders.FindOrCreateBasket(ctx, userID)
	if err != nil {
		return nil, 0, errors.Wrap(err, "find or create basket")
	}

	if l := o.line(productID); l != nil {
		if l.Quantity+quantity > MaxLineQuantity {
			return nil, 0, &QuantityLimitExceededError{
				ProductID: productID,
				Requested: l.Quantity + quantity,
			}
		}
		l.Quantity += quantity
	} else {
		o.Lines = append(o.Lines, Line{
			ProductID: productID,
			Quantity:  quantity,
			UnitPrice: p.Price,
		})
	}

	o.recomputeTotal()
	if err := c.orders.UpdateLines(ctx, o); err != nil {
		return nil, 0, errors.Wrap(err, "update basket")
	}

	c.addCounter.Add(ctx, 1, mutationKind("add"))
	return o, len(o.Lines), nil
}

// UpdateQuantity sets a line's quantity directly. Zero removes the line.
// The line's snapshot unit price is kept.
func (c *Composer) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*Order, error) {
	if quantity < 0 || quantity > MaxLineQuantity {
		return nil, &InvalidQuantityError{Quantity: quantity}
	}

	unlock := c.locks.lock(userID)
	defer unlock()

	o, err := c.orders.FindBasket(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find basket")
	}
	if o == nil {
		return nil, &LineNotFoundError{ProductID: productID}
	}

	l := o.line(productID)
	if l == nil {
		return nil, &LineNotFoundError{ProductID: productID}
	}

	if quantity == 0 {
		o.removeLine(productID)
	} else {
		l.Quantity = quantity
	}

	o.recomputeTotal()
	if err := c.orders.UpdateLines(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update basket")
	}

	c.addCounter.Add(ctx, 1, mutationKind("update"))
	return o, nil
}

// RemoveProduct removes the line for productID when present. A missing line
// or a missing basket is a no-op, not an error.
func (c *Composer) RemoveProduct(ctx context.Context, userID, productID string) (*Order, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	o, err := c.orders.FindBasket(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find basket")
	}
	if o == nil || !o.removeLine(productID) {
		return o, nil
	}

	o.recomputeTotal()
	if err := c.orders.UpdateLines(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update basket")
	}

	c.addCounter.Add(ctx, 1, mutationKind("remove"))
	return o, nil
}

// Checkout places the user's basket. The placed order's lines become
// immutable; the user's next AddProduct opens a fresh basket.
func (c *Composer) Checkout(ctx context.Context, userID string) (*Order, error) {
	unlock := c.locks.lock(userID)
	defer unlock()

	o, err := c.orders.FindBasket(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "find basket")
	}
	if o == nil || len(o.Lines) == 0 {
		return nil, ErrEmptyBasket
	}

	if err := o.Transition(StatusPlaced); err != nil {
		return nil, err
	}
	if err := c.orders.UpdateStatus(ctx, o.ID, StatusBasket, StatusPlaced); err != nil {
		return nil, errors.Wrap(err, "place order")
	}

	c.checkoutCounter.Add(ctx, 1)
	return o, nil
}

// Fulfill transitions a placed order to fulfilled.
func (c *Composer) Fulfill(ctx context.Context, orderID string) (*Order, error) {
	return c.transition(ctx, orderID, StatusFulfilled)
}

// Cancel transitions a placed order to cancelled.
func (c *Composer) Cancel(ctx context.Context, orderID string) (*Order, error) {
	return c.transition(ctx, orderID, StatusCancelled)
}

func (c *Composer) transition(ctx context.Context, orderID string, to Status) (*Order, error) {
	o, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if err := o.Transition(to); err != nil {
		return nil, err
	}
	if err := c.orders.UpdateStatus(ctx, orderID, from, to); err != nil {
		return nil, errors.Wrapf(err, "transition order %s", orderID)
	}
	return o, nil
}
