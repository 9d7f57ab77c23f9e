package order

import (
	"context"
	"time"
)

// StatusPatch carries the fields stamped alongside a status transition.
// Nil fields are left untouched by the store.
type StatusPatch struct {
	TransactionID *string
	ErrorMessage  *string
	CompletedAt   *time.Time
	RefundID      *string
	RefundAmount  *int64
	RefundReason  *string
	RefundedAt    *time.Time
}

// Store is the order persistence contract. The store is the single source of
// truth for order status; callers re-read before transitioning rather than
// caching orders across calls.
type Store interface {
	// CreateOrder persists a new order. The order's ID, OrderNumber and
	// timestamps must already be populated by the caller.
	CreateOrder(ctx context.Context, o *Order) error

	// GetOrder returns the order by id, or ErrNotFound.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// SetPaymentData attaches gateway-specific initiation data to an order.
	SetPaymentData(ctx context.Context, id string, data map[string]any) error

	// SetMetadata replaces the order's audit metadata. Status and amount
	// are not touched.
	SetMetadata(ctx context.Context, id string, metadata map[string]any) error

	// UpdateStatus transitions an order from expected to next, applying the
	// patch atomically. If the stored status no longer equals expected the
	// update touches nothing and ErrStatusConflict is returned; an unknown
	// id yields ErrNotFound.
	UpdateStatus(ctx context.Context, id string, expected, next Status, patch StatusPatch) error

	// ListUserOrders returns a user's orders, most recent first.
	ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*Order, error)

	// UserExists reports whether the referenced user row exists.
	UserExists(ctx context.Context, userID string) (bool, error)
}
