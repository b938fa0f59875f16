package order

import (
	"context"

	"erp/ecommerce/catalog-service/internal/catalog"
)

// Store reads orders outside of a transaction and opens transactions for the
// workflow. Lookups wrap apperr.ErrNotFound when nothing matches.
type Store interface {
	// WithinTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise, including when ctx is cancelled first.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, page catalog.Page) ([]Order, error)
	// ListItems returns the items of an order with the live product attached
	// when it still exists.
	ListItems(ctx context.Context, orderID string) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
}

// Tx is the transactional surface of the workflow. The stock primitives are
// only reachable through it.
type Tx interface {
	InsertOrder(ctx context.Context, o Order) error
	// LockOrder reads the order and holds it until the transaction ends. Every
	// mutation of an order's items takes this lock first.
	LockOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	DeleteOrder(ctx context.Context, id string) error

	LookupProduct(ctx context.Context, id string) (ProductSnapshot, error)
	// ReserveStock moves n units from stock to reserved, failing with
	// apperr.ErrInsufficientStock when stock < n.
	ReserveStock(ctx context.Context, productID string, n int) error
	// ReleaseStock returns up to n reserved units to stock and reports how
	// many were returned. Units dropped by a recount are not returned.
	ReleaseStock(ctx context.Context, productID string, n int) (int, error)
	// CommitReservation consumes n units: first from reserved, the shortfall
	// from stock. It fails with apperr.ErrInsufficientStock, changing
	// nothing, when stock+reserved < n.
	CommitReservation(ctx context.Context, productID string, n int) error
	// RestockCommitted puts n previously committed units back on stock.
	RestockCommitted(ctx context.Context, productID string, n int) error

	OrderItems(ctx context.Context, orderID string) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	FindItem(ctx context.Context, orderID, productID string) (Item, error)
	InsertItem(ctx context.Context, it Item) error
	UpdateItem(ctx context.Context, it Item) error
	DeleteItem(ctx context.Context, id string) error
	DeleteItems(ctx context.Context, orderID string) error
}
