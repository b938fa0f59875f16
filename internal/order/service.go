package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
)

// MaxQuantity bounds a line item's quantity, including after merges and
// additions. It matches the INTEGER columns of the ledger.
const MaxQuantity = math.MaxInt32

// Service runs the order workflow. Every call is a single transaction on the
// Store; stock moves and line item writes commit or roll back together.
type Service struct {
	store         Store
	logger        *zap.Logger
	now           func() time.Time
	onStockChange func()
}

type Option func(*Service)

// WithStockObserver registers fn to run after every committed call that moved
// stock. It is used to drop cached product listings.
func WithStockObserver(fn func()) Option {
	return func(s *Service) { s.onStockChange = fn }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger.Named("order"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder opens an order holding the requested products. Repeated
// product ids are merged by summing their quantities.
func (s *Service) CreateOrder(ctx context.Context, req CreateRequest) (Order, error) {
	lines, err := mergeLines(req.Items)
	if err != nil {
		return Order{}, err
	}
	now := s.now().UTC()
	o := Order{ID: newID("ord"), Status: StatusOpen, CreatedAt: now, UpdatedAt: now}

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := s.insertItem(ctx, tx, o.ID, l, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	s.stockChanged()
	s.logger.Info("order created", zap.String("order_id", o.ID), zap.Int("items", len(lines)))
	return s.GetOrder(ctx, o.ID)
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return s.withItems(ctx, o)
}

// ListOrders returns orders newest first.
func (s *Service) ListOrders(ctx context.Context, page catalog.Page) ([]Order, error) {
	page.Skip, page.Limit = clampPage(page.Skip, page.Limit)
	orders, err := s.store.ListOrders(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		full, err := s.withItems(ctx, o)
		if err != nil {
			return nil, err
		}
		out = append(out, full)
	}
	return out, nil
}

// CancelOrder puts every item's units back and deletes the order. An order
// without items counts as not found. The returned order is the state just
// before deletion.
func (s *Service) CancelOrder(ctx context.Context, id string) (Order, error) {
	var cancelled Order
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		items, err := tx.OrderItems(ctx, id)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: order %s has no items", apperr.ErrNotFound, id)
		}
		for _, it := range byProduct(items) {
			if it.ProductID == "" {
				continue
			}
			if o.open() {
				_, err = tx.ReleaseStock(ctx, it.ProductID, it.Quantity)
			} else {
				err = tx.RestockCommitted(ctx, it.ProductID, it.Quantity)
			}
			if err != nil {
				return err
			}
		}
		if err := tx.DeleteItems(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		for i := range items {
			items[i].resolve()
		}
		o.Items, o.Total = items, total(items)
		o.Processed = !o.open()
		cancelled = o
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("cancel order: %w", err)
	}
	s.stockChanged()
	s.logger.Info("order cancelled",
		zap.String("order_id", id),
		zap.String("status", string(cancelled.Status)),
		zap.Int("items", len(cancelled.Items)))
	return cancelled, nil
}

// AddItem reserves qty units of a product on an open order, growing the
// existing line item for that product if there is one.
func (s *Service) AddItem(ctx context.Context, orderID string, l Line) (Item, error) {
	l.ProductID = strings.TrimSpace(l.ProductID)
	if err := validateLine(l); err != nil {
		return Item{}, err
	}
	var itemID string
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := s.lockOpen(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		existing, err := tx.FindItem(ctx, orderID, l.ProductID)
		switch {
		case err == nil:
			if existing.Quantity > MaxQuantity-l.Quantity {
				return quantityTooLarge()
			}
			if err := tx.ReserveStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
			existing.Quantity += l.Quantity
			existing.UpdatedAt = now
			if err := tx.UpdateItem(ctx, existing); err != nil {
				return err
			}
			itemID = existing.ID
		case errors.Is(err, apperr.ErrNotFound):
			it, err := s.insertItem(ctx, tx, orderID, l, now)
			if err != nil {
				return err
			}
			itemID = it.ID
		default:
			return err
		}
		o.UpdatedAt = now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Item{}, fmt.Errorf("add item: %w", err)
	}
	s.stockChanged()
	s.logger.Info("item added",
		zap.String("order_id", orderID),
		zap.String("product_id", l.ProductID),
		zap.Int("quantity", l.Quantity))
	return s.GetItem(ctx, itemID)
}

// UpdateItemQuantity sets an item's quantity, reserving or releasing the
// difference.
func (s *Service) UpdateItemQuantity(ctx context.Context, itemID string, qty int) (Item, error) {
	if err := validateQuantity(qty); err != nil {
		return Item{}, err
	}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		it, o, err := s.lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if it.ProductID == "" {
			return fmt.Errorf("%w: product of item %s was deleted", apperr.ErrNotFound, itemID)
		}
		delta := qty - it.Quantity
		switch {
		case delta > 0:
			err = tx.ReserveStock(ctx, it.ProductID, delta)
		case delta < 0:
			_, err = tx.ReleaseStock(ctx, it.ProductID, -delta)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		now := s.now().UTC()
		it.Quantity, it.UpdatedAt = qty, now
		if err := tx.UpdateItem(ctx, it); err != nil {
			return err
		}
		o.UpdatedAt = now
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Item{}, fmt.Errorf("update item: %w", err)
	}
	s.stockChanged()
	s.logger.Info("item quantity changed", zap.String("item_id", itemID), zap.Int("quantity", qty))
	return s.GetItem(ctx, itemID)
}

// RemoveItem releases the item's units and deletes it. The returned item is
// its state before removal.
func (s *Service) RemoveItem(ctx context.Context, itemID string) (Item, error) {
	var removed Item
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		it, o, err := s.lockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if it.ProductID != "" {
			if _, err := tx.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := tx.DeleteItem(ctx, it.ID); err != nil {
			return err
		}
		o.UpdatedAt = s.now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		it.resolve()
		removed = it
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("remove item: %w", err)
	}
	s.stockChanged()
	s.logger.Info("item removed",
		zap.String("item_id", itemID),
		zap.String("order_id", removed.OrderID),
		zap.Int("quantity", removed.Quantity))
	return removed, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (Item, error) {
	it, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	it.resolve()
	return it, nil
}

func (s *Service) ListItems(ctx context.Context, orderID string) ([]Item, error) {
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.Items, nil
}

// ConfirmOrder turns every reservation of the order into a sale. Units whose
// reservation was dropped by a recount are taken from current stock; when
// stock cannot cover them the order stays open and nothing changes.
func (s *Service) ConfirmOrder(ctx context.Context, orderID string) (Order, error) {
	var count int
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := s.lockOpen(ctx, tx, orderID)
		if err != nil {
			return err
		}
		items, err := tx.OrderItems(ctx, orderID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return apperr.Validation("order has no items")
		}
		for _, it := range byProduct(items) {
			// the product was deleted; the line keeps its snapshot
			if it.ProductID == "" {
				continue
			}
			if err := tx.CommitReservation(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		o.Status = StatusConfirmed
		o.UpdatedAt = s.now().UTC()
		count = len(items)
		return tx.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, fmt.Errorf("confirm order: %w", err)
	}
	s.stockChanged()
	s.logger.Info("order confirmed", zap.String("order_id", orderID), zap.Int("items", count))
	return s.GetOrder(ctx, orderID)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Service) insertItem(ctx context.Context, tx Tx, orderID string, l Line, now time.Time) (Item, error) {
	snap, err := tx.LookupProduct(ctx, l.ProductID)
	if err != nil {
		return Item{}, err
	}
	if err := tx.ReserveStock(ctx, snap.ID, l.Quantity); err != nil {
		return Item{}, err
	}
	it := Item{
		ID:          newID("itm"),
		OrderID:     orderID,
		ProductID:   snap.ID,
		Quantity:    l.Quantity,
		ProductName: snap.Name,
		UnitPrice:   snap.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.InsertItem(ctx, it); err != nil {
		return Item{}, err
	}
	return it, nil
}

func (s *Service) lockOpen(ctx context.Context, tx Tx, orderID string) (Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.open() {
		return Order{}, fmt.Errorf("%w: order %s is %s", apperr.ErrOrderClosed, o.ID, o.Status)
	}
	return o, nil
}

// lockItem locks the item's order and re-reads the item under that lock, so
// a concurrent removal is observed as not found.
func (s *Service) lockItem(ctx context.Context, tx Tx, itemID string) (Item, Order, error) {
	it, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, Order{}, err
	}
	o, err := s.lockOpen(ctx, tx, it.OrderID)
	if err != nil {
		return Item{}, Order{}, err
	}
	it, err = tx.GetItem(ctx, itemID)
	if err != nil {
		return Item{}, Order{}, err
	}
	return it, o, nil
}

func (s *Service) withItems(ctx context.Context, o Order) (Order, error) {
	items, err := s.store.ListItems(ctx, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("order %s items: %w", o.ID, err)
	}
	if items == nil {
		items = []Item{}
	}
	for i := range items {
		items[i].resolve()
	}
	o.Items, o.Total = items, total(items)
	o.Processed = !o.open()
	return o, nil
}

func (s *Service) stockChanged() {
	if s.onStockChange != nil {
		s.onStockChange()
	}
}

func mergeLines(in []Line) ([]Line, error) {
	if len(in) == 0 {
		return nil, apperr.Validation("order must contain at least one product")
	}
	index := make(map[string]int, len(in))
	out := make([]Line, 0, len(in))
	for _, l := range in {
		l.ProductID = strings.TrimSpace(l.ProductID)
		if err := validateLine(l); err != nil {
			return nil, err
		}
		if i, ok := index[l.ProductID]; ok {
			if out[i].Quantity > MaxQuantity-l.Quantity {
				return nil, quantityTooLarge()
			}
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	// product rows are locked in id order to keep concurrent orders from
	// deadlocking on each other
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func validateLine(l Line) error {
	if l.ProductID == "" {
		return apperr.Validation("product_id is required")
	}
	return validateQuantity(l.Quantity)
}

func validateQuantity(qty int) error {
	if qty <= 0 {
		return apperr.Validation("quantity must be greater than zero")
	}
	if qty > MaxQuantity {
		return quantityTooLarge()
	}
	return nil
}

func quantityTooLarge() error {
	return apperr.Validation(fmt.Sprintf("quantity must not exceed %d", MaxQuantity))
}

func byProduct(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })
	return sorted
}

func clampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return skip, limit
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
