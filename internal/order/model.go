// Package order implements the order workflow and owns every write to the
// stock ledger: reservations when items are added, release when they are
// removed or the order is cancelled, and commitment on confirmation.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"erp/ecommerce/catalog-service/internal/catalog"
)

// Status is the persisted lifecycle state. Whether an open order is empty or
// has items is derived from its line items; a cancelled order is deleted.
type Status string

const (
	StatusOpen      Status = "open"
	StatusConfirmed Status = "confirmed"
)

type Order struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Processed bool            `json:"processed"`
	Items     []Item          `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Item is an order line item. ProductName and UnitPrice are frozen when the
// item is first inserted; Name and Price are what clients should display and
// come from the live product while it exists.
type Item struct {
	ID          string           `json:"id"`
	OrderID     string           `json:"order_id"`
	ProductID   string           `json:"product_id,omitempty"`
	Quantity    int              `json:"quantity"`
	ProductName string           `json:"product_name"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	Product     *catalog.Product `json:"product,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Line is one requested {product, quantity} pair.
type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateRequest struct {
	Items []Line `json:"items"`
}

// ProductSnapshot is what the workflow copies onto a new line item.
type ProductSnapshot struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

func (o Order) open() bool { return o.Status == StatusOpen }

// resolve fills the display fields, falling back to the snapshot when the
// product is gone.
func (it *Item) resolve() {
	it.Name, it.Price = it.ProductName, it.UnitPrice
	if it.Product != nil {
		it.Name, it.Price = it.Product.Name, it.Product.Price
	}
}

func total(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
