package order_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/order"
)

func TestQuantityBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "Kettle", "5", 10)

	tooLarge := math.MaxInt32
	tooLarge++

	requests := map[string][]order.Line{
		"wrapping merge": {{ProductID: p.ID, Quantity: math.MaxInt}, {ProductID: p.ID, Quantity: math.MaxInt}},
		"merge past max": {{ProductID: p.ID, Quantity: order.MaxQuantity}, {ProductID: p.ID, Quantity: 1}},
		"single line":    {{ProductID: p.ID, Quantity: tooLarge}},
	}
	for name, lines := range requests {
		t.Run(name, func(t *testing.T) {
			_, err := f.orders.CreateOrder(ctx, order.CreateRequest{Items: lines})
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}
	stock, reserved := f.ledger(t, p.ID)
	assert.Equal(t, 10, stock)
	assert.Equal(t, 0, reserved)

	o, err := f.orders.CreateOrder(ctx, order.CreateRequest{Items: []order.Line{{ProductID: p.ID, Quantity: 1}}})
	require.NoError(t, err)
	itemID := o.Items[0].ID

	_, err = f.orders.AddItem(ctx, o.ID, order.Line{ProductID: p.ID, Quantity: order.MaxQuantity})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err), "got %v", err)

	_, err = f.orders.AddItem(ctx, o.ID, order.Line{ProductID: p.ID, Quantity: tooLarge})
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err), "got %v", err)

	_, err = f.orders.UpdateItemQuantity(ctx, itemID, tooLarge)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err), "got %v", err)

	got, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.Items[0].Quantity)
	stock, reserved = f.ledger(t, p.ID)
	assert.Equal(t, 9, stock)
	assert.Equal(t, 1, reserved)
}

// TestRandomWorkflowKeepsLedgerConsistent drives seeded random sequences of
// workflow calls and checks after every step that no counter is negative,
// that reserved matches the open orders, and that no unit is created or lost.
func TestRandomWorkflowKeepsLedgerConsistent(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1234, 99991} {
		t.Run(fmt.Sprintf("seed %d", seed), func(t *testing.T) {
			runRandomWorkflow(t, seed, 150)
		})
	}
}

func runRandomWorkflow(t *testing.T, seed int64, steps int) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(seed))
	f := newFixture(t)

	initial := map[string]int{}
	var products []catalog.Product
	for i, stock := range []int{6, 10, 15} {
		p := f.product(t, fmt.Sprintf("product %d", i), "2.50", stock)
		products = append(products, p)
		initial[p.ID] = stock
	}
	pick := func() string { return products[rng.Intn(len(products))].ID }

	for step := 0; step < steps; step++ {
		orders, err := f.orders.ListOrders(ctx, catalog.Page{Limit: 200})
		require.NoError(t, err)
		var open []order.Order
		for _, o := range orders {
			if o.Status == order.StatusOpen {
				open = append(open, o)
			}
		}

		var op string
		switch n := rng.Intn(6); {
		case n == 0 || len(orders) == 0:
			op = "create"
			var lines []order.Line
			for i := rng.Intn(3); i >= 0; i-- {
				lines = append(lines, order.Line{ProductID: pick(), Quantity: 1 + rng.Intn(6)})
			}
			_, err = f.orders.CreateOrder(ctx, order.CreateRequest{Items: lines})
		case n == 1 && len(open) > 0:
			op = "add"
			o := open[rng.Intn(len(open))]
			_, err = f.orders.AddItem(ctx, o.ID, order.Line{ProductID: pick(), Quantity: 1 + rng.Intn(4)})
		case n == 2 && len(open) > 0:
			op = "update"
			if it, ok := randomItem(rng, open); ok {
				_, err = f.orders.UpdateItemQuantity(ctx, it.ID, 1+rng.Intn(8))
			}
		case n == 3 && len(open) > 0:
			op = "remove"
			if it, ok := randomItem(rng, open); ok {
				_, err = f.orders.RemoveItem(ctx, it.ID)
			}
		case n == 4:
			op = "cancel"
			_, err = f.orders.CancelOrder(ctx, orders[rng.Intn(len(orders))].ID)
		case len(open) > 0:
			op = "confirm"
			_, err = f.orders.ConfirmOrder(ctx, open[rng.Intn(len(open))].ID)
		default:
			op = "noop"
		}
		if err != nil {
			require.True(t,
				errors.Is(err, apperr.ErrInsufficientStock) || errors.Is(err, apperr.ErrNotFound) || apperr.IsValidation(err),
				"step %d %s: unexpected error %v", step, op, err)
		}

		f.assertLedger(t, initial, fmt.Sprintf("step %d %s", step, op))
	}
}

func randomItem(rng *rand.Rand, orders []order.Order) (order.Item, bool) {
	o := orders[rng.Intn(len(orders))]
	if len(o.Items) == 0 {
		return order.Item{}, false
	}
	return o.Items[rng.Intn(len(o.Items))], true
}

func (f *fixture) assertLedger(t *testing.T, initial map[string]int, at string) {
	t.Helper()
	orders, err := f.orders.ListOrders(context.Background(), catalog.Page{Limit: 200})
	require.NoError(t, err)

	held := map[string]int{}
	sold := map[string]int{}
	for _, o := range orders {
		for _, it := range o.Items {
			if o.Status == order.StatusOpen {
				held[it.ProductID] += it.Quantity
			} else {
				sold[it.ProductID] += it.Quantity
			}
		}
	}
	for id, start := range initial {
		stock, reserved := f.ledger(t, id)
		require.GreaterOrEqual(t, stock, 0, "%s: stock of %s", at, id)
		require.GreaterOrEqual(t, reserved, 0, "%s: reserved of %s", at, id)
		require.Equal(t, held[id], reserved, "%s: reserved of %s", at, id)
		require.Equal(t, start, stock+reserved+sold[id], "%s: units of %s", at, id)
	}
}
