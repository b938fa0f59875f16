package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/order"
)

// detachProduct deletes a product and clears the product reference of every
// line item that pointed at it, open orders included. This is the state a
// reservation racing a product delete would leave behind without the row lock.
func detachProduct(m *Memory, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	for itemID, it := range m.items {
		if it.ProductID == id {
			it.ProductID = ""
			m.items[itemID] = it
		}
	}
}

func itemFor(t *testing.T, o order.Order, productID string) order.Item {
	t.Helper()
	for _, it := range o.Items {
		if it.ProductID == productID {
			return it
		}
	}
	t.Fatalf("order %s has no item for %s", o.ID, productID)
	return order.Item{}
}

func TestWorkflowToleratesDetachedItems(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedProduct(t, m, "p1", 5)
	seedProduct(t, m, "p2", 5)
	svc := order.NewService(m, zaptest.NewLogger(t))

	first, err := svc.CreateOrder(ctx, order.CreateRequest{Items: []order.Line{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}})
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, order.CreateRequest{Items: []order.Line{{ProductID: "p1", Quantity: 1}}})
	require.NoError(t, err)

	orphan := itemFor(t, first, "p1")
	lone := second.Items[0]
	detachProduct(m, "p1")

	_, err = svc.UpdateItemQuantity(ctx, orphan.ID, 3)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	confirmed, err := svc.ConfirmOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.Processed)
	stock, reserved := ledgerOf(t, m, "p2")
	assert.Equal(t, 4, stock)
	assert.Equal(t, 0, reserved)

	removed, err := svc.RemoveItem(ctx, lone.ID)
	require.NoError(t, err)
	assert.Equal(t, "product p1", removed.Name)
	left, err := svc.GetOrder(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, left.Items)
}

func TestLedgerRejectsNonPositiveMoves(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seedProduct(t, m, "p1", 5)

	err := m.WithinTx(ctx, func(tx order.Tx) error {
		for _, n := range []int{0, -2} {
			assert.True(t, apperr.IsValidation(tx.ReserveStock(ctx, "p1", n)))
			_, err := tx.ReleaseStock(ctx, "p1", n)
			assert.True(t, apperr.IsValidation(err))
			assert.True(t, apperr.IsValidation(tx.CommitReservation(ctx, "p1", n)))
			assert.True(t, apperr.IsValidation(tx.RestockCommitted(ctx, "p1", n)))
		}
		return nil
	})
	require.NoError(t, err)

	stock, reserved := ledgerOf(t, m, "p1")
	assert.Equal(t, 5, stock)
	assert.Equal(t, 0, reserved)
}
