package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/config"
	"erp/ecommerce/catalog-service/internal/order"
)

// openTestPostgres connects to TEST_DATABASE_URL and empties the tables.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	cfg := config.FromEnv()
	cfg.DatabaseURL = dsn
	pg, err := Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	require.NoError(t, pg.EnsureSchema(ctx))
	_, err = pg.db.ExecContext(ctx, `TRUNCATE catalog_order_items, catalog_orders, catalog_products, catalog_subcategories, catalog_categories`)
	require.NoError(t, err)
	return pg
}

func TestPostgresLedger(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	seedProduct(t, pg, "p1", 5)

	err := pg.WithinTx(ctx, func(tx order.Tx) error {
		if err := tx.ReserveStock(ctx, "p1", 3); err != nil {
			return err
		}
		return tx.ReserveStock(ctx, "p1", 3)
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	stock, reserved := ledgerOf(t, pg, "p1")
	assert.Equal(t, 5, stock, "rolled back")
	assert.Equal(t, 0, reserved)

	require.NoError(t, pg.WithinTx(ctx, func(tx order.Tx) error {
		if err := tx.ReserveStock(ctx, "p1", 2); err != nil {
			return err
		}
		back, err := tx.ReleaseStock(ctx, "p1", 5)
		if err != nil {
			return err
		}
		assert.Equal(t, 2, back)
		if err := tx.ReserveStock(ctx, "p1", 1); err != nil {
			return err
		}
		return tx.CommitReservation(ctx, "p1", 3)
	}))
	stock, reserved = ledgerOf(t, pg, "p1")
	assert.Equal(t, 2, stock)
	assert.Equal(t, 0, reserved)

	err = pg.WithinTx(ctx, func(tx order.Tx) error { return tx.CommitReservation(ctx, "p1", 3) })
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	err = pg.WithinTx(ctx, func(tx order.Tx) error { return tx.ReserveStock(ctx, "missing", 1) })
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresConcurrentReservations(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	seedProduct(t, pg, "p1", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pg.WithinTx(ctx, func(tx order.Tx) error { return tx.ReserveStock(ctx, "p1", 1) })
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	stock, reserved := ledgerOf(t, pg, "p1")
	assert.Equal(t, 0, stock)
	assert.Equal(t, 10, reserved)
}

func TestPostgresDeleteProductDetachesItems(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	seedProduct(t, pg, "p1", 5)
	now := time.Now().UTC()

	require.NoError(t, pg.WithinTx(ctx, func(tx order.Tx) error {
		for _, o := range []order.Order{
			{ID: "open", Status: order.StatusOpen, CreatedAt: now, UpdatedAt: now},
			{ID: "done", Status: order.StatusConfirmed, CreatedAt: now, UpdatedAt: now},
		} {
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			if err := tx.InsertItem(ctx, order.Item{
				ID: "itm_" + o.ID, OrderID: o.ID, ProductID: "p1", Quantity: 1,
				ProductName: "product p1", UnitPrice: decimal.NewFromInt(3), CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, pg.DeleteProduct(ctx, "p1"))

	openItems, err := pg.ListItems(ctx, "open")
	require.NoError(t, err)
	assert.Empty(t, openItems)

	doneItems, err := pg.ListItems(ctx, "done")
	require.NoError(t, err)
	require.Len(t, doneItems, 1)
	assert.Empty(t, doneItems[0].ProductID)
	assert.True(t, decimal.NewFromInt(3).Equal(doneItems[0].UnitPrice))
}

func TestPostgresDeleteProductRacingAddItem(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	svc := order.NewService(pg, zaptest.NewLogger(t))
	seedProduct(t, pg, "anchor", 100)

	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("racer-%d", i)
		seedProduct(t, pg, id, 5)
		o, err := svc.CreateOrder(ctx, order.CreateRequest{Items: []order.Line{{ProductID: "anchor", Quantity: 1}}})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = pg.DeleteProduct(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.AddItem(ctx, o.ID, order.Line{ProductID: id, Quantity: 1})
		}()
		wg.Wait()
	}

	var detached int
	require.NoError(t, pg.db.QueryRowContext(ctx, `SELECT count(*) FROM catalog_order_items i
		JOIN catalog_orders o ON o.id = i.order_id
		WHERE o.status = 'open' AND i.product_id IS NULL`).Scan(&detached))
	assert.Zero(t, detached, "open orders must never hold detached items")
}
