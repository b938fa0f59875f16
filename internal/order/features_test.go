package order_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/order"
	"erp/ecommerce/catalog-service/internal/store"
)

type workflowTestContext struct {
	catalog  *catalog.Service
	orders   *order.Service
	products map[string]string
	items    map[string]string
	orderID  string
	err      error
}

func (w *workflowTestContext) reset() {
	logger := zap.NewNop()
	mem := store.NewMemory()
	w.catalog = catalog.NewService(mem, logger, 0)
	w.orders = order.NewService(mem, logger, order.WithStockObserver(w.catalog.InvalidateProducts))
	w.products = make(map[string]string)
	w.items = make(map[string]string)
	w.orderID = ""
	w.err = nil
}

func (w *workflowTestContext) productID(name string) (string, error) {
	id, ok := w.products[name]
	if !ok {
		return "", fmt.Errorf("unknown product %q", name)
	}
	return id, nil
}

func (w *workflowTestContext) aProductWithStock(name string, stock int) error {
	p, err := w.catalog.CreateProduct(context.Background(), catalog.CreateProductRequest{
		Name:  name,
		Price: decimal.NewFromInt(12),
		Stock: stock,
	})
	if err != nil {
		return err
	}
	w.products[name] = p.ID
	return nil
}

func (w *workflowTestContext) createOrder(lines ...order.Line) error {
	o, err := w.orders.CreateOrder(context.Background(), order.CreateRequest{Items: lines})
	w.err = err
	if err == nil {
		w.orderID = o.ID
	}
	return nil
}

func (w *workflowTestContext) iCreateAnOrderWith(qty int, name string) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	return w.createOrder(order.Line{ProductID: id, Quantity: qty})
}

func (w *workflowTestContext) iCreateAnOrderWithTwo(qtyA int, nameA string, qtyB int, nameB string) error {
	a, err := w.productID(nameA)
	if err != nil {
		return err
	}
	b, err := w.productID(nameB)
	if err != nil {
		return err
	}
	return w.createOrder(order.Line{ProductID: a, Quantity: qtyA}, order.Line{ProductID: b, Quantity: qtyB})
}

func (w *workflowTestContext) iAddToTheOrder(qty int, name string) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	_, w.err = w.orders.AddItem(context.Background(), w.orderID, order.Line{ProductID: id, Quantity: qty})
	return nil
}

func (w *workflowTestContext) iRemoveTheItem(name string) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	// after the first removal the item is gone, so remember its id
	itemID, ok := w.items[name]
	if !ok {
		items, err := w.orders.ListItems(context.Background(), w.orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.ProductID == id {
				itemID = it.ID
			}
		}
		if itemID == "" {
			return fmt.Errorf("order has no %q item", name)
		}
		w.items[name] = itemID
	}
	_, w.err = w.orders.RemoveItem(context.Background(), itemID)
	return nil
}

func (w *workflowTestContext) iCancelTheOrder() error {
	_, w.err = w.orders.CancelOrder(context.Background(), w.orderID)
	return nil
}

func (w *workflowTestContext) iConfirmTheOrder() error {
	_, w.err = w.orders.ConfirmOrder(context.Background(), w.orderID)
	return nil
}

func (w *workflowTestContext) anAdministratorSetsTheStockOf(name string, stock int) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	_, err = w.catalog.UpdateProduct(context.Background(), id, catalog.UpdateProductRequest{Stock: &stock})
	return err
}

func (w *workflowTestContext) theRequestSucceeds() error {
	if w.err != nil {
		return fmt.Errorf("expected success but got error: %v", w.err)
	}
	return nil
}

func (w *workflowTestContext) theRequestFailsWith(substr string) error {
	if w.err == nil {
		return errors.New("expected an error but the request succeeded")
	}
	if !strings.Contains(w.err.Error(), substr) {
		return fmt.Errorf("expected error containing %q, got %q", substr, w.err.Error())
	}
	return nil
}

func (w *workflowTestContext) productHasStock(name string, stock int) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	p, err := w.catalog.GetProduct(context.Background(), id)
	if err != nil {
		return err
	}
	if p.Stock != stock {
		return fmt.Errorf("expected stock %d for %q, got %d", stock, name, p.Stock)
	}
	return nil
}

func (w *workflowTestContext) productHasStockWithReserved(name string, stock, reserved int) error {
	if err := w.productHasStock(name, stock); err != nil {
		return err
	}
	p, err := w.catalog.GetProduct(context.Background(), w.products[name])
	if err != nil {
		return err
	}
	if p.Reserved != reserved {
		return fmt.Errorf("expected %d reserved for %q, got %d", reserved, name, p.Reserved)
	}
	return nil
}

func (w *workflowTestContext) theOrderHolds(qty int, name string) error {
	id, err := w.productID(name)
	if err != nil {
		return err
	}
	o, err := w.orders.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		if it.ProductID == id {
			if it.Quantity != qty {
				return fmt.Errorf("expected quantity %d, got %d", qty, it.Quantity)
			}
			return nil
		}
	}
	return fmt.Errorf("order has no %q item", name)
}

func (w *workflowTestContext) theOrderIsProcessed(not string) error {
	o, err := w.orders.GetOrder(context.Background(), w.orderID)
	if err != nil {
		return err
	}
	want := not == ""
	if o.Processed != want {
		return fmt.Errorf("expected processed=%t, got %t", want, o.Processed)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &workflowTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" with stock (\d+)$`, tc.aProductWithStock)
	ctx.Step(`^an administrator sets the stock of "([^"]*)" to (\d+)$`, tc.anAdministratorSetsTheStockOf)

	// When steps
	ctx.Step(`^I create an order with (\d+) of "([^"]*)"$`, tc.iCreateAnOrderWith)
	ctx.Step(`^I create an order with (\d+) of "([^"]*)" and (\d+) of "([^"]*)"$`, tc.iCreateAnOrderWithTwo)
	ctx.Step(`^I add (\d+) of "([^"]*)" to the order$`, tc.iAddToTheOrder)
	ctx.Step(`^I remove the "([^"]*)" item$`, tc.iRemoveTheItem)
	ctx.Step(`^I cancel the order$`, tc.iCancelTheOrder)
	ctx.Step(`^I confirm the order$`, tc.iConfirmTheOrder)

	// Then steps
	ctx.Step(`^the request succeeds$`, tc.theRequestSucceeds)
	ctx.Step(`^the request fails with "([^"]*)"$`, tc.theRequestFailsWith)
	ctx.Step(`^product "([^"]*)" has stock (\d+)$`, tc.productHasStock)
	ctx.Step(`^product "([^"]*)" has stock (\d+) with (\d+) reserved$`, tc.productHasStockWithReserved)
	ctx.Step(`^the order holds (\d+) of "([^"]*)"$`, tc.theOrderHolds)
	ctx.Step(`^the order is (not )?processed$`, tc.theOrderIsProcessed)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
