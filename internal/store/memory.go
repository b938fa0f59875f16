package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/order"
)

// Memory keeps everything in maps behind one lock. A workflow transaction
// holds the lock for its whole duration and restores a snapshot when it
// fails, so it behaves like a serialized database.
type Memory struct {
	mu            sync.RWMutex
	products      map[string]catalog.Product
	categories    map[string]catalog.Category
	subcategories map[string]catalog.SubCategory
	orders        map[string]order.Order
	items         map[string]order.Item
	now           func() time.Time
}

var (
	_ Store    = (*Memory)(nil)
	_ order.Tx = memTx{}
)

func NewMemory() *Memory {
	return &Memory{
		products:      make(map[string]catalog.Product),
		categories:    make(map[string]catalog.Category),
		subcategories: make(map[string]catalog.SubCategory),
		orders:        make(map[string]order.Order),
		items:         make(map[string]order.Item),
		now:           time.Now,
	}
}

func (m *Memory) Mode() string { return "memory" }

func (m *Memory) Close() error { return nil }

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (m *Memory) CreateProduct(_ context.Context, p catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("%w: product %s", apperr.ErrDuplicate, p.ID)
	}
	p.CategoryName, p.SubCategoryName = "", ""
	m.products[p.ID] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return m.withNames(p), nil
}

func (m *Memory) FindProductByName(_ context.Context, name string) (catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *catalog.Product
	for _, p := range m.products {
		if !strings.EqualFold(p.Name, name) {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) || (p.CreatedAt.Equal(found.CreatedAt) && p.ID < found.ID) {
			found = &p
		}
	}
	if found == nil {
		return catalog.Product{}, fmt.Errorf("%w: product %q", apperr.ErrNotFound, name)
	}
	return m.withNames(*found), nil
}

func (m *Memory) ListProducts(_ context.Context, f catalog.ProductFilter) ([]catalog.Product, error) {
	m.mu.RLock()
	items := make([]catalog.Product, 0)
	for _, p := range m.products {
		if f.CategoryID != "" && p.CategoryID != f.CategoryID {
			continue
		}
		if f.SubCategoryID != "" && p.SubCategoryID != f.SubCategoryID {
			continue
		}
		if f.TopOnly && !p.IsTop {
			continue
		}
		items = append(items, m.withNames(p))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return newerFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return window(items, f.Skip, f.Limit), nil
}

func (m *Memory) UpdateProduct(_ context.Context, p catalog.Product, recount bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[p.ID]
	if !ok {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, p.ID)
	}
	// stock columns belong to the workflow unless this is a recount
	if !recount {
		p.Stock, p.Reserved = cur.Stock, cur.Reserved
	} else {
		p.Reserved = 0
	}
	p.CategoryName, p.SubCategoryName = "", ""
	p.CreatedAt = cur.CreatedAt
	m.products[p.ID] = p
	return nil
}

func (m *Memory) DeleteProduct(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	delete(m.products, id)
	for itemID, it := range m.items {
		if it.ProductID != id {
			continue
		}
		if o, ok := m.orders[it.OrderID]; ok && o.Status == order.StatusOpen {
			delete(m.items, itemID)
			continue
		}
		it.ProductID = ""
		m.items[itemID] = it
	}
	return nil
}

func (m *Memory) ExplainProductList(context.Context, catalog.ProductFilter) (any, error) {
	return map[string]any{"mode": "memory", "note": "no SQL plan available"}, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (m *Memory) CreateCategory(_ context.Context, c catalog.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: category %q", apperr.ErrDuplicate, c.Name)
		}
	}
	c.SubCategories = nil
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) GetCategory(_ context.Context, id string) (catalog.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[id]
	if !ok {
		return catalog.Category{}, fmt.Errorf("%w: category %s", apperr.ErrNotFound, id)
	}
	return m.withSubCategories(c), nil
}

func (m *Memory) FindCategoryByName(_ context.Context, name string) (catalog.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if strings.EqualFold(c.Name, name) {
			return m.withSubCategories(c), nil
		}
	}
	return catalog.Category{}, fmt.Errorf("%w: category %q", apperr.ErrNotFound, name)
}

func (m *Memory) ListCategories(_ context.Context, topOnly bool, page catalog.Page) ([]catalog.Category, error) {
	m.mu.RLock()
	items := make([]catalog.Category, 0, len(m.categories))
	for _, c := range m.categories {
		if topOnly && !c.IsTop {
			continue
		}
		items = append(items, m.withSubCategories(c))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return newerFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return window(items, page.Skip, page.Limit), nil
}

func (m *Memory) UpdateCategory(_ context.Context, c catalog.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.categories[c.ID]
	if !ok {
		return fmt.Errorf("%w: category %s", apperr.ErrNotFound, c.ID)
	}
	for _, existing := range m.categories {
		if existing.ID != c.ID && strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("%w: category %q", apperr.ErrDuplicate, c.Name)
		}
	}
	c.SubCategories = nil
	c.CreatedAt = cur.CreatedAt
	m.categories[c.ID] = c
	return nil
}

func (m *Memory) DeleteCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[id]; !ok {
		return fmt.Errorf("%w: category %s", apperr.ErrNotFound, id)
	}
	delete(m.categories, id)
	removed := make(map[string]bool)
	for scID, sc := range m.subcategories {
		if sc.CategoryID == id {
			removed[scID] = true
			delete(m.subcategories, scID)
		}
	}
	for pid, p := range m.products {
		changed := false
		if p.CategoryID == id {
			p.CategoryID, changed = "", true
		}
		if removed[p.SubCategoryID] {
			p.SubCategoryID, changed = "", true
		}
		if changed {
			m.products[pid] = p
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Subcategories
// ---------------------------------------------------------------------------

func (m *Memory) CreateSubCategory(_ context.Context, sc catalog.SubCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[sc.CategoryID]; !ok {
		return fmt.Errorf("%w: category %s", apperr.ErrNotFound, sc.CategoryID)
	}
	if err := m.subCategoryNameFree(sc); err != nil {
		return err
	}
	sc.CategoryName = ""
	m.subcategories[sc.ID] = sc
	return nil
}

func (m *Memory) GetSubCategory(_ context.Context, id string) (catalog.SubCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.subcategories[id]
	if !ok {
		return catalog.SubCategory{}, fmt.Errorf("%w: subcategory %s", apperr.ErrNotFound, id)
	}
	return m.withParent(sc), nil
}

func (m *Memory) FindSubCategoryByName(_ context.Context, name string) (catalog.SubCategory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *catalog.SubCategory
	for _, sc := range m.subcategories {
		if !strings.EqualFold(sc.Name, name) {
			continue
		}
		if found == nil || sc.CreatedAt.Before(found.CreatedAt) || (sc.CreatedAt.Equal(found.CreatedAt) && sc.ID < found.ID) {
			found = &sc
		}
	}
	if found == nil {
		return catalog.SubCategory{}, fmt.Errorf("%w: subcategory %q", apperr.ErrNotFound, name)
	}
	return m.withParent(*found), nil
}

func (m *Memory) ListSubCategories(_ context.Context, categoryID string, page catalog.Page) ([]catalog.SubCategory, error) {
	m.mu.RLock()
	items := m.subCategoriesOf(categoryID)
	m.mu.RUnlock()
	return window(items, page.Skip, page.Limit), nil
}

func (m *Memory) UpdateSubCategory(_ context.Context, sc catalog.SubCategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.subcategories[sc.ID]
	if !ok {
		return fmt.Errorf("%w: subcategory %s", apperr.ErrNotFound, sc.ID)
	}
	if _, ok := m.categories[sc.CategoryID]; !ok {
		return fmt.Errorf("%w: category %s", apperr.ErrNotFound, sc.CategoryID)
	}
	if err := m.subCategoryNameFree(sc); err != nil {
		return err
	}
	sc.CategoryName = ""
	sc.CreatedAt = cur.CreatedAt
	m.subcategories[sc.ID] = sc
	if cur.CategoryID != sc.CategoryID {
		for pid, p := range m.products {
			if p.SubCategoryID == sc.ID {
				p.CategoryID = sc.CategoryID
				m.products[pid] = p
			}
		}
	}
	return nil
}

func (m *Memory) DeleteSubCategory(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subcategories[id]; !ok {
		return fmt.Errorf("%w: subcategory %s", apperr.ErrNotFound, id)
	}
	delete(m.subcategories, id)
	for pid, p := range m.products {
		if p.SubCategoryID == id {
			p.SubCategoryID = ""
			m.products[pid] = p
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Orders (reads)
// ---------------------------------------------------------------------------

func (m *Memory) GetOrder(_ context.Context, id string) (order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (m *Memory) ListOrders(_ context.Context, page catalog.Page) ([]order.Order, error) {
	m.mu.RLock()
	items := make([]order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		items = append(items, o)
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return newerFirst(items[i].CreatedAt, items[j].CreatedAt, items[i].ID, items[j].ID)
	})
	return window(items, page.Skip, page.Limit), nil
}

func (m *Memory) ListItems(_ context.Context, orderID string) ([]order.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := m.orderItems(orderID)
	for i := range items {
		items[i] = m.withProduct(items[i])
	}
	return items, nil
}

func (m *Memory) GetItem(_ context.Context, id string) (order.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return order.Item{}, fmt.Errorf("%w: order item %s", apperr.ErrNotFound, id)
	}
	return m.withProduct(it), nil
}

// WithinTx runs fn under the write lock. On error, or when ctx ends before
// fn returns, every product, order and item change made by fn is undone.
func (m *Memory) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	products, orders, items := maps.Clone(m.products), maps.Clone(m.orders), maps.Clone(m.items)
	err := fn(memTx{m: m})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.products, m.orders, m.items = products, orders, items
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------------

// memTx runs with Memory.mu already held.
type memTx struct {
	m *Memory
}

func (t memTx) InsertOrder(_ context.Context, o order.Order) error {
	if _, ok := t.m.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s", apperr.ErrDuplicate, o.ID)
	}
	o.Items = nil
	t.m.orders[o.ID] = o
	return nil
}

func (t memTx) LockOrder(_ context.Context, id string) (order.Order, error) {
	o, ok := t.m.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	return o, nil
}

func (t memTx) UpdateOrder(_ context.Context, o order.Order) error {
	cur, ok := t.m.orders[o.ID]
	if !ok {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, o.ID)
	}
	cur.Status, cur.UpdatedAt = o.Status, o.UpdatedAt
	t.m.orders[o.ID] = cur
	return nil
}

func (t memTx) DeleteOrder(_ context.Context, id string) error {
	if _, ok := t.m.orders[id]; !ok {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, id)
	}
	delete(t.m.orders, id)
	return nil
}

func (t memTx) LookupProduct(_ context.Context, id string) (order.ProductSnapshot, error) {
	p, ok := t.m.products[id]
	if !ok {
		return order.ProductSnapshot{}, fmt.Errorf("%w: product %s", apperr.ErrNotFound, id)
	}
	return order.ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price}, nil
}

func (t memTx) ReserveStock(_ context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	p, ok := t.m.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	if p.Stock < n {
		return insufficient(productID, p.Stock, n)
	}
	p.Stock -= n
	p.Reserved += n
	p.UpdatedAt = t.m.now().UTC()
	t.m.products[productID] = p
	return nil
}

func (t memTx) ReleaseStock(_ context.Context, productID string, n int) (int, error) {
	if err := checkUnits(n); err != nil {
		return 0, err
	}
	p, ok := t.m.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	back := min(n, p.Reserved)
	p.Stock += back
	p.Reserved -= back
	p.UpdatedAt = t.m.now().UTC()
	t.m.products[productID] = p
	return back, nil
}

func (t memTx) CommitReservation(_ context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	p, ok := t.m.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	if p.Stock+p.Reserved < n {
		return insufficient(productID, p.Stock+p.Reserved, n)
	}
	held := min(n, p.Reserved)
	p.Reserved -= held
	p.Stock -= n - held
	p.UpdatedAt = t.m.now().UTC()
	t.m.products[productID] = p
	return nil
}

func (t memTx) RestockCommitted(_ context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	p, ok := t.m.products[productID]
	if !ok {
		return fmt.Errorf("%w: product %s", apperr.ErrNotFound, productID)
	}
	p.Stock += n
	p.UpdatedAt = t.m.now().UTC()
	t.m.products[productID] = p
	return nil
}

func (t memTx) OrderItems(_ context.Context, orderID string) ([]order.Item, error) {
	return t.m.orderItems(orderID), nil
}

func (t memTx) GetItem(_ context.Context, id string) (order.Item, error) {
	it, ok := t.m.items[id]
	if !ok {
		return order.Item{}, fmt.Errorf("%w: order item %s", apperr.ErrNotFound, id)
	}
	return it, nil
}

func (t memTx) FindItem(_ context.Context, orderID, productID string) (order.Item, error) {
	for _, it := range t.m.items {
		if it.OrderID == orderID && it.ProductID == productID {
			return it, nil
		}
	}
	return order.Item{}, fmt.Errorf("%w: order %s has no item for product %s", apperr.ErrNotFound, orderID, productID)
}

func (t memTx) InsertItem(ctx context.Context, it order.Item) error {
	if _, ok := t.m.orders[it.OrderID]; !ok {
		return fmt.Errorf("%w: order %s", apperr.ErrNotFound, it.OrderID)
	}
	if _, err := t.FindItem(ctx, it.OrderID, it.ProductID); err == nil {
		return fmt.Errorf("%w: product %s already on order %s", apperr.ErrDuplicate, it.ProductID, it.OrderID)
	}
	it.Product = nil
	t.m.items[it.ID] = it
	return nil
}

func (t memTx) UpdateItem(_ context.Context, it order.Item) error {
	cur, ok := t.m.items[it.ID]
	if !ok {
		return fmt.Errorf("%w: order item %s", apperr.ErrNotFound, it.ID)
	}
	cur.Quantity, cur.UpdatedAt = it.Quantity, it.UpdatedAt
	t.m.items[it.ID] = cur
	return nil
}

func (t memTx) DeleteItem(_ context.Context, id string) error {
	if _, ok := t.m.items[id]; !ok {
		return fmt.Errorf("%w: order item %s", apperr.ErrNotFound, id)
	}
	delete(t.m.items, id)
	return nil
}

func (t memTx) DeleteItems(_ context.Context, orderID string) error {
	for id, it := range t.m.items {
		if it.OrderID == orderID {
			delete(t.m.items, id)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (m *Memory) withNames(p catalog.Product) catalog.Product {
	p.CategoryName, p.SubCategoryName = "", ""
	if c, ok := m.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	if sc, ok := m.subcategories[p.SubCategoryID]; ok {
		p.SubCategoryName = sc.Name
	}
	return p
}

func (m *Memory) withSubCategories(c catalog.Category) catalog.Category {
	c.SubCategories = m.subCategoriesOf(c.ID)
	return c
}

func (m *Memory) withParent(sc catalog.SubCategory) catalog.SubCategory {
	if c, ok := m.categories[sc.CategoryID]; ok {
		sc.CategoryName = c.Name
	}
	return sc
}

func (m *Memory) withProduct(it order.Item) order.Item {
	it.Product = nil
	if p, ok := m.products[it.ProductID]; ok && it.ProductID != "" {
		p = m.withNames(p)
		it.Product = &p
	}
	return it
}

func (m *Memory) subCategoriesOf(categoryID string) []catalog.SubCategory {
	items := make([]catalog.SubCategory, 0)
	for _, sc := range m.subcategories {
		if categoryID == "" || sc.CategoryID == categoryID {
			items = append(items, m.withParent(sc))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if strings.EqualFold(items[i].Name, items[j].Name) {
			return items[i].ID < items[j].ID
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}

func (m *Memory) subCategoryNameFree(sc catalog.SubCategory) error {
	for _, existing := range m.subcategories {
		if existing.ID != sc.ID && existing.CategoryID == sc.CategoryID && strings.EqualFold(existing.Name, sc.Name) {
			return fmt.Errorf("%w: subcategory %q", apperr.ErrDuplicate, sc.Name)
		}
	}
	return nil
}

func (m *Memory) orderItems(orderID string) []order.Item {
	items := make([]order.Item, 0)
	for _, it := range m.items {
		if it.OrderID == orderID {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func newerFirst(a, b time.Time, aID, bID string) bool {
	if a.Equal(b) {
		return aID > bID
	}
	return a.After(b)
}

// window applies skip/limit. A non-positive limit returns everything after skip.
func window[T any](items []T, skip, limit int) []T {
	if skip >= len(items) {
		return []T{}
	}
	if skip > 0 {
		items = items[skip:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func insufficient(productID string, available, requested int) error {
	return fmt.Errorf("%w: product %s has %d available, %d requested", apperr.ErrInsufficientStock, productID, available, requested)
}
