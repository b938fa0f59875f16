package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/config"
	"erp/ecommerce/catalog-service/internal/order"
)

// Postgres stores everything in PostgreSQL through database/sql and the pgx
// driver. Stock moves are conditional single-row updates; the order row is
// locked with SELECT ... FOR UPDATE before its items change.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ Store    = (*Postgres)(nil)
	_ order.Tx = (*pgTx)(nil)
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Connect opens the pool and pings the server.
func Connect(ctx context.Context, cfg config.Config) (*Postgres, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("missing DATABASE_URL or DB_HOST")
	}
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdle)
	db.SetConnMaxLifetime(cfg.DBConnMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db, now: time.Now}, nil
}

func (s *Postgres) Mode() string { return "postgres" }

func (s *Postgres) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

func (s *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog_categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			image_url TEXT,
			is_top BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_categories_name ON catalog_categories (lower(name))`,
		`CREATE TABLE IF NOT EXISTS catalog_subcategories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category_id TEXT NOT NULL REFERENCES catalog_categories(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_subcategories_name ON catalog_subcategories (category_id, lower(name))`,
		`CREATE TABLE IF NOT EXISTS catalog_products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			producer TEXT,
			description TEXT,
			price NUMERIC(18,2) NOT NULL CHECK (price > 0),
			stock INTEGER NOT NULL CHECK (stock >= 0),
			reserved INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0),
			category_id TEXT REFERENCES catalog_categories(id) ON DELETE SET NULL,
			subcategory_id TEXT REFERENCES catalog_subcategories(id) ON DELETE SET NULL,
			image_url TEXT,
			is_top BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_created ON catalog_products (created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON catalog_products (category_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_subcategory ON catalog_products (subcategory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name ON catalog_products (lower(name))`,
		`CREATE TABLE IF NOT EXISTS catalog_orders (
			id TEXT PRIMARY KEY,
			status TEXT CHECK (status IN ('open','confirmed')) NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created ON catalog_orders (created_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS catalog_order_items (
			id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL REFERENCES catalog_orders(id) ON DELETE CASCADE,
			product_id TEXT REFERENCES catalog_products(id) ON DELETE SET NULL,
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			product_name TEXT NOT NULL,
			unit_price NUMERIC(18,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (order_id, product_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_product ON catalog_order_items (product_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

const productSelect = `SELECT p.id, p.name, p.producer, p.description, p.price, p.stock, p.reserved,
		p.category_id, c.name, p.subcategory_id, sc.name, p.image_url, p.is_top, p.created_at, p.updated_at
	FROM catalog_products p
	LEFT JOIN catalog_categories c ON c.id = p.category_id
	LEFT JOIN catalog_subcategories sc ON sc.id = p.subcategory_id`

func (s *Postgres) CreateProduct(ctx context.Context, p catalog.Product) error {
	q := `INSERT INTO catalog_products (id, name, producer, description, price, stock, reserved, category_id, subcategory_id, image_url, is_top, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,0,$7,$8,$9,$10,$11,$12)`
	_, err := s.db.ExecContext(ctx, q,
		p.ID, p.Name, nilIfEmpty(p.Producer), nilIfEmpty(p.Description), p.Price, p.Stock,
		nilIfEmpty(p.CategoryID), nilIfEmpty(p.SubCategoryID), nilIfEmpty(p.ImageURL), p.IsTop,
		p.CreatedAt, p.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Postgres) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, productSelect+` WHERE p.id = $1`, id))
	if err != nil {
		return catalog.Product{}, notFound(err, "product "+id)
	}
	return p, nil
}

func (s *Postgres) FindProductByName(ctx context.Context, name string) (catalog.Product, error) {
	q := productSelect + ` WHERE lower(p.name) = lower($1) ORDER BY p.created_at, p.id LIMIT 1`
	p, err := scanProduct(s.db.QueryRowContext(ctx, q, name))
	if err != nil {
		return catalog.Product{}, notFound(err, fmt.Sprintf("product %q", name))
	}
	return p, nil
}

func (s *Postgres) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, error) {
	where, args := productWhere(f)
	q := productSelect + where + ` ORDER BY p.created_at DESC, p.id DESC` + pageClause(&args, f.Skip, f.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := make([]catalog.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (s *Postgres) UpdateProduct(ctx context.Context, p catalog.Product, recount bool) error {
	set := `name=$2, producer=$3, description=$4, price=$5, category_id=$6, subcategory_id=$7, image_url=$8, is_top=$9, updated_at=$10`
	args := []any{
		p.ID, p.Name, nilIfEmpty(p.Producer), nilIfEmpty(p.Description), p.Price,
		nilIfEmpty(p.CategoryID), nilIfEmpty(p.SubCategoryID), nilIfEmpty(p.ImageURL), p.IsTop, p.UpdatedAt,
	}
	if recount {
		set += `, stock=$11, reserved=0`
		args = append(args, p.Stock)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE catalog_products SET `+set+` WHERE id=$1`, args...)
	return affectedOne(res, err, "product "+p.ID)
}

func (s *Postgres) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	// hold the product row so no reservation can add an open-order line
	// between the item delete and the product delete
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM catalog_products WHERE id=$1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		return notFound(err, "product "+id)
	}

	// open orders lose the line; confirmed ones keep it through ON DELETE SET NULL
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_order_items i USING catalog_orders o
		WHERE i.order_id = o.id AND o.status = 'open' AND i.product_id = $1`, id); err != nil {
		return mapErr(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM catalog_products WHERE id=$1`, id)
	if err := affectedOne(res, err, "product "+id); err != nil {
		return err
	}
	return mapErr(tx.Commit())
}

func (s *Postgres) ExplainProductList(ctx context.Context, f catalog.ProductFilter) (any, error) {
	where, args := productWhere(f)
	planQuery := `EXPLAIN (ANALYZE FALSE, FORMAT JSON) ` + productSelect + where +
		` ORDER BY p.created_at DESC, p.id DESC` + pageClause(&args, f.Skip, f.Limit)

	var planRaw []byte
	if err := s.db.QueryRowContext(ctx, planQuery, args...).Scan(&planRaw); err != nil {
		return nil, mapErr(err)
	}
	var parsed any
	if err := json.Unmarshal(planRaw, &parsed); err != nil {
		return string(planRaw), nil
	}
	return parsed, nil
}

func productWhere(f catalog.ProductFilter) (string, []any) {
	var where []string
	var args []any
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id = $%d", len(args)))
	}
	if f.SubCategoryID != "" {
		args = append(args, f.SubCategoryID)
		where = append(where, fmt.Sprintf("p.subcategory_id = $%d", len(args)))
	}
	if f.TopOnly {
		where = append(where, "p.is_top")
	}
	if len(where) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func scanProduct(row rowScanner) (catalog.Product, error) {
	var p catalog.Product
	var producer, description, categoryID, categoryName, subID, subName, imageURL sql.NullString
	if err := row.Scan(
		&p.ID, &p.Name, &producer, &description, &p.Price, &p.Stock, &p.Reserved,
		&categoryID, &categoryName, &subID, &subName, &imageURL, &p.IsTop, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return catalog.Product{}, err
	}
	p.Producer = producer.String
	p.Description = description.String
	p.CategoryID = categoryID.String
	p.CategoryName = categoryName.String
	p.SubCategoryID = subID.String
	p.SubCategoryName = subName.String
	p.ImageURL = imageURL.String
	return p, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

const categorySelect = `SELECT id, name, description, image_url, is_top, created_at, updated_at FROM catalog_categories`

func (s *Postgres) CreateCategory(ctx context.Context, c catalog.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_categories (id, name, description, image_url, is_top, created_at, updated_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		c.ID, c.Name, nilIfEmpty(c.Description), nilIfEmpty(c.ImageURL), c.IsTop, c.CreatedAt, c.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Postgres) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	return s.oneCategory(ctx, categorySelect+` WHERE id = $1`, id, "category "+id)
}

func (s *Postgres) FindCategoryByName(ctx context.Context, name string) (catalog.Category, error) {
	return s.oneCategory(ctx, categorySelect+` WHERE lower(name) = lower($1)`, name, fmt.Sprintf("category %q", name))
}

func (s *Postgres) oneCategory(ctx context.Context, q, arg, what string) (catalog.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, q, arg))
	if err != nil {
		return catalog.Category{}, notFound(err, what)
	}
	subs, err := s.ListSubCategories(ctx, c.ID, catalog.Page{})
	if err != nil {
		return catalog.Category{}, err
	}
	c.SubCategories = subs
	return c, nil
}

func (s *Postgres) ListCategories(ctx context.Context, topOnly bool, page catalog.Page) ([]catalog.Category, error) {
	var args []any
	q := categorySelect
	if topOnly {
		q += ` WHERE is_top`
	}
	q += ` ORDER BY created_at DESC, id DESC` + pageClause(&args, page.Skip, page.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := make([]catalog.Category, 0)
	ids := make([]string, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return items, nil
	}

	subs, err := s.querySubCategories(ctx, ` WHERE sc.category_id = ANY($1)`, []any{ids}, catalog.Page{})
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string][]catalog.SubCategory, len(items))
	for _, sc := range subs {
		byCategory[sc.CategoryID] = append(byCategory[sc.CategoryID], sc)
	}
	for i := range items {
		items[i].SubCategories = byCategory[items[i].ID]
		if items[i].SubCategories == nil {
			items[i].SubCategories = []catalog.SubCategory{}
		}
	}
	return items, nil
}

func (s *Postgres) UpdateCategory(ctx context.Context, c catalog.Category) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE catalog_categories SET name=$2, description=$3, image_url=$4, is_top=$5, updated_at=$6 WHERE id=$1`,
		c.ID, c.Name, nilIfEmpty(c.Description), nilIfEmpty(c.ImageURL), c.IsTop, c.UpdatedAt,
	)
	return affectedOne(res, err, "category "+c.ID)
}

// DeleteCategory relies on the foreign keys: subcategories cascade, product
// references are set to NULL.
func (s *Postgres) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_categories WHERE id=$1`, id)
	return affectedOne(res, err, "category "+id)
}

func scanCategory(row rowScanner) (catalog.Category, error) {
	var c catalog.Category
	var description, imageURL sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &description, &imageURL, &c.IsTop, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return catalog.Category{}, err
	}
	c.Description = description.String
	c.ImageURL = imageURL.String
	return c, nil
}

// ---------------------------------------------------------------------------
// Subcategories
// ---------------------------------------------------------------------------

const subCategorySelect = `SELECT sc.id, sc.name, sc.category_id, c.name, sc.created_at, sc.updated_at
	FROM catalog_subcategories sc
	JOIN catalog_categories c ON c.id = sc.category_id`

func (s *Postgres) CreateSubCategory(ctx context.Context, sc catalog.SubCategory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_subcategories (id, name, category_id, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		sc.ID, sc.Name, sc.CategoryID, sc.CreatedAt, sc.UpdatedAt,
	)
	return mapErr(err)
}

func (s *Postgres) GetSubCategory(ctx context.Context, id string) (catalog.SubCategory, error) {
	sc, err := scanSubCategory(s.db.QueryRowContext(ctx, subCategorySelect+` WHERE sc.id = $1`, id))
	if err != nil {
		return catalog.SubCategory{}, notFound(err, "subcategory "+id)
	}
	return sc, nil
}

func (s *Postgres) FindSubCategoryByName(ctx context.Context, name string) (catalog.SubCategory, error) {
	q := subCategorySelect + ` WHERE lower(sc.name) = lower($1) ORDER BY sc.created_at, sc.id LIMIT 1`
	sc, err := scanSubCategory(s.db.QueryRowContext(ctx, q, name))
	if err != nil {
		return catalog.SubCategory{}, notFound(err, fmt.Sprintf("subcategory %q", name))
	}
	return sc, nil
}

func (s *Postgres) ListSubCategories(ctx context.Context, categoryID string, page catalog.Page) ([]catalog.SubCategory, error) {
	var where string
	var args []any
	if categoryID != "" {
		where = ` WHERE sc.category_id = $1`
		args = append(args, categoryID)
	}
	return s.querySubCategories(ctx, where, args, page)
}

func (s *Postgres) querySubCategories(ctx context.Context, where string, args []any, page catalog.Page) ([]catalog.SubCategory, error) {
	q := subCategorySelect + where + ` ORDER BY lower(sc.name), sc.id` + pageClause(&args, page.Skip, page.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := make([]catalog.SubCategory, 0)
	for rows.Next() {
		sc, err := scanSubCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, sc)
	}
	return items, rows.Err()
}

func (s *Postgres) UpdateSubCategory(ctx context.Context, sc catalog.SubCategory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE catalog_subcategories SET name=$2, category_id=$3, updated_at=$4 WHERE id=$1`,
		sc.ID, sc.Name, sc.CategoryID, sc.UpdatedAt,
	)
	if err := affectedOne(res, err, "subcategory "+sc.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE catalog_products SET category_id=$2 WHERE subcategory_id=$1 AND category_id IS DISTINCT FROM $2`,
		sc.ID, sc.CategoryID,
	); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit())
}

func (s *Postgres) DeleteSubCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM catalog_subcategories WHERE id=$1`, id)
	return affectedOne(res, err, "subcategory "+id)
}

func scanSubCategory(row rowScanner) (catalog.SubCategory, error) {
	var sc catalog.SubCategory
	if err := row.Scan(&sc.ID, &sc.Name, &sc.CategoryID, &sc.CategoryName, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
		return catalog.SubCategory{}, err
	}
	return sc, nil
}

// ---------------------------------------------------------------------------
// Orders (reads)
// ---------------------------------------------------------------------------

const (
	orderSelect = `SELECT id, status, created_at, updated_at FROM catalog_orders`
	itemSelect  = `SELECT id, order_id, product_id, quantity, product_name, unit_price, created_at, updated_at FROM catalog_order_items`
)

func (s *Postgres) GetOrder(ctx context.Context, id string) (order.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, orderSelect+` WHERE id = $1`, id))
	if err != nil {
		return order.Order{}, notFound(err, "order "+id)
	}
	return o, nil
}

func (s *Postgres) ListOrders(ctx context.Context, page catalog.Page) ([]order.Order, error) {
	var args []any
	q := orderSelect + ` ORDER BY created_at DESC, id DESC` + pageClause(&args, page.Skip, page.Limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := make([]order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (s *Postgres) ListItems(ctx context.Context, orderID string) ([]order.Item, error) {
	items, err := queryItems(ctx, s.db, itemSelect+` WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	return items, s.attachProducts(ctx, items)
}

func (s *Postgres) GetItem(ctx context.Context, id string) (order.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx, itemSelect+` WHERE id = $1`, id))
	if err != nil {
		return order.Item{}, notFound(err, "order item "+id)
	}
	items := []order.Item{it}
	if err := s.attachProducts(ctx, items); err != nil {
		return order.Item{}, err
	}
	return items[0], nil
}

// attachProducts sets the live product on every item whose product still
// exists.
func (s *Postgres) attachProducts(ctx context.Context, items []order.Item) error {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ProductID != "" {
			ids = append(ids, it.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	rows, err := s.db.QueryContext(ctx, productSelect+` WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()

	byID := make(map[string]catalog.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return err
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range items {
		if p, ok := byID[items[i].ProductID]; ok {
			items[i].Product = &p
		}
	}
	return nil
}

// WithinTx runs fn in a READ COMMITTED transaction. Conditional updates
// re-check their predicate after waiting on a row lock, which is all the
// stock ledger needs.
func (s *Postgres) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	if err := fn(&pgTx{tx: tx, now: s.now}); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}
	return mapErr(tx.Commit())
}

func scanOrder(row rowScanner) (order.Order, error) {
	var o order.Order
	var status string
	if err := row.Scan(&o.ID, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return order.Order{}, err
	}
	o.Status = order.Status(status)
	return o, nil
}

func scanItem(row rowScanner) (order.Item, error) {
	var it order.Item
	var productID sql.NullString
	if err := row.Scan(&it.ID, &it.OrderID, &productID, &it.Quantity, &it.ProductName, &it.UnitPrice, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return order.Item{}, err
	}
	it.ProductID = productID.String
	return it, nil
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]order.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	items := make([]order.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// Transaction
// ---------------------------------------------------------------------------

type pgTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *pgTx) InsertOrder(ctx context.Context, o order.Order) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO catalog_orders (id, status, created_at, updated_at) VALUES ($1,$2,$3,$4)`,
		o.ID, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	return mapErr(err)
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (order.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx, orderSelect+` WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return order.Order{}, notFound(err, "order "+id)
	}
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o order.Order) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_orders SET status=$2, updated_at=$3 WHERE id=$1`,
		o.ID, string(o.Status), o.UpdatedAt,
	)
	return affectedOne(res, err, "order "+o.ID)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM catalog_orders WHERE id=$1`, id)
	return affectedOne(res, err, "order "+id)
}

func (t *pgTx) LookupProduct(ctx context.Context, id string) (order.ProductSnapshot, error) {
	var snap order.ProductSnapshot
	err := t.tx.QueryRowContext(ctx, `SELECT id, name, price FROM catalog_products WHERE id=$1`, id).
		Scan(&snap.ID, &snap.Name, &snap.Price)
	if err != nil {
		return order.ProductSnapshot{}, notFound(err, "product "+id)
	}
	return snap, nil
}

func (t *pgTx) ReserveStock(ctx context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_products SET stock = stock - $2, reserved = reserved + $2, updated_at = $3
		WHERE id = $1 AND stock >= $2`,
		productID, n, t.now().UTC(),
	)
	if err := affectedOne(res, err, "product "+productID); !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	var stock int
	if err := t.tx.QueryRowContext(ctx, `SELECT stock FROM catalog_products WHERE id=$1`, productID).Scan(&stock); err != nil {
		return notFound(err, "product "+productID)
	}
	return insufficient(productID, stock, n)
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID string, n int) (int, error) {
	if err := checkUnits(n); err != nil {
		return 0, err
	}
	var reserved int
	err := t.tx.QueryRowContext(ctx, `SELECT reserved FROM catalog_products WHERE id=$1 FOR UPDATE`, productID).Scan(&reserved)
	if err != nil {
		return 0, notFound(err, "product "+productID)
	}
	back := min(n, reserved)
	if back == 0 {
		return 0, nil
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE catalog_products SET stock = stock + $2, reserved = reserved - $2, updated_at = $3 WHERE id = $1`,
		productID, back, t.now().UTC(),
	)
	if err != nil {
		return 0, mapErr(err)
	}
	return back, nil
}

func (t *pgTx) CommitReservation(ctx context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_products
		SET stock = stock - GREATEST($2 - reserved, 0), reserved = GREATEST(reserved - $2, 0), updated_at = $3
		WHERE id = $1 AND stock + reserved >= $2`,
		productID, n, t.now().UTC(),
	)
	if err := affectedOne(res, err, "product "+productID); !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	var units int
	if err := t.tx.QueryRowContext(ctx, `SELECT stock + reserved FROM catalog_products WHERE id=$1`, productID).Scan(&units); err != nil {
		return notFound(err, "product "+productID)
	}
	return insufficient(productID, units, n)
}

func (t *pgTx) RestockCommitted(ctx context.Context, productID string, n int) error {
	if err := checkUnits(n); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_products SET stock = stock + $2, updated_at = $3 WHERE id = $1`,
		productID, n, t.now().UTC(),
	)
	return affectedOne(res, err, "product "+productID)
}

func (t *pgTx) OrderItems(ctx context.Context, orderID string) ([]order.Item, error) {
	return queryItems(ctx, t.tx, itemSelect+` WHERE order_id = $1 ORDER BY created_at, id`, orderID)
}

func (t *pgTx) GetItem(ctx context.Context, id string) (order.Item, error) {
	it, err := scanItem(t.tx.QueryRowContext(ctx, itemSelect+` WHERE id = $1`, id))
	if err != nil {
		return order.Item{}, notFound(err, "order item "+id)
	}
	return it, nil
}

func (t *pgTx) FindItem(ctx context.Context, orderID, productID string) (order.Item, error) {
	it, err := scanItem(t.tx.QueryRowContext(ctx, itemSelect+` WHERE order_id = $1 AND product_id = $2`, orderID, productID))
	if err != nil {
		return order.Item{}, notFound(err, fmt.Sprintf("order %s has no item for product %s", orderID, productID))
	}
	return it, nil
}

func (t *pgTx) InsertItem(ctx context.Context, it order.Item) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO catalog_order_items (id, order_id, product_id, quantity, product_name, unit_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		it.ID, it.OrderID, it.ProductID, it.Quantity, it.ProductName, it.UnitPrice, it.CreatedAt, it.UpdatedAt,
	)
	return mapErr(err)
}

func (t *pgTx) UpdateItem(ctx context.Context, it order.Item) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_order_items SET quantity=$2, updated_at=$3 WHERE id=$1`,
		it.ID, it.Quantity, it.UpdatedAt,
	)
	return affectedOne(res, err, "order item "+it.ID)
}

func (t *pgTx) DeleteItem(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM catalog_order_items WHERE id=$1`, id)
	return affectedOne(res, err, "order item "+id)
}

func (t *pgTx) DeleteItems(ctx context.Context, orderID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM catalog_order_items WHERE order_id=$1`, orderID)
	return mapErr(err)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// mapErr translates PostgreSQL error codes into the apperr taxonomy.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", apperr.ErrConflict, pgErr.Message)
	case "23505":
		return fmt.Errorf("%w: %s", apperr.ErrDuplicate, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: referenced row is missing (%s)", apperr.ErrNotFound, pgErr.ConstraintName)
	case "23514":
		return apperr.Validation("value violates " + pgErr.ConstraintName)
	case "22003":
		return apperr.Validation("numeric value out of range")
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}
	return mapErr(err)
}

func affectedOne(res sql.Result, err error, what string) error {
	if err != nil {
		return mapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}
	return nil
}

// pageClause appends LIMIT/OFFSET placeholders. A non-positive limit means
// no limit.
func pageClause(args *[]any, skip, limit int) string {
	var b strings.Builder
	if limit > 0 {
		*args = append(*args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(*args))
	}
	if skip > 0 {
		*args = append(*args, skip)
		fmt.Fprintf(&b, " OFFSET $%d", len(*args))
	}
	return b.String()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
