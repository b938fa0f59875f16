package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/apperr"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	maxStock     = math.MaxInt32
)

// Service implements catalog management on top of a Store and keeps a short
// lived cache of product listings.
type Service struct {
	store     Store
	logger    *zap.Logger
	cacheTTL  time.Duration
	cacheMu   sync.RWMutex
	listCache map[string]cacheItem
	cacheGen  uint64
	now       func() time.Time
}

// NewService wires the store. A non-positive cacheTTL disables the listing cache.
func NewService(store Store, logger *zap.Logger, cacheTTL time.Duration) *Service {
	return &Service{
		store:     store,
		logger:    logger.Named("catalog"),
		cacheTTL:  cacheTTL,
		listCache: make(map[string]cacheItem),
		now:       time.Now,
	}
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error) {
	p, err := buildProduct(req, s.now().UTC())
	if err != nil {
		return Product{}, err
	}
	if err := s.assignCategories(ctx, &p, req.Category, req.SubCategory, true); err != nil {
		return Product{}, err
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	s.InvalidateProducts()
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	return s.store.GetProduct(ctx, p.ID)
}

// GetProduct resolves identifier as an id first and as a name second.
func (s *Service) GetProduct(ctx context.Context, identifier string) (Product, error) {
	identifier = strings.TrimSpace(identifier)
	p, err := s.store.GetProduct(ctx, identifier)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return p, err
	}
	return s.store.FindProductByName(ctx, identifier)
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) (ProductList, error) {
	f.Skip, f.Limit = normalizePage(f.Skip, f.Limit)
	if cached, ok := s.getListCache(f); ok {
		return ProductList{Items: cached, Cached: true}, nil
	}
	gen := s.cacheGeneration()
	items, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return ProductList{}, fmt.Errorf("list products: %w", err)
	}
	if items == nil {
		items = []Product{}
	}
	s.setListCache(f, items, gen)
	return ProductList{Items: items}, nil
}

func (s *Service) TopProducts(ctx context.Context, page Page) (ProductList, error) {
	return s.ListProducts(ctx, ProductFilter{TopOnly: true, Skip: page.Skip, Limit: page.Limit})
}

func (s *Service) ExplainProducts(ctx context.Context, f ProductFilter) (any, error) {
	f.Skip, f.Limit = normalizePage(f.Skip, f.Limit)
	return s.store.ExplainProductList(ctx, f)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req UpdateProductRequest) (Product, error) {
	if req == (UpdateProductRequest{}) {
		return Product{}, apperr.Validation("empty update payload")
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return Product{}, apperr.Validation("name must not be empty")
		}
		p.Name = name
	}
	if req.Producer != nil {
		p.Producer = strings.TrimSpace(*req.Producer)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return Product{}, apperr.Validation("price must be greater than zero")
		}
		p.Price = *req.Price
	}
	recount := false
	if req.Stock != nil {
		if err := validateStock(*req.Stock); err != nil {
			return Product{}, err
		}
		p.Stock, p.Reserved, recount = *req.Stock, 0, true
	}
	if req.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.IsTop != nil {
		p.IsTop = *req.IsTop
	}
	if req.Category != nil || req.SubCategory != nil {
		category, subcategory, strict := p.CategoryID, p.SubCategoryID, false
		if req.Category != nil {
			category = *req.Category
		}
		if req.SubCategory != nil {
			subcategory, strict = *req.SubCategory, true
		}
		if err := s.assignCategories(ctx, &p, category, subcategory, strict); err != nil {
			return Product{}, err
		}
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateProduct(ctx, p, recount); err != nil {
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	s.InvalidateProducts()
	if recount {
		s.logger.Warn("product stock overwritten by recount", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	}
	return s.store.GetProduct(ctx, p.ID)
}

// DeleteProduct removes the product and returns its last state.
func (s *Service) DeleteProduct(ctx context.Context, id string) (Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return Product{}, fmt.Errorf("delete product: %w", err)
	}
	s.InvalidateProducts()
	s.logger.Info("product deleted", zap.String("product_id", id))
	return p, nil
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (s *Service) CreateCategory(ctx context.Context, req CreateCategoryRequest) (Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Category{}, apperr.Validation("name is required")
	}
	if err := s.categoryNameFree(ctx, name, ""); err != nil {
		return Category{}, err
	}
	now := s.now().UTC()
	c := Category{
		ID:          newID("cat"),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    strings.TrimSpace(req.ImageURL),
		IsTop:       req.IsTop,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return Category{}, fmt.Errorf("create category: %w", err)
	}
	return s.store.GetCategory(ctx, c.ID)
}

// GetCategory resolves identifier as an id first and as a name second.
func (s *Service) GetCategory(ctx context.Context, identifier string) (Category, error) {
	identifier = strings.TrimSpace(identifier)
	c, err := s.store.GetCategory(ctx, identifier)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return c, err
	}
	return s.store.FindCategoryByName(ctx, identifier)
}

func (s *Service) ListCategories(ctx context.Context, page Page) ([]Category, error) {
	page.Skip, page.Limit = normalizePage(page.Skip, page.Limit)
	return s.store.ListCategories(ctx, false, page)
}

func (s *Service) TopCategories(ctx context.Context, page Page) ([]Category, error) {
	page.Skip, page.Limit = normalizePage(page.Skip, page.Limit)
	return s.store.ListCategories(ctx, true, page)
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req UpdateCategoryRequest) (Category, error) {
	if req == (UpdateCategoryRequest{}) {
		return Category{}, apperr.Validation("empty update payload")
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return Category{}, apperr.Validation("name must not be empty")
		}
		if err := s.categoryNameFree(ctx, name, c.ID); err != nil {
			return Category{}, err
		}
		c.Name = name
	}
	if req.Description != nil {
		c.Description = strings.TrimSpace(*req.Description)
	}
	if req.ImageURL != nil {
		c.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.IsTop != nil {
		c.IsTop = *req.IsTop
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return Category{}, fmt.Errorf("update category: %w", err)
	}
	s.InvalidateProducts()
	return s.store.GetCategory(ctx, c.ID)
}

// DeleteCategory removes the category with its subcategories. Products keep
// existing with their category references cleared.
func (s *Service) DeleteCategory(ctx context.Context, id string) (Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return Category{}, err
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return Category{}, fmt.Errorf("delete category: %w", err)
	}
	s.InvalidateProducts()
	s.logger.Info("category deleted", zap.String("category_id", id), zap.Int("subcategories", len(c.SubCategories)))
	return c, nil
}

func (s *Service) CategoryProducts(ctx context.Context, identifier string, page Page) (ProductList, error) {
	c, err := s.GetCategory(ctx, identifier)
	if err != nil {
		return ProductList{}, err
	}
	return s.ListProducts(ctx, ProductFilter{CategoryID: c.ID, Skip: page.Skip, Limit: page.Limit})
}

func (s *Service) CategorySubCategories(ctx context.Context, identifier string, page Page) ([]SubCategory, error) {
	c, err := s.GetCategory(ctx, identifier)
	if err != nil {
		return nil, err
	}
	page.Skip, page.Limit = normalizePage(page.Skip, page.Limit)
	return s.store.ListSubCategories(ctx, c.ID, page)
}

// ---------------------------------------------------------------------------
// Subcategories
// ---------------------------------------------------------------------------

func (s *Service) CreateSubCategory(ctx context.Context, req CreateSubCategoryRequest) (SubCategory, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return SubCategory{}, apperr.Validation("name is required")
	}
	if strings.TrimSpace(req.Category) == "" {
		return SubCategory{}, apperr.Validation("category is required")
	}
	parent, err := s.GetCategory(ctx, req.Category)
	if err != nil {
		return SubCategory{}, err
	}
	if err := s.subCategoryNameFree(ctx, parent.ID, name, ""); err != nil {
		return SubCategory{}, err
	}
	now := s.now().UTC()
	sc := SubCategory{
		ID:         newID("sub"),
		Name:       name,
		CategoryID: parent.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateSubCategory(ctx, sc); err != nil {
		return SubCategory{}, fmt.Errorf("create subcategory: %w", err)
	}
	return s.store.GetSubCategory(ctx, sc.ID)
}

// GetSubCategory resolves identifier as an id first and as a name second.
func (s *Service) GetSubCategory(ctx context.Context, identifier string) (SubCategory, error) {
	identifier = strings.TrimSpace(identifier)
	sc, err := s.store.GetSubCategory(ctx, identifier)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return sc, err
	}
	return s.store.FindSubCategoryByName(ctx, identifier)
}

func (s *Service) ListSubCategories(ctx context.Context, page Page) ([]SubCategory, error) {
	page.Skip, page.Limit = normalizePage(page.Skip, page.Limit)
	return s.store.ListSubCategories(ctx, "", page)
}

func (s *Service) UpdateSubCategory(ctx context.Context, id string, req UpdateSubCategoryRequest) (SubCategory, error) {
	if req == (UpdateSubCategoryRequest{}) {
		return SubCategory{}, apperr.Validation("empty update payload")
	}
	sc, err := s.store.GetSubCategory(ctx, id)
	if err != nil {
		return SubCategory{}, err
	}
	if req.Category != nil {
		parent, err := s.GetCategory(ctx, *req.Category)
		if err != nil {
			return SubCategory{}, err
		}
		sc.CategoryID = parent.ID
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return SubCategory{}, apperr.Validation("name must not be empty")
		}
		sc.Name = name
	}
	if err := s.subCategoryNameFree(ctx, sc.CategoryID, sc.Name, sc.ID); err != nil {
		return SubCategory{}, err
	}
	sc.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSubCategory(ctx, sc); err != nil {
		return SubCategory{}, fmt.Errorf("update subcategory: %w", err)
	}
	s.InvalidateProducts()
	return s.store.GetSubCategory(ctx, sc.ID)
}

func (s *Service) DeleteSubCategory(ctx context.Context, id string) (SubCategory, error) {
	sc, err := s.store.GetSubCategory(ctx, id)
	if err != nil {
		return SubCategory{}, err
	}
	if err := s.store.DeleteSubCategory(ctx, id); err != nil {
		return SubCategory{}, fmt.Errorf("delete subcategory: %w", err)
	}
	s.InvalidateProducts()
	return sc, nil
}

func (s *Service) SubCategoryProducts(ctx context.Context, identifier string, page Page) (ProductList, error) {
	sc, err := s.GetSubCategory(ctx, identifier)
	if err != nil {
		return ProductList{}, err
	}
	return s.ListProducts(ctx, ProductFilter{SubCategoryID: sc.ID, Skip: page.Skip, Limit: page.Limit})
}

// ---------------------------------------------------------------------------
// Build / Validate
// ---------------------------------------------------------------------------

func buildProduct(req CreateProductRequest, now time.Time) (Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Product{}, apperr.Validation("name is required")
	}
	if !req.Price.IsPositive() {
		return Product{}, apperr.Validation("price must be greater than zero")
	}
	if err := validateStock(req.Stock); err != nil {
		return Product{}, err
	}
	return Product{
		ID:          newID("prd"),
		Name:        name,
		Producer:    strings.TrimSpace(req.Producer),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
		ImageURL:    strings.TrimSpace(req.ImageURL),
		IsTop:       req.IsTop,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// assignCategories resolves category and subcategory identifiers onto p. An
// empty identifier clears the reference. A subcategory outside the chosen
// category is an error when strict, and is dropped otherwise.
func (s *Service) assignCategories(ctx context.Context, p *Product, category, subcategory string, strict bool) error {
	p.CategoryID, p.SubCategoryID = "", ""
	if category = strings.TrimSpace(category); category != "" {
		c, err := s.GetCategory(ctx, category)
		if err != nil {
			return fmt.Errorf("category %q: %w", category, err)
		}
		p.CategoryID = c.ID
	}
	subcategory = strings.TrimSpace(subcategory)
	if subcategory == "" {
		return nil
	}
	sc, err := s.GetSubCategory(ctx, subcategory)
	if err != nil {
		if !strict && errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("subcategory %q: %w", subcategory, err)
	}
	switch {
	case p.CategoryID == "":
		p.CategoryID = sc.CategoryID
	case p.CategoryID != sc.CategoryID:
		if strict {
			return apperr.Validation(fmt.Sprintf("subcategory %q does not belong to the product category", sc.Name))
		}
		return nil
	}
	p.SubCategoryID = sc.ID
	return nil
}

func (s *Service) categoryNameFree(ctx context.Context, name, exceptID string) error {
	existing, err := s.store.FindCategoryByName(ctx, name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == exceptID:
		return nil
	}
	return fmt.Errorf("%w: category %q", apperr.ErrDuplicate, name)
}

func (s *Service) subCategoryNameFree(ctx context.Context, categoryID, name, exceptID string) error {
	siblings, err := s.store.ListSubCategories(ctx, categoryID, Page{Limit: -1})
	if err != nil {
		return err
	}
	for _, sc := range siblings {
		if sc.ID != exceptID && strings.EqualFold(sc.Name, name) {
			return fmt.Errorf("%w: subcategory %q", apperr.ErrDuplicate, name)
		}
	}
	return nil
}

func validateStock(n int) error {
	if n < 0 {
		return apperr.Validation("stock must not be negative")
	}
	if n > maxStock {
		return apperr.Validation(fmt.Sprintf("stock must not exceed %d", maxStock))
	}
	return nil
}

func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

