package catalog

import "context"

// Store is the persistence the catalog needs. Lookups return an error
// wrapping apperr.ErrNotFound when nothing matches.
type Store interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	FindProductByName(ctx context.Context, name string) (Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	// UpdateProduct writes every editable field. When recount is true the
	// stock column is overwritten with p.Stock and reserved is reset to zero.
	UpdateProduct(ctx context.Context, p Product, recount bool) error
	// DeleteProduct removes the product, drops its line items from open
	// orders and detaches it from confirmed ones.
	DeleteProduct(ctx context.Context, id string) error
	ExplainProductList(ctx context.Context, f ProductFilter) (any, error)

	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	FindCategoryByName(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context, topOnly bool, page Page) ([]Category, error)
	UpdateCategory(ctx context.Context, c Category) error
	// DeleteCategory removes the category and its subcategories and nulls
	// the references held by products.
	DeleteCategory(ctx context.Context, id string) error

	CreateSubCategory(ctx context.Context, s SubCategory) error
	GetSubCategory(ctx context.Context, id string) (SubCategory, error)
	FindSubCategoryByName(ctx context.Context, name string) (SubCategory, error)
	// ListSubCategories lists all subcategories, or those of categoryID when
	// set. A non-positive page.Limit means no limit.
	ListSubCategories(ctx context.Context, categoryID string, page Page) ([]SubCategory, error)
	UpdateSubCategory(ctx context.Context, s SubCategory) error
	DeleteSubCategory(ctx context.Context, id string) error
}
