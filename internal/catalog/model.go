// Package catalog manages products, categories and subcategories.
//
// Stock counts are read here but only ever written by the order workflow,
// with one exception: an administrative product edit that sets stock is
// treated as a physical recount (see UpdateProductRequest).
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Producer        string          `json:"producer,omitempty"`
	Description     string          `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	Reserved        int             `json:"reserved"`
	CategoryID      string          `json:"category_id,omitempty"`
	CategoryName    string          `json:"category_name,omitempty"`
	SubCategoryID   string          `json:"subcategory_id,omitempty"`
	SubCategoryName string          `json:"subcategory_name,omitempty"`
	ImageURL        string          `json:"image_url,omitempty"`
	IsTop           bool            `json:"is_top_product"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type Category struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	ImageURL      string        `json:"image_url,omitempty"`
	IsTop         bool          `json:"is_top_category"`
	SubCategories []SubCategory `json:"subcategories"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type SubCategory struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateProductRequest carries a new product. Category and SubCategory
// accept either an id or a name.
type CreateProductRequest struct {
	Name        string          `json:"name"`
	Producer    string          `json:"producer"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
	SubCategory string          `json:"subcategory"`
	ImageURL    string          `json:"image_url"`
	IsTop       bool            `json:"is_top_product"`
}

// UpdateProductRequest is a partial edit. A non-nil Stock is a physical
// recount: stock is overwritten and any units held by open orders are
// dropped from the ledger, to be re-acquired when those orders confirm.
type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty"`
	Producer    *string          `json:"producer,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	Category    *string          `json:"category,omitempty"`
	SubCategory *string          `json:"subcategory,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	IsTop       *bool            `json:"is_top_product,omitempty"`
}

type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	IsTop       bool   `json:"is_top_category"`
}

type UpdateCategoryRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	IsTop       *bool   `json:"is_top_category,omitempty"`
}

// CreateSubCategoryRequest names the parent by id or name.
type CreateSubCategoryRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type UpdateSubCategoryRequest struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
}

// ProductFilter narrows product listings. Zero values mean no filter.
type ProductFilter struct {
	CategoryID    string
	SubCategoryID string
	TopOnly       bool
	Skip          int
	Limit         int
}

// Page is a skip/limit window.
type Page struct {
	Skip  int
	Limit int
}

type ProductList struct {
	Items  []Product `json:"items"`
	Cached bool      `json:"cached"`
}
