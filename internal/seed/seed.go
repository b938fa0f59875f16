// Package seed loads catalog fixtures from YAML and applies them through the
// catalog service. Applying the same file twice creates nothing new.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
)

type File struct {
	Categories []Category `yaml:"categories"`
	Products   []Product  `yaml:"products"`
}

type Category struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	ImageURL      string   `yaml:"image_url"`
	Top           bool     `yaml:"top"`
	SubCategories []string `yaml:"subcategories"`
}

type Product struct {
	Name        string `yaml:"name"`
	Producer    string `yaml:"producer"`
	Description string `yaml:"description"`
	// Price is a decimal string such as "19.99".
	Price       string `yaml:"price"`
	Stock       int    `yaml:"stock"`
	Category    string `yaml:"category"`
	SubCategory string `yaml:"subcategory"`
	ImageURL    string `yaml:"image_url"`
	Top         bool   `yaml:"top"`
}

// Catalog is the part of catalog.Service the seeder writes through.
type Catalog interface {
	GetCategory(ctx context.Context, identifier string) (catalog.Category, error)
	CreateCategory(ctx context.Context, req catalog.CreateCategoryRequest) (catalog.Category, error)
	CreateSubCategory(ctx context.Context, req catalog.CreateSubCategoryRequest) (catalog.SubCategory, error)
	GetProduct(ctx context.Context, identifier string) (catalog.Product, error)
	CreateProduct(ctx context.Context, req catalog.CreateProductRequest) (catalog.Product, error)
}

// Result counts what Apply created.
type Result struct {
	Categories    int
	SubCategories int
	Products      int
}

// LoadFile loads and parses a seed file from the given path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML seed data and checks every entry.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}
	normalize(&f)
	if err := validate(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func normalize(f *File) {
	for i := range f.Categories {
		c := &f.Categories[i]
		c.Name = strings.TrimSpace(c.Name)
		for j := range c.SubCategories {
			c.SubCategories[j] = strings.TrimSpace(c.SubCategories[j])
		}
	}
	for i := range f.Products {
		p := &f.Products[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Price = strings.TrimSpace(p.Price)
		p.Category = strings.TrimSpace(p.Category)
		p.SubCategory = strings.TrimSpace(p.SubCategory)
	}
}

func validate(f *File) error {
	for i, c := range f.Categories {
		if c.Name == "" {
			return fmt.Errorf("categories[%d]: name is required", i)
		}
		for j, sc := range c.SubCategories {
			if sc == "" {
				return fmt.Errorf("categories[%d].subcategories[%d]: name is required", i, j)
			}
		}
	}
	for i, p := range f.Products {
		if p.Name == "" {
			return fmt.Errorf("products[%d]: name is required", i)
		}
		if _, err := decimal.NewFromString(p.Price); err != nil {
			return fmt.Errorf("products[%d] %q: invalid price %q", i, p.Name, p.Price)
		}
		if p.Stock < 0 {
			return fmt.Errorf("products[%d] %q: stock must not be negative", i, p.Name)
		}
	}
	return nil
}

// Apply creates the categories, subcategories and products of f that do not
// exist yet, matching by name.
func Apply(ctx context.Context, svc Catalog, f *File, logger *zap.Logger) (Result, error) {
	var res Result
	for _, c := range f.Categories {
		existing, err := svc.GetCategory(ctx, c.Name)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			existing, err = svc.CreateCategory(ctx, catalog.CreateCategoryRequest{
				Name:        c.Name,
				Description: c.Description,
				ImageURL:    c.ImageURL,
				IsTop:       c.Top,
			})
			if err != nil {
				return res, fmt.Errorf("seed category %q: %w", c.Name, err)
			}
			res.Categories++
		case err != nil:
			return res, fmt.Errorf("seed category %q: %w", c.Name, err)
		}
		for _, name := range c.SubCategories {
			if hasSubCategory(existing, name) {
				continue
			}
			if _, err := svc.CreateSubCategory(ctx, catalog.CreateSubCategoryRequest{Name: name, Category: existing.ID}); err != nil {
				return res, fmt.Errorf("seed subcategory %q: %w", name, err)
			}
			res.SubCategories++
		}
	}

	for _, p := range f.Products {
		_, err := svc.GetProduct(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return res, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return res, fmt.Errorf("seed product %q: invalid price %q", p.Name, p.Price)
		}
		if _, err := svc.CreateProduct(ctx, catalog.CreateProductRequest{
			Name:        p.Name,
			Producer:    p.Producer,
			Description: p.Description,
			Price:       price,
			Stock:       p.Stock,
			Category:    p.Category,
			SubCategory: p.SubCategory,
			ImageURL:    p.ImageURL,
			IsTop:       p.Top,
		}); err != nil {
			return res, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
		res.Products++
	}

	logger.Info("seed applied",
		zap.Int("categories", res.Categories),
		zap.Int("subcategories", res.SubCategories),
		zap.Int("products", res.Products))
	return res, nil
}

func hasSubCategory(c catalog.Category, name string) bool {
	for _, sc := range c.SubCategories {
		if strings.EqualFold(sc.Name, name) {
			return true
		}
	}
	return false
}
