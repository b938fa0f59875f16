package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/seed"
	"erp/ecommerce/catalog-service/internal/store"
)

func TestLoadFile(t *testing.T) {
	f, err := seed.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)

	require.Len(t, f.Categories, 2)
	assert.Equal(t, []string{"Phones", "Laptops"}, f.Categories[0].SubCategories)
	require.Len(t, f.Products, 3)
	assert.Equal(t, "1499.99", f.Products[1].Price)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := seed.LoadFile("testdata/does-not-exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read seed file")
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]struct {
		yaml string
		want string
	}{
		"malformed":         {yaml: "categories: [", want: "failed to parse seed YAML"},
		"unnamed category":  {yaml: "categories:\n  - description: x\n", want: "categories[0]: name is required"},
		"blank subcategory": {yaml: "categories:\n  - name: A\n    subcategories: ['  ']\n", want: "subcategories[0]"},
		"unnamed product":   {yaml: "products:\n  - price: '1'\n", want: "products[0]: name is required"},
		"bad price":         {yaml: "products:\n  - name: P\n    price: cheap\n", want: "invalid price"},
		"negative stock":    {yaml: "products:\n  - name: P\n    price: '1'\n    stock: -1\n", want: "stock must not be negative"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := seed.Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseTrimsNames(t *testing.T) {
	f, err := seed.Parse([]byte("products:\n  - name: '  Kettle '\n    price: ' 12.5 '\n    category: ' Kitchen'\n"))
	require.NoError(t, err)
	assert.Equal(t, "Kettle", f.Products[0].Name)
	assert.Equal(t, "12.5", f.Products[0].Price)
	assert.Equal(t, "Kitchen", f.Products[0].Category)
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	svc := catalog.NewService(store.NewMemory(), logger, 0)

	f, err := seed.LoadFile("testdata/catalog.yaml")
	require.NoError(t, err)

	res, err := seed.Apply(ctx, svc, f, logger)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{Categories: 2, SubCategories: 3, Products: 3}, res)

	res, err = seed.Apply(ctx, svc, f, logger)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{}, res)

	p, err := svc.GetProduct(ctx, "Pixel 8")
	require.NoError(t, err)
	assert.Equal(t, 25, p.Stock)
	assert.Equal(t, "Phones", p.SubCategoryName)
	assert.Equal(t, "Electronics", p.CategoryName)
	assert.True(t, p.IsTop)

	c, err := svc.GetCategory(ctx, "Electronics")
	require.NoError(t, err)
	assert.Len(t, c.SubCategories, 2)
}

func TestApplyAddsMissingSubCategories(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	svc := catalog.NewService(store.NewMemory(), logger, 0)

	_, err := svc.CreateCategory(ctx, catalog.CreateCategoryRequest{Name: "Kitchen"})
	require.NoError(t, err)

	f, err := seed.Parse([]byte("categories:\n  - name: kitchen\n    subcategories: [Cookware, Cutlery]\n"))
	require.NoError(t, err)

	res, err := seed.Apply(ctx, svc, f, logger)
	require.NoError(t, err)
	assert.Equal(t, seed.Result{SubCategories: 2}, res)
}
