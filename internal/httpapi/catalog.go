package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"erp/ecommerce/catalog-service/internal/catalog"
)

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func productFilter(c *gin.Context) catalog.ProductFilter {
	p := page(c)
	return catalog.ProductFilter{
		CategoryID:    strings.TrimSpace(c.Query("category_id")),
		SubCategoryID: strings.TrimSpace(c.Query("subcategory_id")),
		TopOnly:       boolQuery(c, "top"),
		Skip:          p.Skip,
		Limit:         p.Limit,
	}
}

func productList(c *gin.Context, resp catalog.ProductList, topic string) {
	c.JSON(http.StatusOK, gin.H{"items": resp.Items, "cached": resp.Cached, "event_topic": "erp.ecommerce." + topic})
}

func (s *server) listProducts(c *gin.Context) {
	resp, err := s.catalog.ListProducts(c.Request.Context(), productFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	productList(c, resp, "product.listed")
}

func (s *server) topProducts(c *gin.Context) {
	resp, err := s.catalog.TopProducts(c.Request.Context(), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	productList(c, resp, "product.top.listed")
}

func (s *server) explainProducts(c *gin.Context) {
	plan, err := s.catalog.ExplainProducts(c.Request.Context(), productFilter(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan, "event_topic": "erp.ecommerce.product.explain.generated"})
}

func (s *server) createProduct(c *gin.Context) {
	var req catalog.CreateProductRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusCreated, p, "product.created")
}

func (s *server) getProduct(c *gin.Context) {
	p, err := s.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, p, "product.read")
}

func (s *server) updateProduct(c *gin.Context) {
	var req catalog.UpdateProductRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, p, "product.updated")
}

func (s *server) deleteProduct(c *gin.Context) {
	p, err := s.catalog.DeleteProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, p, "product.deleted")
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (s *server) listCategories(c *gin.Context) {
	items, err := s.catalog.ListCategories(c.Request.Context(), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "category.listed")
}

func (s *server) topCategories(c *gin.Context) {
	items, err := s.catalog.TopCategories(c.Request.Context(), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "category.top.listed")
}

func (s *server) createCategory(c *gin.Context) {
	var req catalog.CreateCategoryRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	cat, err := s.catalog.CreateCategory(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusCreated, cat, "category.created")
}

func (s *server) getCategory(c *gin.Context) {
	cat, err := s.catalog.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, cat, "category.read")
}

func (s *server) updateCategory(c *gin.Context) {
	var req catalog.UpdateCategoryRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	cat, err := s.catalog.UpdateCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, cat, "category.updated")
}

func (s *server) deleteCategory(c *gin.Context) {
	cat, err := s.catalog.DeleteCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, cat, "category.deleted")
}

func (s *server) categorySubCategories(c *gin.Context) {
	items, err := s.catalog.CategorySubCategories(c.Request.Context(), c.Param("id"), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "category.subcategories.listed")
}

func (s *server) categoryProducts(c *gin.Context) {
	resp, err := s.catalog.CategoryProducts(c.Request.Context(), c.Param("id"), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	productList(c, resp, "category.products.listed")
}

// ---------------------------------------------------------------------------
// Subcategories
// ---------------------------------------------------------------------------

func (s *server) listSubCategories(c *gin.Context) {
	items, err := s.catalog.ListSubCategories(c.Request.Context(), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	list(c, items, "subcategory.listed")
}

func (s *server) createSubCategory(c *gin.Context) {
	var req catalog.CreateSubCategoryRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	sc, err := s.catalog.CreateSubCategory(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusCreated, sc, "subcategory.created")
}

func (s *server) getSubCategory(c *gin.Context) {
	sc, err := s.catalog.GetSubCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, sc, "subcategory.read")
}

func (s *server) updateSubCategory(c *gin.Context) {
	var req catalog.UpdateSubCategoryRequest
	if err := bindJSON(c, &req); err != nil {
		s.fail(c, err)
		return
	}
	sc, err := s.catalog.UpdateSubCategory(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, sc, "subcategory.updated")
}

func (s *server) deleteSubCategory(c *gin.Context) {
	sc, err := s.catalog.DeleteSubCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	item(c, http.StatusOK, sc, "subcategory.deleted")
}

func (s *server) subCategoryProducts(c *gin.Context) {
	resp, err := s.catalog.SubCategoryProducts(c.Request.Context(), c.Param("id"), page(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	productList(c, resp, "subcategory.products.listed")
}
