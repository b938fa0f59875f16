// Package httpapi exposes the catalog and the order workflow over HTTP.
package httpapi

import (
	"errors"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"erp/ecommerce/catalog-service/internal/apperr"
	"erp/ecommerce/catalog-service/internal/catalog"
	"erp/ecommerce/catalog-service/internal/order"
)

const maxBodyBytes = 1 << 20

// Options carries what the router reports and allows beyond the services.
type Options struct {
	Module         string
	Mode           string
	AllowedOrigins []string
}

type server struct {
	catalog *catalog.Service
	orders  *order.Service
	logger  *zap.Logger
	opts    Options
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cat *catalog.Service, orders *order.Service, logger *zap.Logger, opts Options) *gin.Engine {
	s := &server{catalog: cat, orders: orders, logger: logger.Named("http"), opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders(), corsMiddleware(opts.AllowedOrigins))

	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")

	products := v1.Group("/products")
	{
		products.GET("", s.listProducts)
		products.POST("", s.createProduct)
		products.GET("/top", s.topProducts)
		products.GET("/_explain", s.explainProducts)
		products.GET("/:id", s.getProduct)
		products.PUT("/:id", s.updateProduct)
		products.PATCH("/:id", s.updateProduct)
		products.DELETE("/:id", s.deleteProduct)
	}

	categories := v1.Group("/categories")
	{
		categories.GET("", s.listCategories)
		categories.POST("", s.createCategory)
		categories.GET("/top", s.topCategories)
		categories.GET("/:id", s.getCategory)
		categories.PUT("/:id", s.updateCategory)
		categories.PATCH("/:id", s.updateCategory)
		categories.DELETE("/:id", s.deleteCategory)
		categories.GET("/:id/subcategories", s.categorySubCategories)
		categories.GET("/:id/products", s.categoryProducts)
	}

	subcategories := v1.Group("/subcategories")
	{
		subcategories.GET("", s.listSubCategories)
		subcategories.POST("", s.createSubCategory)
		subcategories.GET("/:id", s.getSubCategory)
		subcategories.PUT("/:id", s.updateSubCategory)
		subcategories.PATCH("/:id", s.updateSubCategory)
		subcategories.DELETE("/:id", s.deleteSubCategory)
		subcategories.GET("/:id/products", s.subCategoryProducts)
	}

	orderRoutes := v1.Group("/orders")
	{
		orderRoutes.GET("", s.listOrders)
		orderRoutes.POST("", s.createOrder)
		orderRoutes.GET("/:id", s.getOrder)
		orderRoutes.DELETE("/:id", s.cancelOrder)
		orderRoutes.POST("/:id/confirm", s.confirmOrder)
		orderRoutes.GET("/:id/items", s.listOrderItems)
		orderRoutes.POST("/:id/items", s.addOrderItem)
	}

	items := v1.Group("/order-items")
	{
		items.GET("/:id", s.getOrderItem)
		items.PUT("/:id", s.updateOrderItem)
		items.DELETE("/:id", s.removeOrderItem)
	}

	return r
}

func (s *server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "module": s.opts.Module, "service": "catalog-service", "mode": s.opts.Mode})
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

// fail writes err with the status its kind maps to. Unclassified errors are
// logged and answered with a generic message.
func (s *server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case apperr.IsValidation(err), errors.Is(err, apperr.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrOrderClosed), errors.Is(err, apperr.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("empty request body")
		}
		return apperr.Validation("invalid JSON payload")
	}
	return nil
}

func intQuery(c *gin.Context, key string, def, min, max int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

func page(c *gin.Context) catalog.Page {
	return catalog.Page{
		Skip:  intQuery(c, "skip", 0, 0, math.MaxInt32),
		Limit: intQuery(c, "limit", 50, 1, 200),
	}
}

func boolQuery(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && v
}

func item(c *gin.Context, status int, v any, topic string) {
	c.JSON(status, gin.H{"item": v, "event_topic": "erp.ecommerce." + topic})
}

func list(c *gin.Context, v any, topic string) {
	c.JSON(http.StatusOK, gin.H{"items": v, "event_topic": "erp.ecommerce." + topic})
}
