package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-svc/cache"
	"storefront-svc/circuitbreaker"
	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type ProductHandler struct {
	products       *store.ProductStore
	orders         *store.OrderStore
	cache          *cache.ProductCache
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewProductHandler(products *store.ProductStore, orders *store.OrderStore, productCache *cache.ProductCache, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		orders:   orders,
		cache:    productCache,
		logger:   logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second,
			circuitbreaker.WithFailurePredicate(func(err error) bool { return !isClientError(err) })),
	}
}

func (h *ProductHandler) GetProducts(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetProducts")
	defer span.End()

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	var products []*models.Product
	err := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		products, err = h.products.List(ctx, c.Query("search"), limit, offset)
		return err
	})
	if err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Product not found")
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(products)))
	c.JSON(http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	product, hit, err := h.cache.Get(ctx, id, func(ctx context.Context) (*models.Product, error) {
		var p *models.Product
		err := h.circuitBreaker.Execute(ctx, func() error {
			var err error
			p, err = h.products.Get(ctx, id)
			return err
		})
		return p, err
	})
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if err != nil {
		if err == circuitbreaker.ErrCircuitOpen {
			span.SetAttributes(attribute.String("circuit.state", "open"))
		}
		respondError(c, h.logger, err, "Product not found")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProductBySlug(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "GetProductBySlug")
	defer span.End()

	slug := c.Param("slug")
	span.SetAttributes(attribute.String("product.slug", slug))

	var product *models.Product
	err := h.circuitBreaker.Execute(ctx, func() error {
		var err error
		product, err = h.products.GetBySlug(ctx, slug)
		return err
	})
	if err != nil {
		respondError(c, h.logger, err, "Product not found")
		return
	}

	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "CreateProduct")
	defer span.End()

	var req models.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := req.ToProduct()
	if err := h.products.Create(ctx, product); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Product not found")
		return
	}

	span.SetAttributes(attribute.String("product.id", product.ID))
	h.logger.Info("Product created",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.String("product_id", product.ID),
		zap.String("slug", product.Slug),
	)
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "UpdateProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	var req models.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := req.ToProduct()
	product.ID = id
	if err := h.products.Update(ctx, product); err != nil {
		span.RecordError(err)
		respondError(c, h.logger, err, "Product not found")
		return
	}

	h.cache.Invalidate(ctx, id)
	h.logger.Info("Product updated", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.String("product_id", id))
	c.JSON(http.StatusOK, product)
}

// DeleteProduct refuses while pending orders still reference the product,
// since accepting them later would need its stock.
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	ctx, span := otel.Tracer("storefront-service").Start(c.Request.Context(), "DeleteProduct")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("product.id", id))

	open, err := h.orders.CountOpenByProduct(ctx, id)
	if err != nil {
		respondError(c, h.logger, err, "Product not found")
		return
	}
	if open > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Product is referenced by open orders", "open_orders": open})
		return
	}

	if err := h.products.Delete(ctx, id); err != nil {
		respondError(c, h.logger, err, "Product not found")
		return
	}

	h.cache.Invalidate(ctx, id)
	h.logger.Info("Product deleted", zap.String("trace_id", middleware.GetTraceID(ctx)), zap.String("product_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
