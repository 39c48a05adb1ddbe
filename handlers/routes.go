package handlers

import (
	"storefront-svc/auth"
	"storefront-svc/middleware"
	"storefront-svc/models"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Auth     *AuthHandler
	Products *ProductHandler
	Orders   *OrderHandler
	Users    *UserHandler
}

// RegisterRoutes mounts every endpoint on router. Catalog reads and checkout
// are public; order and catalog management need a staff token, user
// management an admin token.
func RegisterRoutes(router *gin.Engine, h Handlers, issuer *auth.TokenIssuer) {
	router.GET("/health", HealthCheck)
	router.GET("/metrics", middleware.PrometheusHandler())

	router.POST("/auth/register", h.Auth.Register)
	router.POST("/auth/login", h.Auth.Login)

	router.GET("/products", h.Products.GetProducts)
	router.GET("/products/:id", h.Products.GetProduct)
	router.GET("/products/slug/:slug", h.Products.GetProductBySlug)
	router.POST("/orders", h.Orders.CreateOrder)

	staff := router.Group("/")
	staff.Use(middleware.AuthMiddleware(issuer), middleware.RequireRoles(models.RoleAdmin, models.RoleModerator))
	{
		staff.POST("/products", h.Products.CreateProduct)
		staff.PUT("/products/:id", h.Products.UpdateProduct)
		staff.DELETE("/products/:id", h.Products.DeleteProduct)

		staff.GET("/orders", h.Orders.GetOrders)
		staff.GET("/orders/export", h.Orders.ExportOrders)
		staff.GET("/orders/:orderId", h.Orders.GetOrder)
		staff.POST("/orders/validate-products", h.Orders.ValidateProducts)
		staff.POST("/orders/action", h.Orders.OrderAction)
		staff.POST("/orders/bulk-action", h.Orders.BulkAction)
	}

	admin := router.Group("/users")
	admin.Use(middleware.AuthMiddleware(issuer), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("", h.Users.GetUsers)
		admin.PUT("/:id", h.Users.UpdateUser)
		admin.DELETE("/:id", h.Users.DeleteUser)
	}
}
