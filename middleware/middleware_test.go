package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-svc/auth"
	"storefront-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupAuthRouter(t *testing.T, issuer *auth.TokenIssuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(LoggerMiddleware(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))))

	staff := router.Group("/")
	staff.Use(AuthMiddleware(issuer), RequireRoles(models.RoleAdmin, models.RoleModerator))
	staff.GET("/orders", func(c *gin.Context) {
		caller, _ := auth.CallerFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"caller": caller.ID})
	})
	return router
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := setupAuthRouter(t, auth.NewTokenIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	router := setupAuthRouter(t, auth.NewTokenIssuer("secret", time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestRequireRoles_Forbidden(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	router := setupAuthRouter(t, issuer)
	token, _ := issuer.Issue(&models.User{ID: 3, Role: models.RoleUser})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestRequireRoles_Staff(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	router := setupAuthRouter(t, issuer)
	token, _ := issuer.Issue(&models.User{ID: 3, Role: models.RoleModerator})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Body.String() != `{"caller":3}` {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
}

func TestTimeout_SetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Timeout(time.Second))
	router.GET("/", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected request context to carry a deadline")
	}
}
