package handlers

import (
	"net/http"
	"strconv"

	"storefront-svc/middleware"
	"storefront-svc/models"
	"storefront-svc/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	users  *store.UserStore
	logger *zap.Logger
}

func NewUserHandler(users *store.UserStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) GetUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "User not found")
		return
	}
	c.JSON(http.StatusOK, users)
}

func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return 0, false
	}
	return id, true
}

// UpdateUser changes name, role or active flag. Admins cannot demote or
// deactivate themselves.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": gin.H{"role": "Role must be one of admin, moderator, user"}})
		return
	}

	caller, _ := middleware.GetCaller(c)
	if caller.ID == id {
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot modify your own account"})
		return
	}

	user, err := h.users.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err, "User not found")
		return
	}

	h.logger.Info("User updated",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.Int64("user_id", id),
		zap.Int64("actor_id", caller.ID),
	)
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	caller, _ := middleware.GetCaller(c)
	if caller.ID == id {
		c.JSON(http.StatusForbidden, gin.H{"error": "You cannot delete your own account"})
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "User not found")
		return
	}

	h.logger.Info("User deleted",
		zap.String("trace_id", middleware.GetTraceID(c.Request.Context())),
		zap.Int64("user_id", id),
		zap.Int64("actor_id", caller.ID),
	)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
