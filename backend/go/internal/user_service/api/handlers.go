package api

import (
	"errors"
	"net/http"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/internal/user_service/service"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler 封装了用户相关 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
	log     *logger.Logger
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service) *Handler {
	return &Handler{service: s, log: logger.New("user-api", "", "")}
}

// RegisterRoutes 在给定的 /api/v1 分组上注册认证和用户路由。
func (h *Handler) RegisterRoutes(apiV1 *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	auth := apiV1.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}

	users := apiV1.Group("/users")
	users.Use(authMiddleware)
	{
		users.GET("/me", h.Me)
	}
}

// RegisterRequest 定义了注册请求的 JSON 结构。
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required"`
}

// Register 处理注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.service.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	switch {
	case errors.Is(err, service.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: http.StatusInternalServerError}).Error("注册失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "注册失败，请稍后再试"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "注册成功", "user_id": user.UserID})
}

// LoginRequest 定义了登录请求的 JSON 结构。identifier 可以是邮箱或用户名。
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// Login 处理登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), req.Identifier, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrAccountSuspended):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.WithError(models.ErrorInfo{Message: err.Error(), StatusCode: http.StatusInternalServerError}).Error("登录失败")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "登录失败，请稍后再试"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me 返回当前登录用户的信息。
func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), c.GetString(ContextUserID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "用户不存在"})
		return
	}
	c.JSON(http.StatusOK, user)
}
