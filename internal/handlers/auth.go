package handlers

import (
	"context"
	"net/http"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// LoginThrottle is satisfied by cache.LoginThrottle.
type LoginThrottle interface {
	Check(ctx context.Context, email string) error
	RecordFailure(ctx context.Context, email string)
	Reset(ctx context.Context, email string)
}

type AuthHandler struct {
	authService services.AuthService
	userService services.UserService
	throttle    LoginThrottle
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService services.AuthService, userService services.UserService, throttle LoginThrottle) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService, throttle: throttle}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegistrationRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User created successfully",
		"data":    user,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()

	if h.throttle != nil {
		if err := h.throttle.Check(ctx, req.Email); err != nil {
			respondError(c, err)
			return
		}
	}

	user, token, err := h.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		if h.throttle != nil && apperror.KindOf(err) == apperror.KindUnauthorized {
			h.throttle.RecordFailure(ctx, req.Email)
		}
		respondError(c, err)
		return
	}

	if h.throttle != nil {
		h.throttle.Reset(ctx, req.Email)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User logged in successfully",
		"data":    user,
		"token":   token,
	})
}

// Logout ends the caller's session; every token issued so far stops working.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Successfully logged out",
	})
}
