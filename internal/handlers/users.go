package handlers

import (
	"net/http"

	"taskify/backend/internal/middleware"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService services.UserService
}

type userListQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		userID, err := callerID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		if user, err = h.userService.Get(c.Request.Context(), userID); err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

func (h *UserHandler) List(c *gin.Context) {
	var q userListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}

	page, err := h.userService.List(c.Request.Context(), q.Page, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       page.Users,
		"pagination": pagination(page.Page, page.PageSize, page.Total, page.TotalPages),
	})
}

func (h *UserHandler) Get(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

func (h *UserHandler) Update(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	caller, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var patch services.UserPatch
	if err := bindJSON(c, &patch); err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Update(c.Request.Context(), caller, id, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": user})
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	caller, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.userService.Delete(c.Request.Context(), caller, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User deleted successfully",
	})
}

func pagination(page, limit int, total int64, totalPages int) gin.H {
	return gin.H{
		"page":       page,
		"limit":      limit,
		"totalDocs":  total,
		"totalPages": totalPages,
	}
}
