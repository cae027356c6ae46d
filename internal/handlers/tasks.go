package handlers

import (
	"net/http"

	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func (h *TaskHandler) List(c *gin.Context) {
	owner, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var query services.TaskQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondError(c, bindError(err))
		return
	}

	page, err := h.taskService.List(c.Request.Context(), owner, query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "Tasks fetched successfully",
		"data":       page.Tasks,
		"pagination": pagination(page.Page, page.PageSize, page.Total, page.TotalPages),
	})
}

func (h *TaskHandler) Create(c *gin.Context) {
	owner, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var input services.TaskInput
	if err := bindJSON(c, &input); err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), owner, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Task created successfully",
		"data":    task,
	})
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	owner, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), id, owner)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": task})
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	owner, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var patch services.TaskPatch
	if err := bindJSON(c, &patch); err != nil {
		respondError(c, err)
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), id, owner, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task updated successfully",
		"data":    task,
	})
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	owner, err := callerID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), id, owner); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Task deleted successfully",
	})
}
