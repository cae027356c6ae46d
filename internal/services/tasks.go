package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

var sortKeys = map[string]string{
	"priority": "priority_value",
	"status":   "status_value",
	"duedate":  "due_date",
	"due_date": "due_date",
}

// TaskQuery holds list parameters exactly as they arrive from the request.
type TaskQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"limit"`
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Search   string `form:"search"`
	Sort     string `form:"sort"`
	Order    string `form:"order"`
}

type TaskInput struct {
	Title       string     `json:"title" binding:"required,min=3,max=100"`
	Description string     `json:"description" binding:"max=500"`
	Priority    string     `json:"priority" binding:"required"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"due_date"`
}

type TaskPatch struct {
	Title       *string    `json:"title" binding:"omitempty,min=3,max=100"`
	Description *string    `json:"description" binding:"omitempty,max=500"`
	Priority    *string    `json:"priority"`
	Status      *string    `json:"status"`
	DueDate     NullTime   `json:"due_date"`
}

// NullTime tells an absent field apart from an explicit null. A PATCH with
// "due_date": null clears the due date; leaving the field out keeps it.
type NullTime struct {
	Set  bool
	Time *time.Time
}

func SetDueDate(t time.Time) NullTime {
	return NullTime{Set: true, Time: &t}
}

func (n *NullTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Time = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	n.Time = &t
	return nil
}

type TaskPage struct {
	Tasks      []models.Task
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

// ReminderScheduler is notified when a task's due date is set or cleared.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, task *models.Task) error
	CancelReminder(ctx context.Context, taskID uuid.UUID) error
}

type TaskService interface {
	List(ctx context.Context, ownerID uuid.UUID, query TaskQuery) (*TaskPage, error)
	Create(ctx context.Context, ownerID uuid.UUID, input TaskInput) (*models.Task, error)
	Get(ctx context.Context, taskID, ownerID uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, taskID, ownerID uuid.UUID, patch TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, taskID, ownerID uuid.UUID) error
}

type TaskServiceImpl struct {
	tasks     TaskStore
	reminders ReminderScheduler
	now       Clock
}

// NewTaskService accepts a nil scheduler when reminders are disabled.
func NewTaskService(tasks TaskStore, reminders ReminderScheduler, now Clock) *TaskServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &TaskServiceImpl{tasks: tasks, reminders: reminders, now: now}
}

func (s *TaskServiceImpl) List(ctx context.Context, ownerID uuid.UUID, query TaskQuery) (*TaskPage, error) {
	page, pageSize := normalizePage(query.Page, query.PageSize)

	sort, err := parseTaskSort(query.Sort, query.Order)
	if err != nil {
		return nil, err
	}

	filter := repositories.TaskFilter{
		OwnerID: ownerID,
		Search:  strings.TrimSpace(query.Search),
	}
	if query.Status != "" {
		if status, ok := models.Normalize(query.Status, models.EnumStatus); ok {
			filter.Status = status
		} else {
			filter.MatchNone = true
		}
	}
	if query.Priority != "" {
		if priority, ok := models.Normalize(query.Priority, models.EnumPriority); ok {
			filter.Priority = priority
		} else {
			filter.MatchNone = true
		}
	}

	total, err := s.tasks.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	tasks := []models.Task{}
	offset := (page - 1) * pageSize
	if int64(offset) < total {
		tasks, err = s.tasks.Find(ctx, filter, sort, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("find tasks: %w", err)
		}
	}

	return &TaskPage{
		Tasks:      tasks,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func parseTaskSort(key, order string) (repositories.TaskSort, error) {
	var sort repositories.TaskSort

	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
		sort.Desc = true
	case "asc":
	default:
		return sort, apperror.Input("order must be one of: asc, desc")
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return repositories.TaskSort{}, nil
	}
	column, ok := sortKeys[key]
	if !ok {
		return sort, apperror.Input("sort must be one of: priority, status, dueDate")
	}
	sort.Column = column
	return sort, nil
}

// Create always assigns ownerID as the owner and derives both ordinal mirrors
// from the enum tables.
func (s *TaskServiceImpl) Create(ctx context.Context, ownerID uuid.UUID, input TaskInput) (*models.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperror.Input("A task must have a title")
	}

	priority, ok := models.ParsePriority(input.Priority)
	if !ok {
		return nil, apperror.Input("priority must be one of: " + strings.Join(models.PriorityValues(), ", "))
	}

	status := models.StatusPending
	if input.Status != "" {
		if status, ok = models.ParseStatus(input.Status); !ok {
			return nil, apperror.Input("status must be one of: " + strings.Join(models.StatusValues(), ", "))
		}
	}

	if err := s.checkDueDate(input.DueDate); err != nil {
		return nil, err
	}

	task := &models.Task{
		UserID:        ownerID,
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		Status:        status.String(),
		StatusValue:   status.Ordinal(),
		Priority:      priority.String(),
		PriorityValue: priority.Ordinal(),
		DueDate:       input.DueDate,
	}
	if err := s.tasks.Insert(ctx, task); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	if task.DueDate != nil && !task.IsCompleted() {
		s.schedule(ctx, task)
	}
	return task, nil
}

func (s *TaskServiceImpl) Get(ctx context.Context, taskID, ownerID uuid.UUID) (*models.Task, error) {
	return s.owned(ctx, taskID, ownerID)
}

// Update checks existence and ownership before writing anything. Enum values
// and their ordinal mirrors are written in the same statement.
func (s *TaskServiceImpl) Update(ctx context.Context, taskID, ownerID uuid.UUID, patch TaskPatch) (*models.Task, error) {
	changes := map[string]interface{}{}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, apperror.Input("A task must have a title")
		}
		changes["title"] = title
	}
	if patch.Description != nil {
		changes["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		priority, ok := models.ParsePriority(*patch.Priority)
		if !ok {
			return nil, apperror.Input("priority must be one of: " + strings.Join(models.PriorityValues(), ", "))
		}
		changes["priority"] = priority.String()
		changes["priority_value"] = priority.Ordinal()
	}
	if patch.Status != nil {
		status, ok := models.ParseStatus(*patch.Status)
		if !ok {
			return nil, apperror.Input("status must be one of: " + strings.Join(models.StatusValues(), ", "))
		}
		changes["status"] = status.String()
		changes["status_value"] = status.Ordinal()
	}
	if patch.DueDate.Set {
		if patch.DueDate.Time == nil {
			changes["due_date"] = nil
		} else {
			if err := s.checkDueDate(patch.DueDate.Time); err != nil {
				return nil, err
			}
			changes["due_date"] = *patch.DueDate.Time
		}
	}

	if _, err := s.owned(ctx, taskID, ownerID); err != nil {
		return nil, err
	}

	task, err := s.tasks.UpdateByID(ctx, taskID, changes)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if task == nil {
		return nil, apperror.NotFound("No task found with that ID")
	}

	// A reopened task with a due date gets its reminder back.
	if patch.Status != nil || patch.DueDate.Set {
		if task.IsCompleted() || task.DueDate == nil {
			s.cancel(ctx, task.ID)
		} else {
			s.schedule(ctx, task)
		}
	}
	return task, nil
}

func (s *TaskServiceImpl) Delete(ctx context.Context, taskID, ownerID uuid.UUID) error {
	if _, err := s.owned(ctx, taskID, ownerID); err != nil {
		return err
	}

	deleted, err := s.tasks.DeleteByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if deleted == nil {
		return apperror.NotFound("No task found with that ID")
	}

	if deleted.DueDate != nil {
		s.cancel(ctx, deleted.ID)
	}
	return nil
}

// owned reports NotFound before Forbidden: a task that does not exist is
// missing for everyone, a task that exists belongs to exactly one owner.
func (s *TaskServiceImpl) owned(ctx context.Context, taskID, ownerID uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	if task == nil {
		return nil, apperror.NotFound("No task found with that ID")
	}
	if task.UserID != ownerID {
		return nil, apperror.Forbidden("You do not have permission to access this task")
	}
	return task, nil
}

func (s *TaskServiceImpl) checkDueDate(due *time.Time) error {
	if due != nil && !due.After(s.now()) {
		return apperror.Input("due_date must be in the future")
	}
	return nil
}

// Reminder failures never fail the request; the task is already stored.
func (s *TaskServiceImpl) schedule(ctx context.Context, task *models.Task) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.ScheduleReminder(ctx, task); err != nil {
		logger.FromContext(ctx).Warn("failed to schedule task reminder", "task_id", task.ID, "error", err)
	}
}

func (s *TaskServiceImpl) cancel(ctx context.Context, taskID uuid.UUID) {
	if s.reminders == nil {
		return
	}
	if err := s.reminders.CancelReminder(ctx, taskID); err != nil {
		logger.FromContext(ctx).Warn("failed to cancel task reminder", "task_id", taskID, "error", err)
	}
}
