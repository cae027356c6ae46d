package services

import (
	"context"

	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"github.com/gofrs/uuid"
)

// UserStore lookups return nil, nil for a missing user.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)
}

type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) error
	Find(ctx context.Context, filter repositories.TaskFilter, sort repositories.TaskSort, offset, limit int) ([]models.Task, error)
	Count(ctx context.Context, filter repositories.TaskFilter) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	UpdateByID(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.Task, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

var (
	_ UserStore = (*repositories.UserRepository)(nil)
	_ TaskStore = (*repositories.TaskRepository)(nil)
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
