package repositories

import (
	"context"
	"errors"
	"strings"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns nil, nil when no user has the id.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update applies patch in a single UPDATE and returns the fresh row, or nil
// when the user does not exist.
func (r *UserRepository) Update(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.User, error) {
	if len(patch) > 0 {
		result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(patch)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	}
	return r.FindByID(ctx, id)
}

// Delete removes the user and every task they own.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var deleted *models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	users := []models.User{}
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
