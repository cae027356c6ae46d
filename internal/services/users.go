package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UserPatch struct {
	FirstName   *string    `json:"first_name" binding:"omitempty,min=1,max=50"`
	LastName    *string    `json:"last_name" binding:"omitempty,min=1,max=50"`
	Email       *string    `json:"email" binding:"omitempty,email"`
	Password    *string    `json:"password" binding:"omitempty,min=6"`
	Phone       *string    `json:"phone" binding:"omitempty,max=30"`
	Gender      *string    `json:"gender" binding:"omitempty,oneof=male female other"`
	DateOfBirth *time.Time `json:"date_of_birth"`
}

type UserPage struct {
	Users      []models.User
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
}

type UserService interface {
	Register(ctx context.Context, req RegistrationRequest) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, page, pageSize int) (*UserPage, error)
	Update(ctx context.Context, callerID, id uuid.UUID, patch UserPatch) (*models.User, error)
	Delete(ctx context.Context, callerID, id uuid.UUID) error
}

type UserServiceImpl struct {
	users  UserStore
	hasher CredentialHasher
	now    Clock
}

func NewUserService(users UserStore, hasher CredentialHasher, now Clock) *UserServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &UserServiceImpl{users: users, hasher: hasher, now: now}
}

func (s *UserServiceImpl) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, apperror.NotFound("No user found with that ID")
	}
	return user, nil
}

func (s *UserServiceImpl) List(ctx context.Context, page, pageSize int) (*UserPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	users, total, err := s.users.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return &UserPage{
		Users:      users,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// Update only lets callers change their own account. A new password is hashed
// and stamped with password_changed_at in the same statement, which kills
// every token issued before it.
func (s *UserServiceImpl) Update(ctx context.Context, callerID, id uuid.UUID, patch UserPatch) (*models.User, error) {
	if callerID != id {
		return nil, apperror.Forbidden("You can only update your own account")
	}

	changes := map[string]interface{}{}
	if patch.FirstName != nil {
		changes["first_name"] = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		changes["last_name"] = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		changes["phone"] = strings.TrimSpace(*patch.Phone)
	}
	if patch.Gender != nil {
		changes["gender"] = strings.ToLower(strings.TrimSpace(*patch.Gender))
	}
	if patch.DateOfBirth != nil {
		changes["date_of_birth"] = *patch.DateOfBirth
	}

	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		owner, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if owner != nil && owner.ID != id {
			return nil, errEmailTaken
		}
		changes["email"] = email
	}

	if patch.Password != nil {
		hashed, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, err
		}
		changes["password"] = hashed
		changes["password_changed_at"] = s.now()
	}

	user, err := s.users.Update(ctx, id, changes)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if user == nil {
		return nil, apperror.NotFound("No user found with that ID")
	}
	return user, nil
}

func (s *UserServiceImpl) Delete(ctx context.Context, callerID, id uuid.UUID) error {
	if callerID != id {
		return apperror.Forbidden("You can only delete your own account")
	}

	deleted, err := s.users.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if deleted == nil {
		return apperror.NotFound("No user found with that ID")
	}
	return nil
}
