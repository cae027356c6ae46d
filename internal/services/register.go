package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/models"

	"gorm.io/gorm"
)

var errEmailTaken = apperror.Conflict("A user with this email already exists")

type RegistrationRequest struct {
	FirstName   string     `json:"first_name" binding:"required,min=1,max=50"`
	LastName    string     `json:"last_name" binding:"required,min=1,max=50"`
	Email       string     `json:"email" binding:"required,email"`
	Password    string     `json:"password" binding:"required,min=6"`
	Phone       string     `json:"phone,omitempty" binding:"max=30"`
	Gender      string     `json:"gender,omitempty" binding:"omitempty,oneof=male female other"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// Register creates a regular user. Roles are never taken from the request.
func (s *UserServiceImpl) Register(ctx context.Context, req RegistrationRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, apperror.Input("Email is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, errEmailTaken
	}

	hashedPassword, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       email,
		Password:    hashedPassword,
		Phone:       strings.TrimSpace(req.Phone),
		Gender:      strings.ToLower(strings.TrimSpace(req.Gender)),
		DateOfBirth: req.DateOfBirth,
		Role:        models.RoleUser,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
