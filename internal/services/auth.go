package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
)

var (
	ErrNoToken         = apperror.Unauthorized(apperror.ReasonNoToken, "You are not logged in. Please log in to get access.")
	ErrInvalidToken    = apperror.Unauthorized(apperror.ReasonInvalidToken, "Invalid token. Please log in again.")
	ErrTokenExpired    = apperror.Unauthorized(apperror.ReasonTokenExpired, "Your token has expired. Please log in again.")
	ErrSessionExpired  = apperror.Unauthorized(apperror.ReasonSessionExpired, "Your session has expired. Please log in again.")
	ErrPasswordChanged = apperror.Unauthorized(apperror.ReasonPasswordChanged, "User recently changed password. Please log in again.")
	ErrBadCredentials  = apperror.Unauthorized(apperror.ReasonBadCredentials, "Incorrect email or password")
)

// Identity is what a successfully authenticated request carries downstream.
type Identity struct {
	UserID uuid.UUID
	User   *models.User
}

type AuthService interface {
	Authenticate(ctx context.Context, rawToken string) (*Identity, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	Logout(ctx context.Context, userID uuid.UUID) error
}

type AuthServiceImpl struct {
	users  UserStore
	hasher CredentialHasher
	codec  TokenCodec
	now    Clock
}

func NewAuthService(users UserStore, hasher CredentialHasher, codec TokenCodec, now Clock) *AuthServiceImpl {
	if now == nil {
		now = time.Now
	}
	return &AuthServiceImpl{users: users, hasher: hasher, codec: codec, now: now}
}

// Authenticate runs the session guards in a fixed order and stops at the
// first failure: token present, signature, expiry, user exists, session
// fingerprint, password unchanged since issuance.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, rawToken string) (*Identity, error) {
	log := logger.FromContext(ctx)

	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, ErrNoToken
	}

	claims, err := s.codec.Decode(rawToken)
	if err != nil {
		log.Debug("token rejected", "error", err)
		return nil, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if user == nil {
		log.Debug("token rejected", "reason", apperror.ReasonInvalidToken, "user_id", claims.UserID)
		return nil, ErrInvalidToken
	}

	if !s.hasher.Verify(claims.Fingerprint, user.SessionSecret) {
		log.Debug("token rejected", "reason", apperror.ReasonSessionExpired, "user_id", user.ID)
		return nil, ErrSessionExpired
	}

	// Whole seconds on both sides, matching the precision of the iat claim.
	if user.PasswordChangedAt != nil && user.PasswordChangedAt.Unix() > claims.IssuedAt.Unix() {
		log.Debug("token rejected", "reason", apperror.ReasonPasswordChanged, "user_id", user.ID)
		return nil, ErrPasswordChanged
	}

	return &Identity{UserID: user.ID, User: user}, nil
}

// Login replaces the stored session secret, which revokes every token issued
// by an earlier login. Concurrent logins race and the last write wins.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("find user by email: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.Password) {
		return nil, "", ErrBadCredentials
	}

	fingerprint, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}
	digest, err := s.hasher.Hash(fingerprint.String())
	if err != nil {
		return nil, "", err
	}

	updated, err := s.users.Update(ctx, user.ID, map[string]interface{}{
		"session_secret": digest,
		"last_login_at":  s.now(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("store session secret: %w", err)
	}
	if updated == nil {
		return nil, "", ErrBadCredentials
	}

	token, err := s.codec.Issue(updated.ID, fingerprint.String())
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	logger.FromContext(ctx).Info("user logged in", "user_id", updated.ID)
	return updated, token, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, userID uuid.UUID) error {
	updated, err := s.users.Update(ctx, userID, map[string]interface{}{"session_secret": ""})
	if err != nil {
		return fmt.Errorf("clear session secret: %w", err)
	}
	if updated == nil {
		return ErrInvalidToken
	}
	logger.FromContext(ctx).Info("user logged out", "user_id", userID)
	return nil
}
