package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskify/backend/internal/config"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "test-secret-key-at-least-16"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Task{}))
	return db
}

// env wires the services against a fresh in-memory database.
type env struct {
	clock  *fakeClock
	hasher *services.BcryptHasher
	codec  *services.JWTCodec
	users  *repositories.UserRepository
	tasks  *repositories.TaskRepository
	auth   *services.AuthServiceImpl
	user   *services.UserServiceImpl
	task   *services.TaskServiceImpl
	remind *recordingScheduler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := newTestDB(t)
	clock := newFakeClock()
	hasher := services.NewBcryptHasher(bcrypt.MinCost)
	codec := services.NewJWTCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour}, clock.Now)
	users := repositories.NewUserRepository(db)
	tasks := repositories.NewTaskRepository(db)
	remind := &recordingScheduler{}

	return &env{
		clock:  clock,
		hasher: hasher,
		codec:  codec,
		users:  users,
		tasks:  tasks,
		auth:   services.NewAuthService(users, hasher, codec, clock.Now),
		user:   services.NewUserService(users, hasher, clock.Now),
		task:   services.NewTaskService(tasks, remind, clock.Now),
		remind: remind,
	}
}

func (e *env) register(t *testing.T, email, password string) *models.User {
	t.Helper()
	user, err := e.user.Register(context.Background(), services.RegistrationRequest{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  password,
	})
	require.NoError(t, err)
	return user
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
	cancelled []uuid.UUID
}

func (r *recordingScheduler) ScheduleReminder(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, task.ID)
	return nil
}

func (r *recordingScheduler) CancelReminder(_ context.Context, taskID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, taskID)
	return nil
}
