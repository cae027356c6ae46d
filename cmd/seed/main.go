// Command seed creates an admin, a demo user and a handful of demo tasks.
// Running it again leaves existing accounts untouched.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"taskify/backend/internal/config"
	"taskify/backend/internal/database"
	"taskify/backend/internal/logger"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/services"

	"gorm.io/gorm"
)

type account struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

type demoTask struct {
	Title       string
	Description string
	Priority    string
	Status      string
	DueIn       time.Duration
}

var demoTasks = []demoTask{
	{"Plan sprint backlog", "Collect stories for the next two weeks", "high", "in-progress", 48 * time.Hour},
	{"Buy groceries", "Milk, eggs, coffee", "medium", "pending", 24 * time.Hour},
	{"Renew passport", "Book an appointment at the consulate", "high", "pending", 14 * 24 * time.Hour},
	{"Read onboarding docs", "", "low", "completed", 0},
	{"Clean up inbox", "Archive newsletters older than a month", "low", "pending", 0},
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Setup(cfg.Server)

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		return err
	}

	admin := account{"Admin", "User", getEnv("SEED_ADMIN_EMAIL", "admin@taskify.local"), getEnv("SEED_ADMIN_PASSWORD", "Admin123!"), models.RoleAdmin}
	demo := account{"Demo", "User", getEnv("SEED_DEMO_EMAIL", "demo@taskify.local"), getEnv("SEED_DEMO_PASSWORD", "Password123"), models.RoleUser}

	return seed(ctx, pool.DB, cfg.Auth.BCryptCost, time.Now, admin, demo)
}

func seed(ctx context.Context, db *gorm.DB, cost int, now services.Clock, admin, demo account) error {
	users := repositories.NewUserRepository(db)
	userService := services.NewUserService(users, services.NewBcryptHasher(cost), now)
	taskService := services.NewTaskService(repositories.NewTaskRepository(db), nil, now)

	if _, _, err := ensureUser(ctx, users, userService, admin); err != nil {
		return err
	}

	demoUser, created, err := ensureUser(ctx, users, userService, demo)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("demo user exists, skipping tasks", "email", demo.Email)
		return nil
	}

	for _, t := range demoTasks {
		input := services.TaskInput{
			Title:       t.Title,
			Description: t.Description,
			Priority:    t.Priority,
			Status:      t.Status,
		}
		if t.DueIn > 0 {
			due := now().Add(t.DueIn)
			input.DueDate = &due
		}
		if _, err := taskService.Create(ctx, demoUser.ID, input); err != nil {
			return fmt.Errorf("failed to create task %q: %w", t.Title, err)
		}
	}

	slog.Info("seeded demo tasks", "email", demo.Email, "count", len(demoTasks))
	return nil
}

func ensureUser(ctx context.Context, users *repositories.UserRepository, svc *services.UserServiceImpl, a account) (*models.User, bool, error) {
	user, err := users.FindByEmail(ctx, a.Email)
	if err != nil {
		return nil, false, err
	}

	created := false
	if user == nil {
		user, err = svc.Register(ctx, services.RegistrationRequest{
			FirstName: a.FirstName,
			LastName:  a.LastName,
			Email:     a.Email,
			Password:  a.Password,
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to create %s: %w", a.Email, err)
		}
		created = true
	}

	// An admin account that was registered through the API gets promoted.
	if a.Role == models.RoleAdmin && !user.IsAdmin() {
		if user, err = users.Update(ctx, user.ID, map[string]interface{}{"role": a.Role}); err != nil {
			return nil, false, fmt.Errorf("failed to set role for %s: %w", a.Email, err)
		}
	}

	if created {
		slog.Info("created user", "name", user.FullName(), "email", user.Email, "role", user.Role)
	}
	return user, created, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
