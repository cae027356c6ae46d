package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskify/backend/internal/config"
	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PoolConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
}

type DatabasePool struct {
	DB     *gorm.DB
	config *PoolConfig
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Driver:          DriverPostgres,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		LogLevel:        logger.Warn,
	}
}

func PoolConfigFrom(cfg *config.Config) *PoolConfig {
	level := logger.Warn
	if cfg.Server.LogLevel == "debug" {
		level = logger.Info
	}
	return &PoolConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.GetDatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        level,
	}
}

func (c *PoolConfig) validate() error {
	if c.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.Driver != DriverPostgres && c.Driver != DriverSQLite {
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 || c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("pool limits must not be negative")
	}
	return nil
}

func NewDatabasePool(cfg *PoolConfig) (*DatabasePool, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	lifetime, idleTime := cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime
	// Every connection to an in-memory SQLite database sees its own empty
	// database, so the single connection must never be recycled.
	if cfg.Driver == DriverSQLite && strings.Contains(cfg.DSN, ":memory:") {
		maxOpen, maxIdle = 1, 1
		lifetime, idleTime = 0, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
	sqlDB.SetConnMaxIdleTime(idleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabasePool{DB: db, config: cfg}, nil
}

// Migrate creates or updates the schema. On Postgres it also creates the GIN
// index backing task search.
func (p *DatabasePool) Migrate() error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	if err := p.DB.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if p.DB.Dialector.Name() == DriverPostgres {
		stmt := "CREATE INDEX IF NOT EXISTS idx_tasks_search ON tasks USING GIN ((" + repositories.TaskSearchVector + "))"
		if err := p.DB.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create search index: %w", err)
		}
	}
	return nil
}

func (p *DatabasePool) Health(ctx context.Context) error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *DatabasePool) Stats() map[string]interface{} {
	if p.DB == nil {
		return map[string]interface{}{"error": "database not initialized"}
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

func (p *DatabasePool) Close() error {
	if p.DB == nil {
		return nil
	}
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
