package repositories

import (
	"context"
	"errors"
	"strings"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskSearchVector is the weighted document used for Postgres full-text
// search. The GIN index created at migration time must use the same
// expression or the planner will not pick it up.
const TaskSearchVector = "setweight(to_tsvector('english', coalesce(title, '')), 'A') || " +
	"setweight(to_tsvector('english', coalesce(description, '')), 'B')"

// ts_rank weights in {D, C, B, A} order: title counts three times the description.
const taskRankWeights = "'{0.1, 0.2, 0.3333, 1.0}'::float4[]"

var sortColumns = map[string]bool{
	"priority_value": true,
	"status_value":   true,
	"due_date":       true,
}

// TaskFilter always carries an owner. Status and Priority hold canonical enum
// values; MatchNone is set when the caller asked for a value that does not
// exist, which must yield an empty result rather than an unfiltered one.
type TaskFilter struct {
	OwnerID   uuid.UUID
	Status    string
	Priority  string
	Search    string
	MatchNone bool
}

// TaskSort names a sortable column. The zero value means relevance (when
// searching) followed by recency.
type TaskSort struct {
	Column string
	Desc   bool
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Insert(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) Find(ctx context.Context, filter TaskFilter, sort TaskSort, offset, limit int) ([]models.Task, error) {
	tasks := []models.Task{}
	err := r.scoped(ctx, filter).
		Clauses(clause.OrderBy{Expression: r.orderBy(filter, sort)}).
		Offset(offset).
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Count(ctx context.Context, filter TaskFilter) (int64, error) {
	var total int64
	err := r.scoped(ctx, filter).Count(&total).Error
	return total, err
}

func (r *TaskRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateByID writes every patched column in one statement, so an enum and
// its ordinal mirror can never be observed out of step.
func (r *TaskRepository) UpdateByID(ctx context.Context, id uuid.UUID, patch map[string]interface{}) (*models.Task, error) {
	if len(patch) > 0 {
		result := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Updates(patch)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	}
	return r.FindByID(ctx, id)
}

func (r *TaskRepository) DeleteByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := r.FindByID(ctx, id)
	if err != nil || task == nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&models.Task{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) isPostgres() bool {
	return r.db.Dialector.Name() == "postgres"
}

func (r *TaskRepository) scoped(ctx context.Context, filter TaskFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Task{}).Where("user_id = ?", filter.OwnerID)

	if filter.MatchNone {
		query = query.Where("1 = 0")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}

	if term := strings.TrimSpace(filter.Search); term != "" {
		if r.isPostgres() {
			query = query.Where("("+TaskSearchVector+") @@ plainto_tsquery('english', ?)", term)
		} else {
			pattern := likePattern(term)
			query = query.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\')`,
				pattern, pattern)
		}
	}

	return query
}

// orderBy builds the whole ORDER BY as one expression; clause.OrderBy ignores
// its Columns once an Expression is set.
func (r *TaskRepository) orderBy(filter TaskFilter, sort TaskSort) clause.Expr {
	var parts []string
	var vars []interface{}

	if sortColumns[sort.Column] {
		direction := " ASC"
		if sort.Desc {
			direction = " DESC"
		}
		if sort.Column == "due_date" {
			parts = append(parts, "CASE WHEN due_date IS NULL THEN 1 ELSE 0 END")
		}
		parts = append(parts, sort.Column+direction)
	} else if term := strings.TrimSpace(filter.Search); term != "" {
		if r.isPostgres() {
			parts = append(parts, "ts_rank("+taskRankWeights+", "+TaskSearchVector+", plainto_tsquery('english', ?)) DESC")
			vars = append(vars, term)
		} else {
			pattern := likePattern(term)
			parts = append(parts, `(CASE WHEN LOWER(title) LIKE ? ESCAPE '\' THEN 3 ELSE 0 END + `+
				`CASE WHEN LOWER(COALESCE(description, '')) LIKE ? ESCAPE '\' THEN 1 ELSE 0 END) DESC`)
			vars = append(vars, pattern, pattern)
		}
	}

	parts = append(parts, "created_at DESC", "id DESC")
	return clause.Expr{SQL: strings.Join(parts, ", "), Vars: vars, WithoutParentheses: true}
}

func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(term))
	return "%" + escaped + "%"
}
