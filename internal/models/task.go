package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type Task struct {
	ID            uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID        uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Title         string     `json:"title" gorm:"not null"`
	Description   string     `json:"description"`
	Status        string     `json:"status" gorm:"not null;default:'pending'"`
	StatusValue   int        `json:"-" gorm:"not null;default:0"`
	Priority      string     `json:"priority" gorm:"not null"`
	PriorityValue int        `json:"-" gorm:"not null"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	return nil
}

func (t *Task) IsCompleted() bool {
	return t != nil && t.Status == StatusCompleted.String()
}
