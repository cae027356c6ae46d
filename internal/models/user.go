package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	FirstName   string     `json:"first_name" gorm:"not null"`
	LastName    string     `json:"last_name" gorm:"not null"`
	Email       string     `json:"email" gorm:"uniqueIndex;not null"`
	Password    string     `json:"-" gorm:"not null"`
	Phone       string     `json:"phone"`
	Gender      string     `json:"gender"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Role        string     `json:"role" gorm:"not null;default:'user'"`

	// SessionSecret is the hash of the fingerprint embedded in the only token
	// currently allowed for this user. Empty means no active session.
	SessionSecret     string     `json:"-"`
	PasswordChangedAt *time.Time `json:"-"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		u.ID = id
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

func (u *User) FullName() string {
	if u.FirstName == "" || u.LastName == "" {
		return u.FirstName + u.LastName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) HasRole(roles ...string) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}
