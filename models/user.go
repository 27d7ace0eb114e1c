package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
	RoleUser  = "user"
)

// User is a marketplace account keyed by its canonical phone number.
// Auth0ID is only set for accounts that sign in to the REST API.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Auth0ID   *string        `gorm:"uniqueIndex" json:"auth0_id,omitempty"` // Auth0 user ID (from 'sub' claim)
	Name      string         `json:"name"`
	Phone     string         `gorm:"uniqueIndex;not null" json:"phone"`
	Role      string         `gorm:"not null;default:'user'" json:"role"` // admin, agent or user
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// CanReviewConversations reports whether the user may read other people's chat logs
func (u User) CanReviewConversations() bool {
	return u.Role == RoleAdmin || u.Role == RoleAgent
}
