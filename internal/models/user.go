package models

import (
	"time"
)

// Role enum
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User model for authentication
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	FirstName    string    `gorm:"column:first_name" json:"firstName"`
	LastName     string    `gorm:"column:last_name" json:"lastName"`
	PhoneNumber  string    `gorm:"column:phone_number" json:"phoneNumber,omitempty"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"default:user" json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
