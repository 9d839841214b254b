package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the account record. Status=false means the account is blocked:
// blocked users fail authentication everywhere, including refresh.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	FullName     string    `gorm:"size:255" json:"full_name"`
	Gender       string    `gorm:"size:16" json:"gender"`
	Role         Role      `gorm:"size:16;not null;default:user" json:"role"`
	Status       bool      `gorm:"not null;default:true" json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
