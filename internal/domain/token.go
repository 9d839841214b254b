package domain

import "time"

// BlacklistedToken bans one exact access-token string ahead of its natural
// expiry. Rows are purged only once the retention window (>= access TTL) has
// passed, so a banned-but-unexpired token can never resurface.
type BlacklistedToken struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Token         string    `gorm:"size:1024;index" json:"token"`
	BlacklistedAt time.Time `gorm:"index;not null" json:"blacklisted_at"`
}

// ActiveAccessToken indexes every outstanding access token by owner so that
// logout-all can blacklist the lot in one call.
type ActiveAccessToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	AccessToken string    `gorm:"size:1024;uniqueIndex" json:"access_token"`
	ExpiresAt   time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	TokenActionLogin       = "login"
	TokenActionLoginFailed = "login failed"
	TokenActionRefresh     = "refresh"
)

// TokenLog is one append-only audit record for a token action. UserID is nil
// for unauthenticated attempts. Application code never mutates or deletes
// rows; only the retention sweep may remove old ones.
type TokenLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Username  string    `gorm:"size:64" json:"username"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	Action    string    `gorm:"size:64;index" json:"action"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}
