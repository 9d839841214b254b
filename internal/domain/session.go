package domain

import "time"

// Session is one refresh-token-backed login session. The refresh token itself
// is an opaque random string handed to the client in an HttpOnly cookie; only
// its peppered HMAC is stored. Revocation is monotonic: once Revoked flips to
// true no code path sets it back.
type Session struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index;not null" json:"user_id"`
	RefreshTokenHash string    `gorm:"size:128;uniqueIndex;not null" json:"-"`
	IP               string    `gorm:"size:64" json:"ip"`
	UserAgent        string    `gorm:"size:512" json:"user_agent"`
	ExpiresAt        time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked          bool      `gorm:"not null;default:false;index" json:"revoked"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
