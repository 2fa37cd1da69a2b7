package models

import (
	"time"

	"gorm.io/gorm"
)

// Role values stored on User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a forum member. Passwords are stored as bcrypt hashes only.
// PostCount is a denormalized total of active threads and posts authored by the
// user; it is maintained by the counters package, not recomputed per read.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"size:255" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Provider     string    `gorm:"size:32" json:"provider,omitempty"`
	ProviderID   string    `gorm:"size:255" json:"-"`
	AvatarURL    string    `gorm:"size:512" json:"avatar_url"`
	Signature    string    `gorm:"size:255" json:"signature"`
	Role         string    `gorm:"size:16;default:user" json:"role"`
	PostCount    int       `gorm:"default:0" json:"post_count"`
	Reputation   int       `gorm:"default:0" json:"reputation"`
	IsActive     bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// PublicUser is the sanitized shape returned for other users' profiles.
type PublicUser struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url"`
	Signature  string    `json:"signature"`
	Role       string    `json:"role"`
	PostCount  int       `json:"post_count"`
	Reputation int       `json:"reputation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Public strips private fields (email, provider identity) from a user.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		AvatarURL:  u.AvatarURL,
		Signature:  u.Signature,
		Role:       u.Role,
		PostCount:  u.PostCount,
		Reputation: u.Reputation,
		CreatedAt:  u.CreatedAt,
	}
}
