package models

import "time"

// Thread is a topic opened inside a category. ReplyCount tracks active posts in
// the thread. The LastReply* fields cache the most recent active post; the cache
// is written on post creation and deliberately left stale when that post is
// later soft-deleted.
type Thread struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CategoryID uint   `gorm:"index;not null" json:"category_id"`
	UserID     uint   `gorm:"index;not null" json:"user_id"`
	Title      string `gorm:"size:255;not null" json:"title"`
	Content    string `gorm:"type:text;not null" json:"content"`
	ReplyCount int    `gorm:"default:0" json:"reply_count"`
	Views      int64  `gorm:"default:0" json:"views"`
	IsPinned   bool   `gorm:"default:false" json:"is_pinned"`
	IsLocked   bool   `gorm:"default:false" json:"is_locked"`
	IsActive   bool   `gorm:"default:true;index" json:"is_active"`

	LastReplyUserID   *uint      `json:"last_reply_user_id,omitempty"`
	LastReplyUsername string     `gorm:"size:64" json:"last_reply_username,omitempty"`
	LastReplyAt       *time.Time `json:"last_reply_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`

	// Derived per request, never stored on the row.
	LikeCount int64 `gorm:"-" json:"like_count"`
	HasLiked  bool  `gorm:"-" json:"has_liked"`
}
