package models

import "time"

// Post is a reply inside a thread. ParentPostID optionally references another
// post in the same thread (reply-to only; children are not cascaded on delete).
type Post struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ThreadID     uint       `gorm:"index;not null" json:"thread_id"`
	UserID       uint       `gorm:"index;not null" json:"user_id"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	ParentPostID *uint      `gorm:"index" json:"parent_post_id,omitempty"`
	IsEdited     bool       `gorm:"default:false" json:"is_edited"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	IsActive     bool       `gorm:"default:true;index" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	User User `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`

	// Derived per request, never stored on the row.
	LikeCount int64 `gorm:"-" json:"like_count"`
	HasLiked  bool  `gorm:"-" json:"has_liked"`
}

// PostEdit is an append-only snapshot of a post's content taken just before an
// edit overwrote it. Rows are never updated or deleted.
type PostEdit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    uint      `gorm:"index;not null" json:"post_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
