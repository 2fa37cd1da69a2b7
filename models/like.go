package models

import "time"

// Subject types a like can attach to.
const (
	SubjectThread = "thread"
	SubjectPost   = "post"
)

// Like records that a user likes a thread or post. The composite unique index
// guarantees at most one row per (subject, user); like counts are derived by
// counting rows, never stored on the liked entity.
type Like struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SubjectType string    `gorm:"size:16;not null;uniqueIndex:idx_like_subject_user" json:"subject_type"`
	SubjectID   uint      `gorm:"not null;uniqueIndex:idx_like_subject_user" json:"subject_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_like_subject_user;index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
