package models

import "time"

// Category groups threads. ThreadCount and PostCount are denormalized counts of
// active threads (and of active posts under those threads) and are maintained
// incrementally by the counters package.
type Category struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Slug        string    `gorm:"size:64;index" json:"slug"`
	Description string    `gorm:"size:255" json:"description"`
	Order       int       `gorm:"column:sort_order;default:0" json:"order"`
	ThreadCount int       `gorm:"default:0" json:"thread_count"`
	PostCount   int       `gorm:"default:0" json:"post_count"`
	IsActive    bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
