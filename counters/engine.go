// Package counters keeps the denormalized counter fields on users, categories
// and threads consistent with the set of active rows, and owns the like store.
//
// Every mutation event maps to a fixed set of single-row atomic increments,
// issued in a fixed order only after the primary row has been committed by the
// caller. There is no cross-table transaction and no retry: a failed step
// aborts the remaining steps, leaving the primary mutation durable and the
// counter drifted until the reconciler repairs it.
package counters

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/forumkit/forumkit/models"
)

// Engine applies compensating counter updates for entity mutation events.
type Engine struct {
	db *gorm.DB
}

// NewEngine creates an Engine bound to the given database handle.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// incr applies a single-row atomic increment of column by delta.
func (e *Engine) incr(model interface{}, id uint, column string, delta int) error {
	res := e.db.Model(model).Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("increment %T.%s by %d: %w", model, column, delta, res.Error)
	}
	return nil
}

// ThreadCreated compensates for a newly committed thread: the category gains a
// thread and the author gains an authored item.
func (e *Engine) ThreadCreated(t *models.Thread) error {
	if err := e.incr(&models.Category{}, t.CategoryID, "thread_count", 1); err != nil {
		return err
	}
	return e.incr(&models.User{}, t.UserID, "post_count", 1)
}

// ThreadDeleted compensates for a thread soft-delete. Replies under the thread
// are deliberately not cascaded out of Category.post_count or the reply
// authors' post_count; the reconciler repairs that drift.
func (e *Engine) ThreadDeleted(t *models.Thread) error {
	if err := e.incr(&models.Category{}, t.CategoryID, "thread_count", -1); err != nil {
		return err
	}
	return e.incr(&models.User{}, t.UserID, "post_count", -1)
}

// PostCreated compensates for a newly committed post: the thread gains a reply
// and refreshes its last-reply cache, the category gains a post and the author
// gains an authored item.
func (e *Engine) PostCreated(p *models.Post, t *models.Thread, authorUsername string) error {
	now := time.Now()
	res := e.db.Model(&models.Thread{}).Where("id = ?", p.ThreadID).UpdateColumns(map[string]interface{}{
		"reply_count":         gorm.Expr("reply_count + ?", 1),
		"last_reply_user_id":  p.UserID,
		"last_reply_username": authorUsername,
		"last_reply_at":       now,
	})
	if res.Error != nil {
		return fmt.Errorf("increment thread reply_count: %w", res.Error)
	}
	if err := e.incr(&models.Category{}, t.CategoryID, "post_count", 1); err != nil {
		return err
	}
	return e.incr(&models.User{}, p.UserID, "post_count", 1)
}

// PostDeleted compensates for a post soft-delete. The thread's last-reply
// cache is not recomputed and may go stale.
func (e *Engine) PostDeleted(p *models.Post, t *models.Thread) error {
	if err := e.incr(&models.Thread{}, p.ThreadID, "reply_count", -1); err != nil {
		return err
	}
	if err := e.incr(&models.Category{}, t.CategoryID, "post_count", -1); err != nil {
		return err
	}
	return e.incr(&models.User{}, p.UserID, "post_count", -1)
}

// ToggleLike flips the (subject, user) like state: absent rows are inserted,
// present rows are removed. The subject author's reputation follows the flip.
// Two concurrent toggles by the same user race to an arbitrary final state;
// the unique index keeps at most one row either way.
func (e *Engine) ToggleLike(subjectType string, subjectID, authorID, userID uint) (liked bool, err error) {
	res := e.db.Where("subject_type = ? AND subject_id = ? AND user_id = ?",
		subjectType, subjectID, userID).Delete(&models.Like{})
	if res.Error != nil {
		return false, fmt.Errorf("remove like: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		if err := e.incr(&models.User{}, authorID, "reputation", -1); err != nil {
			return false, err
		}
		return false, nil
	}

	like := models.Like{SubjectType: subjectType, SubjectID: subjectID, UserID: userID}
	if err := e.db.Create(&like).Error; err != nil {
		return false, fmt.Errorf("insert like: %w", err)
	}
	if err := e.incr(&models.User{}, authorID, "reputation", 1); err != nil {
		return true, err
	}
	return true, nil
}

// LikeCount derives the like total for one subject from the like store.
func (e *Engine) LikeCount(subjectType string, subjectID uint) (int64, error) {
	var n int64
	err := e.db.Model(&models.Like{}).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Count(&n).Error
	return n, err
}

// HasLiked reports whether the user currently likes the subject.
func (e *Engine) HasLiked(subjectType string, subjectID, userID uint) (bool, error) {
	var n int64
	err := e.db.Model(&models.Like{}).
		Where("subject_type = ? AND subject_id = ? AND user_id = ?", subjectType, subjectID, userID).
		Count(&n).Error
	return n > 0, err
}

// LikeCounts derives like totals for a batch of subjects in one query.
func (e *Engine) LikeCounts(subjectType string, subjectIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(subjectIDs))
	if len(subjectIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		SubjectID uint
		N         int64
	}
	err := e.db.Model(&models.Like{}).
		Select("subject_id, COUNT(*) AS n").
		Where("subject_type = ? AND subject_id IN ?", subjectType, subjectIDs).
		Group("subject_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		counts[r.SubjectID] = r.N
	}
	return counts, nil
}

// LikedSet returns the subset of subjectIDs the user currently likes.
func (e *Engine) LikedSet(subjectType string, subjectIDs []uint, userID uint) (map[uint]bool, error) {
	liked := make(map[uint]bool, len(subjectIDs))
	if len(subjectIDs) == 0 || userID == 0 {
		return liked, nil
	}
	var ids []uint
	err := e.db.Model(&models.Like{}).
		Where("subject_type = ? AND user_id = ? AND subject_id IN ?", subjectType, userID, subjectIDs).
		Pluck("subject_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = true
	}
	return liked, nil
}
