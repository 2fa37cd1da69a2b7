package counters

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/models"
)

// Reconciler recomputes every denormalized counter from source-of-truth COUNT
// queries over active rows. It repairs drift left behind by failed
// compensation steps and by the accepted thread-delete asymmetry (child posts
// of a deleted thread stay out of no one's counters until a recount).
//
// Recount rules: a post contributes only while both the post and its parent
// thread are active; a thread contributes while it is active.
type Reconciler struct {
	db      *gorm.DB
	limiter *rate.Limiter
}

// NewReconciler creates a Reconciler pacing its recount queries at perSecond.
func NewReconciler(db *gorm.DB, perSecond int) *Reconciler {
	if perSecond <= 0 {
		perSecond = 20
	}
	return &Reconciler{
		db:      db,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Report summarizes a reconciliation pass.
type Report struct {
	CategoriesChecked int `json:"categories_checked"`
	CategoriesFixed   int `json:"categories_fixed"`
	ThreadsChecked    int `json:"threads_checked"`
	ThreadsFixed      int `json:"threads_fixed"`
	UsersChecked      int `json:"users_checked"`
	UsersFixed        int `json:"users_fixed"`
}

// ReconcileAll recounts categories, threads and users. It keeps going on
// per-row failures and returns the first error encountered, if any, together
// with the work it managed to do.
func (r *Reconciler) ReconcileAll(ctx context.Context) (Report, error) {
	var report Report
	var firstErr error

	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(r.reconcileCategories(ctx, &report))
	keep(r.reconcileThreads(ctx, &report))
	keep(r.reconcileUsers(ctx, &report))
	return report, firstErr
}

func (r *Reconciler) reconcileCategories(ctx context.Context, report *Report) error {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Find(&categories).Error; err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	for i := range categories {
		c := &categories[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		report.CategoriesChecked++

		var threads int64
		if err := r.db.WithContext(ctx).Model(&models.Thread{}).
			Where("category_id = ? AND is_active = ?", c.ID, true).
			Count(&threads).Error; err != nil {
			return fmt.Errorf("recount category %d threads: %w", c.ID, err)
		}
		var posts int64
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Joins("JOIN threads ON threads.id = posts.thread_id").
			Where("threads.category_id = ? AND threads.is_active = ? AND posts.is_active = ?", c.ID, true, true).
			Count(&posts).Error; err != nil {
			return fmt.Errorf("recount category %d posts: %w", c.ID, err)
		}

		if int64(c.ThreadCount) == threads && int64(c.PostCount) == posts {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", c.ID).
			UpdateColumns(map[string]interface{}{
				"thread_count": threads,
				"post_count":   posts,
			}).Error; err != nil {
			return fmt.Errorf("repair category %d: %w", c.ID, err)
		}
		report.CategoriesFixed++
	}
	return nil
}

func (r *Reconciler) reconcileThreads(ctx context.Context, report *Report) error {
	var threads []models.Thread
	if err := r.db.WithContext(ctx).Select("id", "reply_count").Find(&threads).Error; err != nil {
		return fmt.Errorf("load threads: %w", err)
	}
	for i := range threads {
		t := &threads[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		report.ThreadsChecked++

		var replies int64
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Where("thread_id = ? AND is_active = ?", t.ID, true).
			Count(&replies).Error; err != nil {
			return fmt.Errorf("recount thread %d replies: %w", t.ID, err)
		}
		if int64(t.ReplyCount) == replies {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&models.Thread{}).Where("id = ?", t.ID).
			UpdateColumn("reply_count", replies).Error; err != nil {
			return fmt.Errorf("repair thread %d: %w", t.ID, err)
		}
		report.ThreadsFixed++
	}
	return nil
}

func (r *Reconciler) reconcileUsers(ctx context.Context, report *Report) error {
	var users []models.User
	if err := r.db.WithContext(ctx).Select("id", "post_count").Find(&users).Error; err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for i := range users {
		u := &users[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		report.UsersChecked++

		var threads int64
		if err := r.db.WithContext(ctx).Model(&models.Thread{}).
			Where("user_id = ? AND is_active = ?", u.ID, true).
			Count(&threads).Error; err != nil {
			return fmt.Errorf("recount user %d threads: %w", u.ID, err)
		}
		var posts int64
		if err := r.db.WithContext(ctx).Model(&models.Post{}).
			Joins("JOIN threads ON threads.id = posts.thread_id").
			Where("posts.user_id = ? AND posts.is_active = ? AND threads.is_active = ?", u.ID, true, true).
			Count(&posts).Error; err != nil {
			return fmt.Errorf("recount user %d posts: %w", u.ID, err)
		}

		total := threads + posts
		if int64(u.PostCount) == total {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).
			UpdateColumn("post_count", total).Error; err != nil {
			return fmt.Errorf("repair user %d: %w", u.ID, err)
		}
		report.UsersFixed++
	}
	return nil
}

// StartPeriodic launches a background goroutine running ReconcileAll on the
// given interval. Best-effort: failures are logged by the caller-provided
// logf and the loop keeps going.
func (r *Reconciler) StartPeriodic(interval time.Duration, logf func(format string, args ...interface{})) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			report, err := r.ReconcileAll(context.Background())
			if err != nil {
				logf("counter reconciliation failed: %v", err)
				continue
			}
			if report.CategoriesFixed+report.ThreadsFixed+report.UsersFixed > 0 {
				logf("counter reconciliation repaired drift: %+v", report)
			}
		}
	}()
}
