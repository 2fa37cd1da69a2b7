package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

// ThreadController manages thread CRUD, likes and moderation flags.
type ThreadController struct {
	db     *gorm.DB
	engine *counters.Engine
}

// NewThreadController creates a new ThreadController instance.
func NewThreadController(db *gorm.DB, engine *counters.Engine) *ThreadController {
	return &ThreadController{db: db, engine: engine}
}

const threadListCachePrefix = "cache:threads:list:"

// threadOrder maps the sort query key onto an ORDER BY clause. Ties break on
// creation time descending.
func threadOrder(sort string) string {
	switch sort {
	case "popular":
		return "views DESC, created_at DESC"
	case "replies":
		return "reply_count DESC, created_at DESC"
	default: // recent: pinned first, then latest activity
		return "is_pinned DESC, COALESCE(last_reply_at, created_at) DESC, created_at DESC"
	}
}

// attachLikes fills the derived like_count/has_liked fields on a thread batch.
func (t *ThreadController) attachLikes(threads []models.Thread, actorID uint) error {
	ids := make([]uint, len(threads))
	for i := range threads {
		ids[i] = threads[i].ID
	}
	counts, err := t.engine.LikeCounts(models.SubjectThread, ids)
	if err != nil {
		return err
	}
	liked, err := t.engine.LikedSet(models.SubjectThread, ids, actorID)
	if err != nil {
		return err
	}
	for i := range threads {
		threads[i].LikeCount = counts[threads[i].ID]
		threads[i].HasLiked = liked[threads[i].ID]
	}
	return nil
}

// ListThreads returns paginated active threads, optionally scoped to a
// category, sorted by recent|popular|replies, with substring search.
func (t *ThreadController) ListThreads(ctx *gin.Context) {
	page, limit := utils.ParsePageQuery(ctx.Query("page"), ctx.Query("limit"))
	sort := ctx.DefaultQuery("sort", "recent")
	search := strings.TrimSpace(ctx.Query("search"))
	categoryID := strings.TrimSpace(ctx.Param("id"))
	a := currentActor(ctx)

	// Cache anonymous, unsearched pages only, to keep the key space bounded.
	cacheKey := ""
	if a.anonymous() && search == "" {
		cacheKey = fmt.Sprintf("%scat=%s:sort=%s:page=%d:limit=%d", threadListCachePrefix, categoryID, sort, page, limit)
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	query := t.db.Model(&models.Thread{}).Where("threads.is_active = ?", true)
	if categoryID != "" {
		var category models.Category
		if err := t.db.Where("is_active = ?", true).First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.WriteError(ctx, utils.ErrNotFound("category not found"))
				return
			}
			utils.WriteError(ctx, utils.ErrInternal("failed to load category", err))
			return
		}
		query = query.Where("category_id = ?", category.ID)
	}
	if search != "" {
		query = query.Where("title LIKE ? OR content LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count threads", err))
		return
	}

	var threads []models.Thread
	if err := query.Preload("User").
		Order(threadOrder(sort)).
		Offset(utils.Offset(page, limit)).Limit(limit).
		Find(&threads).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list threads", err))
		return
	}

	if err := t.attachLikes(threads, a.ID); err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load likes", err))
		return
	}

	payload := gin.H{
		"threads":    threads,
		"pagination": utils.Paginate(page, limit, total),
	}
	if cacheKey != "" {
		utils.CacheSetEnvelope(cacheKey, payload, time.Hour)
	}
	utils.Success(ctx, payload)
}

// GetThread returns one active thread and bumps its view counter.
func (t *ThreadController) GetThread(ctx *gin.Context) {
	var thread models.Thread
	if err := t.db.Preload("User").Where("is_active = ?", true).First(&thread, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	// Views are advisory; the increment is fire-and-forget.
	_ = t.db.Model(&models.Thread{}).Where("id = ?", thread.ID).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
	thread.Views++

	a := currentActor(ctx)
	count, err := t.engine.LikeCount(models.SubjectThread, thread.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load likes", err))
		return
	}
	thread.LikeCount = count
	if !a.anonymous() {
		liked, err := t.engine.HasLiked(models.SubjectThread, thread.ID, a.ID)
		if err != nil {
			utils.WriteError(ctx, utils.ErrInternal("failed to load likes", err))
			return
		}
		thread.HasLiked = liked
	}

	utils.Success(ctx, gin.H{"thread": thread})
}

// CreateThread opens a thread in the category from the path.
func (t *ThreadController) CreateThread(ctx *gin.Context) {
	var req struct {
		Title   string `json:"title" binding:"required,min=1,max=255"`
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	title := strings.TrimSpace(utils.Sanitize(req.Title))
	content := utils.Sanitize(req.Content)
	if title == "" || strings.TrimSpace(content) == "" {
		utils.WriteError(ctx, utils.ErrValidation("title and content cannot be empty"))
		return
	}

	var category models.Category
	if err := t.db.Where("is_active = ?", true).First(&category, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("category not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load category", err))
		return
	}

	a := currentActor(ctx)
	thread := models.Thread{
		CategoryID: category.ID,
		UserID:     a.ID,
		Title:      title,
		Content:    content,
		IsActive:   true,
	}
	if err := t.db.Create(&thread).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to create thread", err))
		return
	}

	// Primary row is durable; counter compensation follows.
	if err := t.engine.ThreadCreated(&thread); err != nil {
		utils.WriteError(ctx, utils.ErrInternal("thread created but counters failed", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Created(ctx, gin.H{"thread": thread})
}

// UpdateThread edits a thread's title or content. Owner or admin only.
func (t *ThreadController) UpdateThread(ctx *gin.Context) {
	var req struct {
		Title   string `json:"title" binding:"required,min=1,max=255"`
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	var thread models.Thread
	if err := t.db.Where("is_active = ?", true).First(&thread, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	a := currentActor(ctx)
	if !models.CanMutate(a.ID, a.Role, thread.UserID) {
		utils.WriteError(ctx, utils.ErrForbidden("you can only edit your own threads"))
		return
	}

	title := strings.TrimSpace(utils.Sanitize(req.Title))
	content := utils.Sanitize(req.Content)
	if title == "" || strings.TrimSpace(content) == "" {
		utils.WriteError(ctx, utils.ErrValidation("title and content cannot be empty"))
		return
	}

	thread.Title = title
	thread.Content = content
	if err := t.db.Save(&thread).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to update thread", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.Success(ctx, gin.H{"thread": thread})
}

// DeleteThread soft-deletes a thread and compensates the category and author
// counters. Posts under the thread are left untouched.
func (t *ThreadController) DeleteThread(ctx *gin.Context) {
	var thread models.Thread
	if err := t.db.Where("is_active = ?", true).First(&thread, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	a := currentActor(ctx)
	if !models.CanMutate(a.ID, a.Role, thread.UserID) {
		utils.WriteError(ctx, utils.ErrForbidden("you can only delete your own threads"))
		return
	}

	if err := t.db.Model(&thread).UpdateColumn("is_active", false).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to delete thread", err))
		return
	}

	if err := t.engine.ThreadDeleted(&thread); err != nil {
		utils.WriteError(ctx, utils.ErrInternal("thread deleted but counters failed", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Message(ctx, "thread deleted")
}

// ToggleThreadLike flips the caller's like on a thread.
func (t *ThreadController) ToggleThreadLike(ctx *gin.Context) {
	var thread models.Thread
	if err := t.db.Where("is_active = ?", true).First(&thread, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	a := currentActor(ctx)
	liked, err := t.engine.ToggleLike(models.SubjectThread, thread.ID, thread.UserID, a.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to toggle like", err))
		return
	}
	count, err := t.engine.LikeCount(models.SubjectThread, thread.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count likes", err))
		return
	}

	utils.Success(ctx, gin.H{"liked": liked, "like_count": count})
}

// TogglePin flips the pinned flag. Admin only.
func (t *ThreadController) TogglePin(ctx *gin.Context) {
	t.toggleFlag(ctx, "is_pinned")
}

// ToggleLock flips the locked flag. Admin only.
func (t *ThreadController) ToggleLock(ctx *gin.Context) {
	t.toggleFlag(ctx, "is_locked")
}

func (t *ThreadController) toggleFlag(ctx *gin.Context, column string) {
	var thread models.Thread
	if err := t.db.Where("is_active = ?", true).First(&thread, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	current := thread.IsPinned
	if column == "is_locked" {
		current = thread.IsLocked
	}
	if err := t.db.Model(&thread).UpdateColumn(column, !current).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to update thread", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.Success(ctx, gin.H{"id": thread.ID, column: !current})
}
