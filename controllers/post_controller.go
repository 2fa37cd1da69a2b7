package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

// PostController manages replies inside threads, their likes and edit history.
type PostController struct {
	db     *gorm.DB
	engine *counters.Engine
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, engine *counters.Engine) *PostController {
	return &PostController{db: db, engine: engine}
}

// activeThread loads an active thread or writes the 404 envelope.
func (p *PostController) activeThread(ctx *gin.Context, id string) (*models.Thread, bool) {
	var thread models.Thread
	if err := p.db.Where("is_active = ?", true).First(&thread, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("thread not found"))
			return nil, false
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return nil, false
	}
	return &thread, true
}

// activePost loads an active post or writes the 404 envelope.
func (p *PostController) activePost(ctx *gin.Context, id string) (*models.Post, bool) {
	var post models.Post
	if err := p.db.Where("is_active = ?", true).First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("post not found"))
			return nil, false
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load post", err))
		return nil, false
	}
	return &post, true
}

// ListPosts returns a thread's active posts in reading order.
func (p *PostController) ListPosts(ctx *gin.Context) {
	thread, ok := p.activeThread(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	page, limit := utils.ParsePageQuery(ctx.Query("page"), ctx.Query("limit"))

	query := p.db.Model(&models.Post{}).Where("thread_id = ? AND is_active = ?", thread.ID, true)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count posts", err))
		return
	}

	var posts []models.Post
	if err := query.Preload("User").
		Order("created_at ASC, id ASC").
		Offset(utils.Offset(page, limit)).Limit(limit).
		Find(&posts).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list posts", err))
		return
	}

	a := currentActor(ctx)
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	likeCounts, err := p.engine.LikeCounts(models.SubjectPost, ids)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load likes", err))
		return
	}
	liked, err := p.engine.LikedSet(models.SubjectPost, ids, a.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load likes", err))
		return
	}
	for i := range posts {
		posts[i].LikeCount = likeCounts[posts[i].ID]
		posts[i].HasLiked = liked[posts[i].ID]
	}

	utils.Success(ctx, gin.H{
		"posts":      posts,
		"pagination": utils.Paginate(page, limit, total),
	})
}

// CreatePost replies to a thread; rejected when the thread is locked.
func (p *PostController) CreatePost(ctx *gin.Context) {
	var req struct {
		Content      string `json:"content" binding:"required"`
		ParentPostID *uint  `json:"parent_post_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	content := utils.Sanitize(req.Content)
	if strings.TrimSpace(content) == "" {
		utils.WriteError(ctx, utils.ErrValidation("content cannot be empty"))
		return
	}

	thread, ok := p.activeThread(ctx, ctx.Param("id"))
	if !ok {
		return
	}
	if !models.CanPost(thread) {
		utils.WriteError(ctx, utils.ErrForbidden("thread is locked"))
		return
	}

	if req.ParentPostID != nil {
		var parent models.Post
		if err := p.db.First(&parent, *req.ParentPostID).Error; err != nil || parent.ThreadID != thread.ID {
			utils.WriteError(ctx, utils.ErrValidation("parent post must belong to the same thread"))
			return
		}
	}

	a := currentActor(ctx)
	post := models.Post{
		ThreadID:     thread.ID,
		UserID:       a.ID,
		Content:      content,
		ParentPostID: req.ParentPostID,
		IsActive:     true,
	}
	if err := p.db.Create(&post).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to create post", err))
		return
	}

	// Primary row is durable; counter compensation follows.
	if err := p.engine.PostCreated(&post, thread, a.Username); err != nil {
		utils.WriteError(ctx, utils.ErrInternal("post created but counters failed", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Created(ctx, gin.H{"post": post})
}

// UpdatePost edits a post's content, snapshotting the prior content into the
// append-only edit history. Owner or admin only.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	content := utils.Sanitize(req.Content)
	if strings.TrimSpace(content) == "" {
		utils.WriteError(ctx, utils.ErrValidation("content cannot be empty"))
		return
	}

	post, ok := p.activePost(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	a := currentActor(ctx)
	if !models.CanMutate(a.ID, a.Role, post.UserID) {
		utils.WriteError(ctx, utils.ErrForbidden("you can only edit your own posts"))
		return
	}

	previous := post.Content
	now := time.Now()
	post.Content = content
	post.IsEdited = true
	post.EditedAt = &now
	if err := p.db.Save(post).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to update post", err))
		return
	}

	// History is a secondary write after the primary commit, like counters.
	if err := p.db.Create(&models.PostEdit{PostID: post.ID, Content: previous}).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("post updated but history snapshot failed", err))
		return
	}

	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost soft-deletes a post and compensates the thread, category and
// author counters. The thread's last-reply cache is left as is.
func (p *PostController) DeletePost(ctx *gin.Context) {
	post, ok := p.activePost(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	a := currentActor(ctx)
	if !models.CanMutate(a.ID, a.Role, post.UserID) {
		utils.WriteError(ctx, utils.ErrForbidden("you can only delete your own posts"))
		return
	}

	var thread models.Thread
	if err := p.db.First(&thread, post.ThreadID).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load thread", err))
		return
	}

	if err := p.db.Model(post).UpdateColumn("is_active", false).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to delete post", err))
		return
	}

	if err := p.engine.PostDeleted(post, &thread); err != nil {
		utils.WriteError(ctx, utils.ErrInternal("post deleted but counters failed", err))
		return
	}

	utils.InvalidateByPrefix(threadListCachePrefix)
	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Message(ctx, "post deleted")
}

// TogglePostLike flips the caller's like on a post.
func (p *PostController) TogglePostLike(ctx *gin.Context) {
	post, ok := p.activePost(ctx, ctx.Param("id"))
	if !ok {
		return
	}

	a := currentActor(ctx)
	liked, err := p.engine.ToggleLike(models.SubjectPost, post.ID, post.UserID, a.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to toggle like", err))
		return
	}
	count, err := p.engine.LikeCount(models.SubjectPost, post.ID)
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count likes", err))
		return
	}

	utils.Success(ctx, gin.H{"liked": liked, "like_count": count})
}

// GetEditHistory returns a post's prior content snapshots, newest first.
// Soft-deleted posts stay addressable here for audit purposes.
func (p *PostController) GetEditHistory(ctx *gin.Context) {
	var post models.Post
	if err := p.db.First(&post, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("post not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load post", err))
		return
	}

	var edits []models.PostEdit
	if err := p.db.Where("post_id = ?", post.ID).
		Order("created_at DESC, id DESC").
		Find(&edits).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to load edit history", err))
		return
	}

	utils.Success(ctx, gin.H{
		"post_id":   post.ID,
		"is_edited": post.IsEdited,
		"edits":     edits,
	})
}
