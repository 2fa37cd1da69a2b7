package controllers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

const statsCacheKey = "cache:stats:site"

// StatsController serves aggregate site statistics.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a StatsController.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// GetStats returns active entity counts and today's page views. Results are
// cached briefly because every counter requires a full-table count.
func (s *StatsController) GetStats(ctx *gin.Context) {
	if cached, ok := utils.CacheGetBytes(statsCacheKey); ok {
		ctx.Data(200, "application/json; charset=utf-8", cached)
		return
	}

	var users, threads, posts int64
	if err := s.db.Model(&models.User{}).Where("is_active = ?", true).Count(&users).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count users", err))
		return
	}
	if err := s.db.Model(&models.Thread{}).Where("is_active = ?", true).Count(&threads).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count threads", err))
		return
	}
	if err := s.db.Model(&models.Post{}).Where("is_active = ?", true).Count(&posts).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to count posts", err))
		return
	}

	now := time.Now().In(time.Local)
	localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var todayViews int64
	s.db.Model(&models.PageView{}).
		Select("COALESCE(SUM(count), 0)").
		Where("date = ?", localMidnight).
		Scan(&todayViews)

	data := gin.H{
		"users":       users,
		"threads":     threads,
		"posts":       posts,
		"views_today": todayViews,
	}
	utils.CacheSetEnvelope(statsCacheKey, data, 30*time.Second)
	utils.Success(ctx, data)
}
