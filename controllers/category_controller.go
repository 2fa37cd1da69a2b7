package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

// CategoryController manages the category collection. Mutations are admin-only.
type CategoryController struct {
	db *gorm.DB
}

// NewCategoryController creates a new CategoryController instance.
func NewCategoryController(db *gorm.DB) *CategoryController {
	return &CategoryController{db: db}
}

const categoryListCacheKey = "cache:categories:list"

// ListCategories returns all active categories in explicit display order.
func (c *CategoryController) ListCategories(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(categoryListCacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var categories []models.Category
	if err := c.db.Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&categories).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to list categories", err))
		return
	}

	payload := gin.H{"categories": categories}
	utils.CacheSetEnvelope(categoryListCacheKey, payload, time.Hour)
	utils.Success(ctx, payload)
}

// GetCategory returns a single active category.
func (c *CategoryController) GetCategory(ctx *gin.Context) {
	var category models.Category
	if err := c.db.Where("is_active = ?", true).First(&category, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("category not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load category", err))
		return
	}
	utils.Success(ctx, gin.H{"category": category})
}

// CreateCategory creates a category with a unique name.
func (c *CategoryController) CreateCategory(ctx *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required,min=1,max=64"`
		Description string `json:"description"`
		Order       int    `json:"order"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	name := strings.TrimSpace(utils.Sanitize(req.Name))
	if name == "" {
		utils.WriteError(ctx, utils.ErrValidation("category name cannot be empty"))
		return
	}

	var existing models.Category
	if err := c.db.Where("name = ?", name).First(&existing).Error; err == nil {
		utils.WriteError(ctx, utils.ErrConflict("category name already exists"))
		return
	}

	category := models.Category{
		Name:        name,
		Slug:        slugify(name),
		Description: strings.TrimSpace(utils.Sanitize(req.Description)),
		Order:       req.Order,
		IsActive:    true,
	}
	if err := c.db.Create(&category).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to create category", err))
		return
	}

	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Created(ctx, gin.H{"category": category})
}

// UpdateCategory edits name, description or display order.
func (c *CategoryController) UpdateCategory(ctx *gin.Context) {
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Order       *int    `json:"order"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.WriteError(ctx, utils.ErrValidation("invalid request payload"))
		return
	}

	var category models.Category
	if err := c.db.Where("is_active = ?", true).First(&category, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("category not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load category", err))
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(utils.Sanitize(*req.Name))
		if name == "" {
			utils.WriteError(ctx, utils.ErrValidation("category name cannot be empty"))
			return
		}
		var existing models.Category
		if err := c.db.Where("name = ? AND id <> ?", name, category.ID).First(&existing).Error; err == nil {
			utils.WriteError(ctx, utils.ErrConflict("category name already exists"))
			return
		}
		category.Name = name
		category.Slug = slugify(name)
	}
	if req.Description != nil {
		category.Description = strings.TrimSpace(utils.Sanitize(*req.Description))
	}
	if req.Order != nil {
		category.Order = *req.Order
	}

	if err := c.db.Save(&category).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to update category", err))
		return
	}

	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Success(ctx, gin.H{"category": category})
}

// DeleteCategory soft-deletes a category. Threads under it stay addressable
// but the category disappears from listings.
func (c *CategoryController) DeleteCategory(ctx *gin.Context) {
	var category models.Category
	if err := c.db.Where("is_active = ?", true).First(&category, ctx.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(ctx, utils.ErrNotFound("category not found"))
			return
		}
		utils.WriteError(ctx, utils.ErrInternal("failed to load category", err))
		return
	}

	if err := c.db.Model(&category).UpdateColumn("is_active", false).Error; err != nil {
		utils.WriteError(ctx, utils.ErrInternal("failed to delete category", err))
		return
	}

	utils.InvalidateByPrefix(categoryListCacheKey)
	utils.Message(ctx, "category deleted")
}
