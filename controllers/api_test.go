package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/utils"
)

func newTestAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// In-memory sqlite is per connection; keep the pool at one
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Category{}, &models.Thread{}, &models.Post{},
		&models.PostEdit{}, &models.Like{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	engine := counters.NewEngine(db)
	threadCtrl := NewThreadController(db, engine)
	postCtrl := NewPostController(db, engine)

	r := gin.New()
	api := r.Group("/api/v1")
	api.GET("/threads/:id", middleware.OptionalAuth(), threadCtrl.GetThread)
	api.POST("/threads/:id/posts", middleware.AuthRequired(), postCtrl.CreatePost)
	api.PATCH("/posts/:id", middleware.AuthRequired(), postCtrl.UpdatePost)
	api.POST("/posts/:id/like", middleware.AuthRequired(), postCtrl.TogglePostLike)
	return r, db
}

func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	u := models.User{Username: username, PasswordHash: "x", Role: models.RoleUser, IsActive: true}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func authHeader(t *testing.T, u models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(u.ID, u.Username, u.Role, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, auth string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Replying to a locked thread must return 403 and leave every counter as it was.
func TestCreatePostOnLockedThread(t *testing.T) {
	r, db := newTestAPI(t)
	author := createUser(t, db, "author")
	visitor := createUser(t, db, "visitor")

	cat := models.Category{Name: "general", Slug: "general", IsActive: true, ThreadCount: 1}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	thread := models.Thread{CategoryID: cat.ID, UserID: author.ID, Title: "t", Content: "c", IsLocked: true, IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}

	w := doJSON(t, r, "POST", "/api/v1/threads/1/posts", authHeader(t, visitor), gin.H{"content": "hi"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusForbidden, w.Body.String())
	}

	var env struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Success || env.Error == "" {
		t.Fatalf("envelope = %+v, want success=false with error message", env)
	}

	var posts int64
	if err := db.Model(&models.Post{}).Count(&posts).Error; err != nil {
		t.Fatalf("count posts: %v", err)
	}
	if posts != 0 {
		t.Fatalf("posts created = %d, want 0", posts)
	}
	var gotThread models.Thread
	if err := db.First(&gotThread, thread.ID).Error; err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	if gotThread.ReplyCount != 0 {
		t.Fatalf("reply_count = %d, want 0", gotThread.ReplyCount)
	}
	var gotVisitor models.User
	if err := db.First(&gotVisitor, visitor.ID).Error; err != nil {
		t.Fatalf("reload visitor: %v", err)
	}
	if gotVisitor.PostCount != 0 {
		t.Fatalf("visitor post_count = %d, want 0", gotVisitor.PostCount)
	}
}

// A non-author without the admin role must not be able to edit a post, and the
// post must stay untouched with no history snapshot.
func TestUpdatePostAuthorization(t *testing.T) {
	r, db := newTestAPI(t)
	author := createUser(t, db, "author")
	other := createUser(t, db, "other")

	cat := models.Category{Name: "general", Slug: "general", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	thread := models.Thread{CategoryID: cat.ID, UserID: author.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	post := models.Post{ThreadID: thread.ID, UserID: author.ID, Content: "original", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}

	w := doJSON(t, r, "PATCH", "/api/v1/posts/1", authHeader(t, other), gin.H{"content": "hijacked"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusForbidden, w.Body.String())
	}

	var gotPost models.Post
	if err := db.First(&gotPost, post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if gotPost.Content != "original" || gotPost.IsEdited {
		t.Fatalf("post mutated by forbidden edit: content=%q edited=%v", gotPost.Content, gotPost.IsEdited)
	}
	var edits int64
	if err := db.Model(&models.PostEdit{}).Count(&edits).Error; err != nil {
		t.Fatalf("count edits: %v", err)
	}
	if edits != 0 {
		t.Fatalf("edit snapshots = %d, want 0", edits)
	}

	// The author can edit, and the prior content is snapshotted.
	w = doJSON(t, r, "PATCH", "/api/v1/posts/1", authHeader(t, author), gin.H{"content": "revised"})
	if w.Code != http.StatusOK {
		t.Fatalf("author edit status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if err := db.First(&gotPost, post.ID).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if gotPost.Content != "revised" || !gotPost.IsEdited || gotPost.EditedAt == nil {
		t.Fatalf("author edit not applied: %+v", gotPost)
	}
	var history []models.PostEdit
	if err := db.Where("post_id = ?", post.ID).Find(&history).Error; err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 1 || history[0].Content != "original" {
		t.Fatalf("history = %+v, want one snapshot of the original content", history)
	}
}

// Two like toggles through the HTTP surface must end with the like removed.
func TestTogglePostLikeEndpoint(t *testing.T) {
	r, db := newTestAPI(t)
	author := createUser(t, db, "author")
	fan := createUser(t, db, "fan")

	cat := models.Category{Name: "general", Slug: "general", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	thread := models.Thread{CategoryID: cat.ID, UserID: author.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	post := models.Post{ThreadID: thread.ID, UserID: author.ID, Content: "p", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}

	var env struct {
		Success bool `json:"success"`
		Data    struct {
			Liked     bool  `json:"liked"`
			LikeCount int64 `json:"like_count"`
		} `json:"data"`
	}

	w := doJSON(t, r, "POST", "/api/v1/posts/1/like", authHeader(t, fan), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first toggle status = %d (body %s)", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Data.Liked || env.Data.LikeCount != 1 {
		t.Fatalf("first toggle = %+v, want liked with count 1", env.Data)
	}

	w = doJSON(t, r, "POST", "/api/v1/posts/1/like", authHeader(t, fan), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second toggle status = %d (body %s)", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Liked || env.Data.LikeCount != 0 {
		t.Fatalf("second toggle = %+v, want unliked with count 0", env.Data)
	}
}

// Soft-deleted threads must disappear from the read path.
func TestGetThreadHidesInactive(t *testing.T) {
	r, db := newTestAPI(t)
	author := createUser(t, db, "author")

	cat := models.Category{Name: "general", Slug: "general", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	thread := models.Thread{CategoryID: cat.ID, UserID: author.ID, Title: "t", Content: "c", IsActive: false}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}

	w := doJSON(t, r, "GET", "/api/v1/threads/1", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// Requests without a token must be rejected before reaching the handler.
func TestAuthRequiredRejectsMissingToken(t *testing.T) {
	r, db := newTestAPI(t)
	author := createUser(t, db, "author")

	cat := models.Category{Name: "general", Slug: "general", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	thread := models.Thread{CategoryID: cat.ID, UserID: author.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}

	w := doJSON(t, r, "POST", "/api/v1/threads/1/posts", "", gin.H{"content": "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
