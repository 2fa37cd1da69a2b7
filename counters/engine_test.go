package counters

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/forumkit/forumkit/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func seedForum(t *testing.T, db *gorm.DB) (alice, bob models.User, cat models.Category) {
	t.Helper()
	alice = models.User{Username: "alice", PasswordHash: "x", Role: models.RoleUser, IsActive: true}
	bob = models.User{Username: "bob", PasswordHash: "x", Role: models.RoleUser, IsActive: true}
	if err := db.Create(&alice).Error; err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := db.Create(&bob).Error; err != nil {
		t.Fatalf("seed bob: %v", err)
	}
	cat = models.Category{Name: "general", Slug: "general", IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return alice, bob, cat
}

func reloadCounts(t *testing.T, db *gorm.DB, catID uint, users ...uint) (models.Category, map[uint]models.User) {
	t.Helper()
	var cat models.Category
	if err := db.First(&cat, catID).Error; err != nil {
		t.Fatalf("reload category: %v", err)
	}
	got := make(map[uint]models.User, len(users))
	for _, id := range users {
		var u models.User
		if err := db.First(&u, id).Error; err != nil {
			t.Fatalf("reload user %d: %v", id, err)
		}
		got[id] = u
	}
	return cat, got
}

// A full create/reply/delete cycle must leave every counter where it started.
func TestCounterRoundTrip(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db)
	alice, bob, cat := seedForum(t, db)

	thread := models.Thread{CategoryID: cat.ID, UserID: alice.ID, Title: "hello", Content: "first", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := engine.ThreadCreated(&thread); err != nil {
		t.Fatalf("ThreadCreated: %v", err)
	}

	gotCat, gotUsers := reloadCounts(t, db, cat.ID, alice.ID, bob.ID)
	if gotCat.ThreadCount != 1 || gotCat.PostCount != 0 {
		t.Fatalf("after thread create: category counts = (%d, %d), want (1, 0)", gotCat.ThreadCount, gotCat.PostCount)
	}
	if gotUsers[alice.ID].PostCount != 1 {
		t.Fatalf("after thread create: alice post_count = %d, want 1", gotUsers[alice.ID].PostCount)
	}

	post := models.Post{ThreadID: thread.ID, UserID: bob.ID, Content: "reply", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := engine.PostCreated(&post, &thread, bob.Username); err != nil {
		t.Fatalf("PostCreated: %v", err)
	}

	var gotThread models.Thread
	if err := db.First(&gotThread, thread.ID).Error; err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	if gotThread.ReplyCount != 1 {
		t.Fatalf("after post create: reply_count = %d, want 1", gotThread.ReplyCount)
	}
	if gotThread.LastReplyUserID == nil || *gotThread.LastReplyUserID != bob.ID {
		t.Fatalf("after post create: last_reply_user_id = %v, want %d", gotThread.LastReplyUserID, bob.ID)
	}
	if gotThread.LastReplyUsername != "bob" || gotThread.LastReplyAt == nil {
		t.Fatalf("after post create: last reply cache not refreshed: %q %v", gotThread.LastReplyUsername, gotThread.LastReplyAt)
	}
	gotCat, gotUsers = reloadCounts(t, db, cat.ID, alice.ID, bob.ID)
	if gotCat.PostCount != 1 {
		t.Fatalf("after post create: category post_count = %d, want 1", gotCat.PostCount)
	}
	if gotUsers[bob.ID].PostCount != 1 {
		t.Fatalf("after post create: bob post_count = %d, want 1", gotUsers[bob.ID].PostCount)
	}

	// Soft-delete the reply, then the thread, and expect the initial state back.
	if err := db.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("soft-delete post: %v", err)
	}
	if err := engine.PostDeleted(&post, &gotThread); err != nil {
		t.Fatalf("PostDeleted: %v", err)
	}
	if err := db.Model(&models.Thread{}).Where("id = ?", thread.ID).UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("soft-delete thread: %v", err)
	}
	if err := engine.ThreadDeleted(&thread); err != nil {
		t.Fatalf("ThreadDeleted: %v", err)
	}

	gotCat, gotUsers = reloadCounts(t, db, cat.ID, alice.ID, bob.ID)
	if gotCat.ThreadCount != 0 || gotCat.PostCount != 0 {
		t.Fatalf("after round trip: category counts = (%d, %d), want (0, 0)", gotCat.ThreadCount, gotCat.PostCount)
	}
	if gotUsers[alice.ID].PostCount != 0 || gotUsers[bob.ID].PostCount != 0 {
		t.Fatalf("after round trip: user post_counts = (%d, %d), want (0, 0)",
			gotUsers[alice.ID].PostCount, gotUsers[bob.ID].PostCount)
	}
}

// Toggling a like twice must restore the like row, the derived count and the
// author's reputation.
func TestToggleLikeTwiceRestoresState(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db)
	alice, bob, cat := seedForum(t, db)

	thread := models.Thread{CategoryID: cat.ID, UserID: alice.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}

	liked, err := engine.ToggleLike(models.SubjectThread, thread.ID, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !liked {
		t.Fatal("first toggle: liked = false, want true")
	}
	n, err := engine.LikeCount(models.SubjectThread, thread.ID)
	if err != nil || n != 1 {
		t.Fatalf("after first toggle: count = %d (err %v), want 1", n, err)
	}
	has, err := engine.HasLiked(models.SubjectThread, thread.ID, bob.ID)
	if err != nil || !has {
		t.Fatalf("after first toggle: HasLiked = %v (err %v), want true", has, err)
	}
	var author models.User
	if err := db.First(&author, alice.ID).Error; err != nil {
		t.Fatalf("reload author: %v", err)
	}
	if author.Reputation != 1 {
		t.Fatalf("after first toggle: reputation = %d, want 1", author.Reputation)
	}

	liked, err = engine.ToggleLike(models.SubjectThread, thread.ID, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if liked {
		t.Fatal("second toggle: liked = true, want false")
	}
	n, err = engine.LikeCount(models.SubjectThread, thread.ID)
	if err != nil || n != 0 {
		t.Fatalf("after second toggle: count = %d (err %v), want 0", n, err)
	}
	if err := db.First(&author, alice.ID).Error; err != nil {
		t.Fatalf("reload author: %v", err)
	}
	if author.Reputation != 0 {
		t.Fatalf("after second toggle: reputation = %d, want 0", author.Reputation)
	}
}

// A like on a thread must not leak into the count of a post with the same id.
func TestLikeSubjectTypesAreIndependent(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db)
	alice, bob, cat := seedForum(t, db)

	thread := models.Thread{CategoryID: cat.ID, UserID: alice.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	post := models.Post{ThreadID: thread.ID, UserID: alice.ID, Content: "p", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}

	if _, err := engine.ToggleLike(models.SubjectThread, thread.ID, alice.ID, bob.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	n, err := engine.LikeCount(models.SubjectPost, post.ID)
	if err != nil || n != 0 {
		t.Fatalf("post like count = %d (err %v), want 0", n, err)
	}

	counts, err := engine.LikeCounts(models.SubjectThread, []uint{thread.ID})
	if err != nil {
		t.Fatalf("LikeCounts: %v", err)
	}
	if counts[thread.ID] != 1 {
		t.Fatalf("batched thread like count = %d, want 1", counts[thread.ID])
	}
	set, err := engine.LikedSet(models.SubjectThread, []uint{thread.ID}, bob.ID)
	if err != nil {
		t.Fatalf("LikedSet: %v", err)
	}
	if !set[thread.ID] {
		t.Fatal("LikedSet missing thread liked by bob")
	}
}

// Injected drift across all three entities must be repaired by one pass, and a
// second pass must find nothing to fix.
func TestReconcilerRepairsDrift(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db)
	alice, bob, cat := seedForum(t, db)

	thread := models.Thread{CategoryID: cat.ID, UserID: alice.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := engine.ThreadCreated(&thread); err != nil {
		t.Fatalf("ThreadCreated: %v", err)
	}
	post := models.Post{ThreadID: thread.ID, UserID: bob.ID, Content: "p", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := engine.PostCreated(&post, &thread, bob.Username); err != nil {
		t.Fatalf("PostCreated: %v", err)
	}

	// Corrupt every counter.
	if err := db.Model(&models.Category{}).Where("id = ?", cat.ID).
		UpdateColumns(map[string]interface{}{"thread_count": 42, "post_count": 42}).Error; err != nil {
		t.Fatalf("inject category drift: %v", err)
	}
	if err := db.Model(&models.Thread{}).Where("id = ?", thread.ID).
		UpdateColumn("reply_count", 42).Error; err != nil {
		t.Fatalf("inject thread drift: %v", err)
	}
	if err := db.Model(&models.User{}).Where("id = ?", bob.ID).
		UpdateColumn("post_count", 42).Error; err != nil {
		t.Fatalf("inject user drift: %v", err)
	}

	rec := NewReconciler(db, 1000)
	report, err := rec.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if report.CategoriesFixed != 1 || report.ThreadsFixed != 1 || report.UsersFixed != 1 {
		t.Fatalf("fixes = %+v, want one per entity", report)
	}

	gotCat, gotUsers := reloadCounts(t, db, cat.ID, alice.ID, bob.ID)
	if gotCat.ThreadCount != 1 || gotCat.PostCount != 1 {
		t.Fatalf("repaired category counts = (%d, %d), want (1, 1)", gotCat.ThreadCount, gotCat.PostCount)
	}
	var gotThread models.Thread
	if err := db.First(&gotThread, thread.ID).Error; err != nil {
		t.Fatalf("reload thread: %v", err)
	}
	if gotThread.ReplyCount != 1 {
		t.Fatalf("repaired reply_count = %d, want 1", gotThread.ReplyCount)
	}
	if gotUsers[bob.ID].PostCount != 1 {
		t.Fatalf("repaired bob post_count = %d, want 1", gotUsers[bob.ID].PostCount)
	}

	report, err = rec.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("second ReconcileAll: %v", err)
	}
	if report.CategoriesFixed+report.ThreadsFixed+report.UsersFixed != 0 {
		t.Fatalf("second pass fixed %+v, want nothing", report)
	}
}

// Posts inside a soft-deleted thread must stop counting toward the category
// and their authors once the reconciler recounts.
func TestReconcilerExcludesPostsOfDeletedThreads(t *testing.T) {
	db := openTestDB(t)
	engine := NewEngine(db)
	alice, bob, cat := seedForum(t, db)

	thread := models.Thread{CategoryID: cat.ID, UserID: alice.ID, Title: "t", Content: "c", IsActive: true}
	if err := db.Create(&thread).Error; err != nil {
		t.Fatalf("create thread: %v", err)
	}
	if err := engine.ThreadCreated(&thread); err != nil {
		t.Fatalf("ThreadCreated: %v", err)
	}
	post := models.Post{ThreadID: thread.ID, UserID: bob.ID, Content: "p", IsActive: true}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	if err := engine.PostCreated(&post, &thread, bob.Username); err != nil {
		t.Fatalf("PostCreated: %v", err)
	}

	// Thread delete does not cascade post counters; the reconciler must.
	if err := db.Model(&models.Thread{}).Where("id = ?", thread.ID).UpdateColumn("is_active", false).Error; err != nil {
		t.Fatalf("soft-delete thread: %v", err)
	}
	if err := engine.ThreadDeleted(&thread); err != nil {
		t.Fatalf("ThreadDeleted: %v", err)
	}

	rec := NewReconciler(db, 1000)
	if _, err := rec.ReconcileAll(context.Background()); err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}

	gotCat, gotUsers := reloadCounts(t, db, cat.ID, alice.ID, bob.ID)
	if gotCat.ThreadCount != 0 || gotCat.PostCount != 0 {
		t.Fatalf("category counts = (%d, %d), want (0, 0)", gotCat.ThreadCount, gotCat.PostCount)
	}
	if gotUsers[bob.ID].PostCount != 0 {
		t.Fatalf("bob post_count = %d, want 0", gotUsers[bob.ID].PostCount)
	}
}
