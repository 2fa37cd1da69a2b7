package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/controllers"
	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/middleware"
	"github.com/forumkit/forumkit/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, rec *counters.Reconciler) *gin.Engine {
	// Load config and set Gin mode from configuration
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Record PV after each request
	r.Use(middleware.PageViewRecorder(db))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine := counters.NewEngine(db)
	authCtrl := controllers.NewAuthController(db)
	categoryCtrl := controllers.NewCategoryController(db)
	threadCtrl := controllers.NewThreadController(db, engine)
	postCtrl := controllers.NewPostController(db, engine)
	statsCtrl := controllers.NewStatsController(db)
	adminCtrl := controllers.NewAdminController(rec)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authCtrl.Register)
			auth.POST("/login", authCtrl.Login)
			auth.POST("/logout", middleware.AuthRequired(), authCtrl.Logout)
			auth.GET("/me", middleware.AuthRequired(), authCtrl.Me)
			auth.PATCH("/profile", middleware.AuthRequired(), authCtrl.UpdateProfile)
			auth.GET("/oauth/:provider/login", authCtrl.OAuthRedirect)
			auth.GET("/oauth/:provider/callback", authCtrl.OAuthCallback)
		}

		users := api.Group("/users")
		{
			users.GET("/:id", authCtrl.GetUserPublic)
			users.GET("/:id/threads", authCtrl.ListUserThreads)
			users.GET("/:id/posts", authCtrl.ListUserPosts)
		}

		categories := api.Group("/categories")
		{
			categories.GET("", categoryCtrl.ListCategories)
			categories.GET("/:id", categoryCtrl.GetCategory)
			categories.GET("/:id/threads", middleware.OptionalAuth(), threadCtrl.ListThreads)
			categories.POST("/:id/threads", middleware.AuthRequired(), threadCtrl.CreateThread)
			categories.POST("", middleware.AuthRequired(), middleware.AdminRequired(), categoryCtrl.CreateCategory)
			categories.PATCH("/:id", middleware.AuthRequired(), middleware.AdminRequired(), categoryCtrl.UpdateCategory)
			categories.DELETE("/:id", middleware.AuthRequired(), middleware.AdminRequired(), categoryCtrl.DeleteCategory)
		}

		threads := api.Group("/threads")
		{
			threads.GET("", middleware.OptionalAuth(), threadCtrl.ListThreads)
			threads.GET("/:id", middleware.OptionalAuth(), threadCtrl.GetThread)
			threads.GET("/:id/posts", middleware.OptionalAuth(), postCtrl.ListPosts)
			threads.PATCH("/:id", middleware.AuthRequired(), threadCtrl.UpdateThread)
			threads.DELETE("/:id", middleware.AuthRequired(), threadCtrl.DeleteThread)
			threads.POST("/:id/like", middleware.AuthRequired(), threadCtrl.ToggleThreadLike)
			threads.POST("/:id/posts", middleware.AuthRequired(), postCtrl.CreatePost)
			threads.POST("/:id/pin", middleware.AuthRequired(), middleware.AdminRequired(), threadCtrl.TogglePin)
			threads.POST("/:id/lock", middleware.AuthRequired(), middleware.AdminRequired(), threadCtrl.ToggleLock)
		}

		posts := api.Group("/posts")
		{
			posts.GET("/:id/history", middleware.OptionalAuth(), postCtrl.GetEditHistory)
			posts.PATCH("/:id", middleware.AuthRequired(), postCtrl.UpdatePost)
			posts.DELETE("/:id", middleware.AuthRequired(), postCtrl.DeletePost)
			posts.POST("/:id/like", middleware.AuthRequired(), postCtrl.TogglePostLike)
		}

		api.GET("/stats", statsCtrl.GetStats)

		admin := api.Group("/admin", middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/users", authCtrl.ListUsers)
			admin.DELETE("/users/:id", authCtrl.DeleteUser)
			admin.POST("/reconcile", adminCtrl.Reconcile)
		}
	}

	return r
}
