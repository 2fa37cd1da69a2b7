package main

import (
	"time"

	"github.com/forumkit/forumkit/config"
	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/models"
	"github.com/forumkit/forumkit/routes"
	"github.com/forumkit/forumkit/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{}, &models.Category{}, &models.Thread{}, &models.Post{},
		&models.PostEdit{}, &models.Like{}, &models.PageView{},
	)

	// Promote configured admin accounts at boot so role assignment never
	// depends on manual SQL
	if len(cfg.AdminUsernames) > 0 {
		if err := db.Model(&models.User{}).
			Where("username IN ?", cfg.AdminUsernames).
			Update("role", models.RoleAdmin).Error; err != nil {
			utils.Sugar.Warnf("admin promotion failed: %v", err)
		}
	}

	rec := counters.NewReconciler(db, cfg.ReconcileRatePerSecond)
	rec.StartPeriodic(time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute, utils.Sugar.Infof)

	r := routes.SetupRouter(db, rec)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
