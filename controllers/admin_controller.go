package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/forumkit/forumkit/counters"
	"github.com/forumkit/forumkit/utils"
)

// AdminController exposes maintenance operations.
type AdminController struct {
	reconciler *counters.Reconciler
}

// NewAdminController creates an AdminController.
func NewAdminController(rec *counters.Reconciler) *AdminController {
	return &AdminController{reconciler: rec}
}

// Reconcile runs a full counter reconciliation pass and returns the repair
// report. The pass is rate-limited internally, so concurrent invocations are
// safe but slow.
func (a *AdminController) Reconcile(ctx *gin.Context) {
	report, err := a.reconciler.ReconcileAll(ctx.Request.Context())
	if err != nil {
		utils.WriteError(ctx, utils.ErrInternal("reconciliation failed", err))
		return
	}
	utils.Success(ctx, gin.H{"report": report})
}
