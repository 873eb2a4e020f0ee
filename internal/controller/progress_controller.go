package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	ProgressService *service.ProgressService
}

func NewProgressController(progressService *service.ProgressService) *ProgressController {
	return &ProgressController{ProgressService: progressService}
}

// ListProgress godoc
// @Summary 我的学习进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.ProgressSnapshot}
// @Router /api/progress [get]
func (c *ProgressController) ListProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	list, err := c.ProgressService.ListProgress(ctx.Request.Context(), user.UserID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetProgress godoc
// @Summary 某职业路径上的进度
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param pathId path int true "职业路径ID"
// @Success 200 {object} util.Response{data=service.ProgressSnapshot}
// @Failure 404 {object} util.Response
// @Router /api/progress/{pathId} [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	pathID, ok := util.ParamUint(ctx, "pathId")
	if !ok {
		util.BadRequest(ctx, "invalid career path id")
		return
	}
	snapshot, err := c.ProgressService.GetProgress(ctx.Request.Context(), user.UserID, pathID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snapshot)
}

// CompleteModule godoc
// @Summary 完成学习模块
// @Description 幂等；仅首次完成发放模块积分，路径全部完成时发放路径奖励
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response{data=service.ProgressSnapshot}
// @Failure 404 {object} util.Response
// @Router /api/modules/{id}/complete [post]
func (c *ProgressController) CompleteModule(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	moduleID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid module id")
		return
	}
	snapshot, err := c.ProgressService.CompleteModule(ctx.Request.Context(), user.UserID, moduleID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, snapshot)
}
