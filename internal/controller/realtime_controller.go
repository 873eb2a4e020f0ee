package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type RealtimeController struct {
	Hub            *service.RelayHub
	ProjectService *service.ProjectService
}

func NewRealtimeController(hub *service.RelayHub, projectService *service.ProjectService) *RealtimeController {
	return &RealtimeController{Hub: hub, ProjectService: projectService}
}

// ProjectSocket godoc
// @Summary 项目协作通道
// @Description WebSocket，令牌可放在 token 查询参数中
// @Tags 实时
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Router /ws/projects/{id} [get]
func (c *RealtimeController) ProjectSocket(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	// 升级前校验访问权限
	allowed, err := c.ProjectService.CanAccess(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if !allowed {
		util.Forbidden(ctx)
		return
	}
	service.ServeProjectWS(c.Hub, ctx.Writer, ctx.Request, user.UserID, user.Name, projectID)
}

// NotificationSocket godoc
// @Summary 个人通知通道
// @Description 未认证连接会收到 1008 关闭帧
// @Tags 实时
// @Router /ws/notifications [get]
func (c *RealtimeController) NotificationSocket(ctx *gin.Context) {
	var (
		userID uint
		name   string
	)
	if user := util.GetUserFromContext(ctx); user != nil {
		userID, name = user.UserID, user.Name
	}
	service.ServeNotificationWS(c.Hub, ctx.Writer, ctx.Request, userID, name)
}
