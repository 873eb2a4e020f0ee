package controller

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProjectController struct {
	ProjectService *service.ProjectService
}

func NewProjectController(projectService *service.ProjectService) *ProjectController {
	return &ProjectController{ProjectService: projectService}
}

// AddMemberRequest 邀请成员，userId 与 email 二选一
// swagger:model AddMemberRequest
type AddMemberRequest struct {
	UserID uint              `json:"userId"`
	Email  string            `json:"email"`
	Role   model.ProjectRole `json:"role"`
}

// CreateProject godoc
// @Summary 创建项目
// @Tags 协作项目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CreateProjectInput true "项目"
// @Success 201 {object} util.Response{data=model.Project}
// @Router /api/projects [post]
func (c *ProjectController) CreateProject(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.CreateProjectInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	project, err := c.ProjectService.CreateProject(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, project)
}

// AddMember godoc
// @Summary 添加项目成员
// @Tags 协作项目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param request body AddMemberRequest true "成员"
// @Success 201 {object} util.Response{data=model.ProjectMembership}
// @Failure 403 {object} util.Response
// @Router /api/projects/{id}/members [post]
func (c *ProjectController) AddMember(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	var req AddMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	var (
		m   *model.ProjectMembership
		err error
	)
	switch {
	case req.Email != "":
		m, err = c.ProjectService.AddMemberByEmail(ctx.Request.Context(), user.UserID, projectID, req.Email, req.Role)
	case req.UserID != 0:
		m, err = c.ProjectService.AddMember(ctx.Request.Context(), user.UserID, projectID, req.UserID, req.Role)
	default:
		util.BadRequest(ctx, "userId or email is required")
		return
	}
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, m)
}

// ListMembers godoc
// @Summary 项目成员列表
// @Tags 协作项目
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Success 200 {object} util.Response{data=[]service.MemberView}
// @Failure 403 {object} util.Response
// @Router /api/projects/{id}/members [get]
func (c *ProjectController) ListMembers(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	members, err := c.ProjectService.ListMembers(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, members)
}

// ListTasks godoc
// @Summary 项目任务列表
// @Tags 协作项目
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param status query string false "任务状态"
// @Success 200 {object} util.Response{data=[]model.ProjectTask}
// @Router /api/projects/{id}/tasks [get]
func (c *ProjectController) ListTasks(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	tasks, err := c.ProjectService.ListTasks(ctx.Request.Context(), user.UserID, projectID, ctx.Query("status"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, tasks)
}

// CreateTask godoc
// @Summary 创建任务
// @Tags 协作项目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Param request body service.TaskInput true "任务"
// @Success 201 {object} util.Response{data=model.ProjectTask}
// @Router /api/projects/{id}/tasks [post]
func (c *ProjectController) CreateTask(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	var req service.TaskInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	task, err := c.ProjectService.CreateTask(ctx.Request.Context(), user.UserID, projectID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, task)
}

// UpdateTask godoc
// @Summary 更新任务
// @Description 更新后向项目实时通道广播 task_update
// @Tags 协作项目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "任务ID"
// @Param request body service.TaskUpdate true "更新字段"
// @Success 200 {object} util.Response{data=model.ProjectTask}
// @Router /api/tasks/{id} [patch]
func (c *ProjectController) UpdateTask(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	taskID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid task id")
		return
	}
	var req service.TaskUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	task, err := c.ProjectService.UpdateTask(ctx.Request.Context(), user.UserID, taskID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, task)
}

// Presence godoc
// @Summary 项目在线成员
// @Tags 协作项目
// @Produce json
// @Security BearerAuth
// @Param id path int true "项目ID"
// @Success 200 {object} util.Response{data=map[string][]uint}
// @Router /api/projects/{id}/presence [get]
func (c *ProjectController) Presence(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	projectID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid project id")
		return
	}
	users, err := c.ProjectService.Presence(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"userIds": users})
}
