package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CatalogController struct {
	CatalogService  *service.CatalogService
	ProgressService *service.ProgressService
}

func NewCatalogController(catalogService *service.CatalogService, progressService *service.ProgressService) *CatalogController {
	return &CatalogController{CatalogService: catalogService, ProgressService: progressService}
}

// ListCareerPaths godoc
// @Summary 职业路径列表
// @Description 返回所有启用的职业路径及其当前启用的模块数
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.CareerPathView}
// @Router /api/career-paths [get]
func (c *CatalogController) ListCareerPaths(ctx *gin.Context) {
	paths, err := c.CatalogService.ListCareerPaths(ctx.Request.Context())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, paths)
}

// ListModules godoc
// @Summary 路径模块列表
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "职业路径ID"
// @Success 200 {object} util.Response{data=[]model.LearningModule}
// @Failure 404 {object} util.Response
// @Router /api/career-paths/{id}/modules [get]
func (c *CatalogController) ListModules(ctx *gin.Context) {
	pathID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid career path id")
		return
	}
	modules, err := c.CatalogService.ListModules(ctx.Request.Context(), pathID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, modules)
}

// StartCareerPath godoc
// @Summary 开始学习职业路径
// @Description 幂等，首次调用时创建进度记录
// @Tags 课程
// @Produce json
// @Security BearerAuth
// @Param id path int true "职业路径ID"
// @Success 200 {object} util.Response{data=service.ProgressSnapshot}
// @Success 201 {object} util.Response{data=service.ProgressSnapshot}
// @Router /api/career-paths/{id}/start [post]
func (c *CatalogController) StartCareerPath(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	pathID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid career path id")
		return
	}
	snapshot, created, err := c.ProgressService.StartCareerPath(ctx.Request.Context(), user.UserID, pathID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	if created {
		util.Created(ctx, snapshot)
		return
	}
	util.Success(ctx, snapshot)
}

// CreateCareerPath godoc
// @Summary 创建职业路径
// @Tags 课程管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.CareerPathInput true "职业路径"
// @Success 201 {object} util.Response{data=model.CareerPath}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/instructor/career-paths [post]
func (c *CatalogController) CreateCareerPath(ctx *gin.Context) {
	var req service.CareerPathInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	path, err := c.CatalogService.CreateCareerPath(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, path)
}

// CreateModule godoc
// @Summary 创建学习模块
// @Tags 课程管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "职业路径ID"
// @Param request body service.ModuleInput true "模块"
// @Success 201 {object} util.Response{data=model.LearningModule}
// @Router /api/instructor/career-paths/{id}/modules [post]
func (c *CatalogController) CreateModule(ctx *gin.Context) {
	pathID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid career path id")
		return
	}
	var req service.ModuleInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	module, err := c.CatalogService.CreateModule(ctx.Request.Context(), pathID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, module)
}
