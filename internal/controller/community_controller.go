package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type CommunityController struct {
	CommunityService *service.CommunityService
}

func NewCommunityController(communityService *service.CommunityService) *CommunityController {
	return &CommunityController{CommunityService: communityService}
}

// CreatePost godoc
// @Summary 发布帖子
// @Tags 社区
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.PostInput true "帖子"
// @Success 201 {object} util.Response{data=model.Post}
// @Failure 400 {object} util.Response
// @Router /api/posts [post]
func (c *CommunityController) CreatePost(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.PostInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	post, err := c.CommunityService.CreatePost(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, post)
}

// ListPosts godoc
// @Summary 帖子列表
// @Description 置顶帖在前，其余按发布时间倒序
// @Tags 社区
// @Produce json
// @Security BearerAuth
// @Param type query string false "内容类型"
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/posts [get]
func (c *CommunityController) ListPosts(ctx *gin.Context) {
	page, limit := util.Pagination(ctx)
	list, total, err := c.CommunityService.ListPosts(ctx.Request.Context(), ctx.Query("type"), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// GetPost godoc
// @Summary 帖子详情
// @Tags 社区
// @Produce json
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Success 200 {object} util.Response{data=model.Post}
// @Failure 404 {object} util.Response
// @Router /api/posts/{id} [get]
func (c *CommunityController) GetPost(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid post id")
		return
	}
	post, err := c.CommunityService.GetPost(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, post)
}

// TogglePostLike godoc
// @Summary 点赞/取消点赞帖子
// @Tags 社区
// @Produce json
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Success 200 {object} util.Response{data=service.LikeResult}
// @Router /api/posts/{id}/like [post]
func (c *CommunityController) TogglePostLike(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid post id")
		return
	}
	result, err := c.CommunityService.TogglePostLike(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListComments godoc
// @Summary 帖子评论
// @Tags 社区
// @Produce json
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Success 200 {object} util.Response{data=[]service.CommentThread}
// @Router /api/posts/{id}/comments [get]
func (c *CommunityController) ListComments(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid post id")
		return
	}
	threads, err := c.CommunityService.ListComments(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, threads)
}

// CreateComment godoc
// @Summary 发表评论或回复
// @Tags 社区
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "帖子ID"
// @Param request body service.CommentInput true "评论"
// @Success 201 {object} util.Response{data=model.Comment}
// @Router /api/posts/{id}/comments [post]
func (c *CommunityController) CreateComment(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid post id")
		return
	}
	var req service.CommentInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	comment, err := c.CommunityService.CreateComment(ctx.Request.Context(), user.UserID, id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, comment)
}

// ToggleCommentLike godoc
// @Summary 点赞/取消点赞评论
// @Tags 社区
// @Produce json
// @Security BearerAuth
// @Param id path int true "评论ID"
// @Success 200 {object} util.Response{data=service.LikeResult}
// @Router /api/comments/{id}/like [post]
func (c *CommunityController) ToggleCommentLike(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid comment id")
		return
	}
	result, err := c.CommunityService.ToggleCommentLike(ctx.Request.Context(), user.UserID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
