package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type MentorController struct {
	AnalysisService *service.CodeAnalysisService
	ChatService     *service.MentorChatService
}

func NewMentorController(analysisService *service.CodeAnalysisService, chatService *service.MentorChatService) *MentorController {
	return &MentorController{AnalysisService: analysisService, ChatService: chatService}
}

// AnalyzeCode godoc
// @Summary AI 代码分析
// @Description 调用外部大模型分析代码，服务不可用时返回 502
// @Tags AI导师
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.AnalyzeCodeRequest true "代码"
// @Success 200 {object} util.Response{data=model.CodeAnalysis}
// @Failure 400 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /api/mentor/analyze [post]
func (c *MentorController) AnalyzeCode(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.AnalyzeCodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	analysis, err := c.AnalysisService.AnalyzeCode(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, analysis)
}

// ListAnalyses godoc
// @Summary 我的代码分析记录
// @Tags AI导师
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/mentor/analyses [get]
func (c *MentorController) ListAnalyses(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	page, limit := util.Pagination(ctx)
	list, total, err := c.AnalysisService.ListAnalyses(ctx.Request.Context(), user.UserID, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: list, Total: total, Page: page, Limit: limit})
}

// GetAnalysis godoc
// @Summary 代码分析详情
// @Tags AI导师
// @Produce json
// @Security BearerAuth
// @Param id path string true "分析ID"
// @Success 200 {object} util.Response{data=model.CodeAnalysis}
// @Router /api/mentor/analyses/{id} [get]
func (c *MentorController) GetAnalysis(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	analysis, err := c.AnalysisService.GetAnalysis(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, analysis)
}

// SendMessage godoc
// @Summary 向 AI 导师提问
// @Description 不带 sessionId 时新建会话；超出每日回复上限返回 429，模型不可用返回 502
// @Tags AI导师
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.SendMessageInput true "消息"
// @Success 200 {object} util.Response{data=service.ChatReply}
// @Failure 400 {object} util.Response
// @Failure 429 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /api/mentor/messages [post]
func (c *MentorController) SendMessage(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var req service.SendMessageInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	reply, err := c.ChatService.SendMessage(ctx.Request.Context(), user.UserID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, reply)
}

// ListSessions godoc
// @Summary 我的导师会话
// @Tags AI导师
// @Produce json
// @Security BearerAuth
// @Param projectId query int false "项目ID"
// @Success 200 {object} util.Response{data=[]model.ChatSession}
// @Router /api/mentor/sessions [get]
func (c *MentorController) ListSessions(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	var projectID *uint
	if raw := ctx.Query("projectId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			util.BadRequest(ctx, "invalid projectId")
			return
		}
		pid := uint(id)
		projectID = &pid
	}
	list, err := c.ChatService.ListSessions(ctx.Request.Context(), user.UserID, projectID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetSession godoc
// @Summary 导师会话详情（含消息）
// @Tags AI导师
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ChatSession}
// @Failure 404 {object} util.Response
// @Router /api/mentor/sessions/{id} [get]
func (c *MentorController) GetSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	session, err := c.ChatService.GetSession(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// CompleteSession godoc
// @Summary 结束导师会话
// @Tags AI导师
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response{data=model.ChatSession}
// @Router /api/mentor/sessions/{id}/complete [post]
func (c *MentorController) CompleteSession(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	session, err := c.ChatService.CompleteSession(ctx.Request.Context(), user.UserID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}
