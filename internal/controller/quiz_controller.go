package controller

import (
	"codehub_backend/internal/service"
	"codehub_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// SubmitAttemptRequest 提交测验答案
// swagger:model SubmitAttemptRequest
type SubmitAttemptRequest struct {
	Answers []service.SubmittedAnswer `json:"answers"`
}

// GradeAnswerRequest 人工评分
// swagger:model GradeAnswerRequest
type GradeAnswerRequest struct {
	IsCorrect *bool `json:"isCorrect" binding:"required"`
}

// CreateQuiz godoc
// @Summary 创建模块测验
// @Description 题目与选项按数组顺序编号，及格分 0-100
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Param request body service.QuizInput true "测验"
// @Success 201 {object} util.Response{data=model.Quiz}
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/instructor/modules/{id}/quiz [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	moduleID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid module id")
		return
	}
	var req service.QuizInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	quiz, err := c.QuizService.CreateQuiz(ctx.Request.Context(), moduleID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, quiz)
}

// GetModuleQuiz godoc
// @Summary 获取模块测验
// @Description 学生视图，不包含正确答案与解析
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "模块ID"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Failure 404 {object} util.Response
// @Router /api/modules/{id}/quiz [get]
func (c *QuizController) GetModuleQuiz(ctx *gin.Context) {
	moduleID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid module id")
		return
	}
	view, err := c.QuizService.GetModuleQuiz(ctx.Request.Context(), moduleID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// GetQuiz godoc
// @Summary 获取测验
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	quizID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid quiz id")
		return
	}
	view, err := c.QuizService.GetQuizForStudent(ctx.Request.Context(), quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// StartAttempt godoc
// @Summary 开始测验
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "测验ID"
// @Success 201 {object} util.Response{data=model.QuizAttempt}
// @Failure 400 {object} util.Response "次数已用完或不在开放时间"
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/start [post]
func (c *QuizController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	quizID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid quiz id")
		return
	}
	attempt, err := c.QuizService.StartAttempt(ctx.Request.Context(), user.UserID, quizID, ctx.ClientIP())
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, attempt)
}

// SubmitAttempt godoc
// @Summary 提交测验
// @Description 每个尝试只能提交一次，重复提交返回 409
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Param request body SubmitAttemptRequest true "答案"
// @Success 200 {object} util.Response{data=model.QuizAttempt}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/attempts/{id}/submit [post]
func (c *QuizController) SubmitAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	attemptID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	var req SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	attempt, err := c.QuizService.SubmitAttempt(ctx.Request.Context(), user.UserID, attemptID, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// ListAttempts godoc
// @Summary 我的测验记录
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param quizId query int false "测验ID"
// @Success 200 {object} util.Response{data=[]model.QuizAttempt}
// @Router /api/attempts [get]
func (c *QuizController) ListAttempts(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	quizID := util.MustParseUint(ctx.Query("quizId"))
	attempts, err := c.QuizService.ListAttempts(ctx.Request.Context(), user.UserID, quizID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// GetAttempt godoc
// @Summary 测验记录详情
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path int true "尝试ID"
// @Success 200 {object} util.Response{data=model.QuizAttempt}
// @Router /api/attempts/{id} [get]
func (c *QuizController) GetAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	attemptID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid attempt id")
		return
	}
	attempt, err := c.QuizService.GetAttempt(ctx.Request.Context(), user.UserID, attemptID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// GradeAnswer godoc
// @Summary 人工评分
// @Description 简答题与代码题由讲师评分，评分后重算尝试得分
// @Tags 测验管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "答案ID"
// @Param request body GradeAnswerRequest true "评分"
// @Success 200 {object} util.Response{data=model.QuizAttempt}
// @Router /api/answers/{id}/grade [post]
func (c *QuizController) GradeAnswer(ctx *gin.Context) {
	answerID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid answer id")
		return
	}
	var req GradeAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	attempt, err := c.QuizService.GradeAnswerManually(ctx.Request.Context(), answerID, *req.IsCorrect)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}
