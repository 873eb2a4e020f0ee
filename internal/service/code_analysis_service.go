package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/tracing"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	codeReviewSystemPrompt = "You are an expert code reviewer. Return only valid JSON."
	maxCodeLength          = 20000
	fallbackSeverityScore  = 5
)

type AnalyzeCodeRequest struct {
	ProjectID    *uint  `json:"projectId"`
	Language     string `json:"language" binding:"required"`
	AnalysisType string `json:"analysisType"`
	Code         string `json:"code" binding:"required"`
}

type analysisResult struct {
	Summary         string          `json:"summary"`
	Findings        json.RawMessage `json:"findings"`
	Recommendations json.RawMessage `json:"recommendations"`
	SeverityScore   *int            `json:"severity_score"`
}

type CodeAnalysisService struct {
	Repo     *repository.CodeAnalysisRepository
	Projects *ProjectService
	Timeout  time.Duration

	mu       sync.RWMutex
	provider LLMProvider
}

func NewCodeAnalysisService(repo *repository.CodeAnalysisRepository, projects *ProjectService, provider LLMProvider, timeout time.Duration) *CodeAnalysisService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CodeAnalysisService{Repo: repo, Projects: projects, Timeout: timeout, provider: provider}
}

// SetProvider 配置热更新时替换模型实现
func (s *CodeAnalysisService) SetProvider(p LLMProvider) {
	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()
}

func (s *CodeAnalysisService) currentProvider() LLMProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// AnalyzeCode 记录先以 in_progress 落库，调用失败时标记 failed 并返回 ErrExternalService
func (s *CodeAnalysisService) AnalyzeCode(ctx context.Context, userID uint, req AnalyzeCodeRequest) (_ *model.CodeAnalysis, err error) {
	ctx, span := tracing.StartSpan(ctx, "CodeAnalysisService.AnalyzeCode", attribute.String("analysis.language", req.Language))
	defer func() { tracing.EndWithError(span, err) }()

	if strings.TrimSpace(req.Code) == "" {
		return nil, util.NewValidationError("code", "code is required")
	}
	if utf8.RuneCountInString(req.Code) > maxCodeLength {
		return nil, util.NewValidationError("code", "code exceeds %d characters", maxCodeLength)
	}
	if req.AnalysisType == "" {
		req.AnalysisType = "general"
	}
	if req.ProjectID != nil {
		if err := s.Projects.requireAccess(ctx, userID, *req.ProjectID); err != nil {
			return nil, err
		}
	}

	provider := s.currentProvider()
	analysis := &model.CodeAnalysis{
		UserID:       userID,
		ProjectID:    req.ProjectID,
		Language:     req.Language,
		AnalysisType: req.AnalysisType,
		Code:         req.Code,
		Status:       model.AnalysisInProgress,
	}
	if provider != nil {
		analysis.Provider = provider.Name()
	}
	repo := s.Repo.WithContext(ctx)
	if err := repo.Create(analysis); err != nil {
		return nil, err
	}

	if provider == nil {
		return nil, s.fail(ctx, analysis, errors.New("no ai provider configured"))
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	raw, err := provider.Complete(callCtx, codeReviewSystemPrompt, buildAnalysisPrompt(req))
	if err != nil {
		return nil, s.fail(ctx, analysis, err)
	}

	applyAnalysisResult(analysis, raw)
	analysis.Status = model.AnalysisCompleted
	if err := repo.Save(analysis); err != nil {
		return nil, err
	}
	logger.Log.Info("Code analysis completed",
		zap.String("analysisId", analysis.ID),
		zap.Uint("userId", userID),
		zap.String("provider", analysis.Provider),
	)
	return analysis, nil
}

func (s *CodeAnalysisService) fail(ctx context.Context, analysis *model.CodeAnalysis, cause error) error {
	logger.Log.Error("Code analysis failed",
		zap.String("analysisId", analysis.ID),
		zap.String("provider", analysis.Provider),
		zap.Error(cause),
	)
	analysis.Status = model.AnalysisFailed
	analysis.ErrorMessage = cause.Error()
	// 原请求可能已超时，用独立的 context 写回状态
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Repo.WithContext(saveCtx).Save(analysis); err != nil {
		logger.Log.Error("Failed to persist failed analysis", zap.String("analysisId", analysis.ID), zap.Error(err))
	}
	return fmt.Errorf("code analysis: %v: %w", cause, util.ErrExternalService)
}

func buildAnalysisPrompt(req AnalyzeCodeRequest) string {
	return fmt.Sprintf(`Analyze this %s code for %s:

`+"```%s\n%s\n```"+`

Provide a detailed analysis in JSON format with:
1. summary: one paragraph overview
2. findings: array of issues found (each with: type, severity, description, line_number if applicable)
3. recommendations: array of suggestions for improvement
4. severity_score: overall severity score from 1-10

Return only valid JSON.`, req.Language, req.AnalysisType, req.Language, req.Code)
}

// stripCodeFence 去掉模型常见的 ```json 包裹
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// applyAnalysisResult 无法解析时整段回复作为一条 general 结果
func applyAnalysisResult(a *model.CodeAnalysis, raw string) {
	var result analysisResult
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &result); err == nil {
		a.Summary = result.Summary
		a.Findings = jsonOrEmptyArray(result.Findings)
		a.Recommendations = jsonOrEmptyArray(result.Recommendations)
		score := fallbackSeverityScore
		if result.SeverityScore != nil {
			score = *result.SeverityScore
		}
		a.OverallScore = &score
		return
	}

	findings, _ := json.Marshal([]map[string]string{{
		"type":        "general",
		"severity":    "info",
		"description": raw,
	}})
	score := fallbackSeverityScore
	a.Summary = ""
	a.Findings = datatypes.JSON(findings)
	a.Recommendations = datatypes.JSON("[]")
	a.OverallScore = &score
}

func jsonOrEmptyArray(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || string(raw) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

func (s *CodeAnalysisService) GetAnalysis(ctx context.Context, userID uint, id string) (*model.CodeAnalysis, error) {
	a, err := s.Repo.WithContext(ctx).FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("code analysis %s", id)
		}
		return nil, err
	}
	if a.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return a, nil
}

func (s *CodeAnalysisService) ListAnalyses(ctx context.Context, userID uint, page, limit int) ([]model.CodeAnalysis, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > util.MaxLimit {
		limit = util.DefaultLimit
	}
	return s.Repo.WithContext(ctx).ListByUser(userID, limit, (page-1)*limit)
}

// FailStaleAnalyses 定时清理长时间停留在 in_progress 的记录
func (s *CodeAnalysisService) FailStaleAnalyses(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.Repo.WithContext(ctx).FailStale(time.Now().Add(-olderThan), "analysis timed out")
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Warn("Marked stale code analyses as failed", zap.Int64("count", n))
	}
	return n, nil
}
