package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/monitoring"
	"codehub_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	mentorSystemPrompt = `You are an experienced programming mentor. Help the learner understand concepts,
debug problems and improve their code. Prefer explanations and hints over complete solutions,
and keep answers focused on the question.`
	maxChatMessageLength = 4000
	maxSessionTitle      = 50
)

var sessionTypes = map[string]bool{
	"general":       true,
	"code_review":   true,
	"debugging":     true,
	"architecture":  true,
	"best_practice": true,
}

type SendMessageInput struct {
	SessionID   string `json:"sessionId"`
	ProjectID   *uint  `json:"projectId"`
	SessionType string `json:"sessionType"`
	Message     string `json:"message" binding:"required"`
	CodeSnippet string `json:"codeSnippet"`
	Language    string `json:"language"`
}

type ChatReply struct {
	Session        *model.ChatSession `json:"session"`
	Reply          *model.ChatMessage `json:"reply"`
	RemainingToday int                `json:"remainingToday"`
}

type MentorChatService struct {
	Repo       *repository.ChatRepository
	Projects   *ProjectService
	Timeout    time.Duration
	History    int
	now        func() time.Time

	mu         sync.RWMutex
	provider   LLMProvider
	dailyLimit int
}

func NewMentorChatService(repo *repository.ChatRepository, projects *ProjectService, provider LLMProvider, cfg config.AIConfig) *MentorChatService {
	s := &MentorChatService{
		Repo:       repo,
		Projects:   projects,
		Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		History:    cfg.HistoryMessages,
		dailyLimit: cfg.DailyMessageLimit,
		now:        time.Now,
		provider:   provider,
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if s.History <= 0 {
		s.History = 20
	}
	return s
}

func (s *MentorChatService) SetProvider(p LLMProvider) {
	s.mu.Lock()
	s.provider = p
	s.mu.Unlock()
}

// SetDailyLimit n <= 0 表示不限
func (s *MentorChatService) SetDailyLimit(n int) {
	s.mu.Lock()
	s.dailyLimit = n
	s.mu.Unlock()
}

func (s *MentorChatService) currentLimit() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dailyLimit
}

func (s *MentorChatService) currentProvider() LLMProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// startOfDay 本地时区零点
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// remaining 不限时返回 -1
func (s *MentorChatService) remaining(ctx context.Context, userID uint, limit int) (int, error) {
	if limit <= 0 {
		return -1, nil
	}
	used, err := s.Repo.WithContext(ctx).CountRepliesSince(userID, startOfDay(s.now()))
	if err != nil {
		return 0, err
	}
	left := limit - int(used)
	if left < 0 {
		left = 0
	}
	return left, nil
}

// SendMessage 用户消息先落库；模型调用失败时会话标记为 failed 并返回 ErrExternalService
func (s *MentorChatService) SendMessage(ctx context.Context, userID uint, in SendMessageInput) (_ *ChatReply, err error) {
	ctx, span := tracing.StartSpan(ctx, "MentorChatService.SendMessage", attribute.String("chat.session_id", in.SessionID))
	defer func() { tracing.EndWithError(span, err) }()

	in.Message = strings.TrimSpace(in.Message)
	if in.Message == "" {
		return nil, util.NewValidationError("message", "message is required")
	}
	if utf8.RuneCountInString(in.Message) > maxChatMessageLength {
		return nil, util.NewValidationError("message", "message exceeds %d characters", maxChatMessageLength)
	}
	if utf8.RuneCountInString(in.CodeSnippet) > maxCodeLength {
		return nil, util.NewValidationError("codeSnippet", "code exceeds %d characters", maxCodeLength)
	}

	limit := s.currentLimit()
	left, err := s.remaining(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if left == 0 {
		monitoring.MentorMessageCounter.WithLabelValues("limited").Inc()
		return nil, fmt.Errorf("%d replies per day: %w", limit, util.ErrRateLimited)
	}

	session, err := s.openSession(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	repo := s.Repo.WithContext(ctx)
	userMsg := &model.ChatMessage{
		SessionID: session.ID,
		UserID:    userID,
		Role:      model.ChatRoleUser,
		Content:   composeUserMessage(in),
	}
	if err := repo.AddMessage(userMsg); err != nil {
		return nil, err
	}
	session.TotalMessages++
	session.LastActivity = s.now()

	provider := s.currentProvider()
	if provider == nil {
		return nil, s.failSession(ctx, session, errors.New("no ai provider configured"))
	}

	history, err := repo.RecentMessages(session.ID, s.History)
	if err != nil {
		return nil, err
	}
	turns := make([]AIChatMessage, 0, len(history))
	for _, m := range history {
		turns = append(turns, AIChatMessage{Role: m.Role, Content: m.Content})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	answer, err := provider.Chat(callCtx, mentorSystemPrompt, turns)
	if err != nil {
		return nil, s.failSession(ctx, session, err)
	}

	reply := &model.ChatMessage{
		SessionID: session.ID,
		UserID:    userID,
		Role:      model.ChatRoleAssistant,
		Content:   answer,
	}
	if err := repo.AddMessage(reply); err != nil {
		return nil, err
	}
	session.TotalMessages++
	session.Status = model.ChatSessionActive
	session.LastError = ""
	session.LastActivity = s.now()
	if err := repo.SaveSession(session); err != nil {
		return nil, err
	}

	monitoring.MentorMessageCounter.WithLabelValues("replied").Inc()
	logger.Log.Info("Mentor replied",
		zap.String("sessionId", session.ID),
		zap.Uint("userId", userID),
		zap.String("provider", provider.Name()),
	)
	if left > 0 {
		left--
	}
	return &ChatReply{Session: session, Reply: reply, RemainingToday: left}, nil
}

// openSession 无 SessionID 时新建会话，标题取消息开头
func (s *MentorChatService) openSession(ctx context.Context, userID uint, in SendMessageInput) (*model.ChatSession, error) {
	if in.SessionID != "" {
		session, err := s.findOwned(ctx, userID, in.SessionID)
		if err != nil {
			return nil, err
		}
		if session.Status == model.ChatSessionCompleted {
			return nil, util.NewValidationError("sessionId", "session is completed")
		}
		return session, nil
	}

	if in.SessionType == "" {
		in.SessionType = "general"
	}
	if !sessionTypes[in.SessionType] {
		return nil, util.NewValidationError("sessionType", "unknown session type %q", in.SessionType)
	}
	if in.ProjectID != nil {
		if err := s.Projects.requireAccess(ctx, userID, *in.ProjectID); err != nil {
			return nil, err
		}
	}
	session := &model.ChatSession{
		UserID:       userID,
		ProjectID:    in.ProjectID,
		SessionType:  in.SessionType,
		Title:        sessionTitle(in.Message),
		Status:       model.ChatSessionActive,
		LastActivity: s.now(),
	}
	if err := s.Repo.WithContext(ctx).CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *MentorChatService) failSession(ctx context.Context, session *model.ChatSession, cause error) error {
	monitoring.MentorMessageCounter.WithLabelValues("failed").Inc()
	logger.Log.Error("Mentor chat failed",
		zap.String("sessionId", session.ID),
		zap.Uint("userId", session.UserID),
		zap.Error(cause),
	)
	session.Status = model.ChatSessionFailed
	session.LastError = cause.Error()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Repo.WithContext(saveCtx).SaveSession(session); err != nil {
		logger.Log.Error("Failed to persist failed chat session", zap.String("sessionId", session.ID), zap.Error(err))
	}
	return fmt.Errorf("mentor chat: %v: %w", cause, util.ErrExternalService)
}

// findOwned 他人的会话按不存在处理
func (s *MentorChatService) findOwned(ctx context.Context, userID uint, id string) (*model.ChatSession, error) {
	session, err := s.Repo.WithContext(ctx).FindSession(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("chat session %s", id)
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, util.NotFoundf("chat session %s", id)
	}
	return session, nil
}

func (s *MentorChatService) GetSession(ctx context.Context, userID uint, id string) (*model.ChatSession, error) {
	session, err := s.findOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	session.Messages, err = s.Repo.WithContext(ctx).Messages(id)
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *MentorChatService) ListSessions(ctx context.Context, userID uint, projectID *uint) ([]model.ChatSession, error) {
	return s.Repo.WithContext(ctx).ListSessions(userID, projectID)
}

// CompleteSession 结束后不再接受新消息，重复调用无副作用
func (s *MentorChatService) CompleteSession(ctx context.Context, userID uint, id string) (*model.ChatSession, error) {
	session, err := s.findOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if session.Status == model.ChatSessionCompleted {
		return session, nil
	}
	now := s.now()
	session.Status = model.ChatSessionCompleted
	session.CompletedAt = &now
	if err := s.Repo.WithContext(ctx).SaveSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func composeUserMessage(in SendMessageInput) string {
	if strings.TrimSpace(in.CodeSnippet) == "" {
		return in.Message
	}
	return fmt.Sprintf("%s\n\n```%s\n%s\n```", in.Message, in.Language, in.CodeSnippet)
}

func sessionTitle(msg string) string {
	runes := []rune(strings.Join(strings.Fields(msg), " "))
	if len(runes) <= maxSessionTitle {
		return string(runes)
	}
	return string(runes[:maxSessionTitle]) + "..."
}
