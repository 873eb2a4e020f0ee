package repository

import (
	"codehub_backend/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type ChatRepository struct {
	DB *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{DB: db}
}

func (r *ChatRepository) WithContext(ctx context.Context) *ChatRepository {
	return &ChatRepository{DB: r.DB.WithContext(ctx)}
}

func (r *ChatRepository) CreateSession(s *model.ChatSession) error {
	return r.DB.Create(s).Error
}

func (r *ChatRepository) FindSession(id string) (*model.ChatSession, error) {
	var s model.ChatSession
	err := r.DB.Where("id = ?", id).First(&s).Error
	return &s, err
}

func (r *ChatRepository) SaveSession(s *model.ChatSession) error {
	return r.DB.Omit("Messages").Save(s).Error
}

// ListSessions projectID 为空时返回全部会话
func (r *ChatRepository) ListSessions(userID uint, projectID *uint) ([]model.ChatSession, error) {
	var list []model.ChatSession
	q := r.DB.Where("user_id = ?", userID)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	err := q.Order("last_activity DESC").Find(&list).Error
	return list, err
}

func (r *ChatRepository) AddMessage(m *model.ChatMessage) error {
	return r.DB.Create(m).Error
}

// RecentMessages 取最近 limit 条，按时间正序返回
func (r *ChatRepository) RecentMessages(sessionID string, limit int) ([]model.ChatMessage, error) {
	var list []model.ChatMessage
	err := r.DB.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).Find(&list).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

func (r *ChatRepository) Messages(sessionID string) ([]model.ChatMessage, error) {
	var list []model.ChatMessage
	err := r.DB.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&list).Error
	return list, err
}

// CountRepliesSince 统计用户自 since 起收到的助手回复
func (r *ChatRepository) CountRepliesSince(userID uint, since time.Time) (int64, error) {
	var n int64
	err := r.DB.Model(&model.ChatMessage{}).
		Where("user_id = ? AND role = ? AND created_at >= ?", userID, model.ChatRoleAssistant, since).
		Count(&n).Error
	return n, err
}
