package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const unreadCountTTL = 10 * time.Minute

// NotifyRequest 站内通知内容
type NotifyRequest struct {
	RecipientID uint
	SenderID    *uint
	Type        model.NotificationType
	Title       string
	Message     string
	Link        string
	Metadata    map[string]interface{}
}

type NotificationService struct {
	Repo  *repository.NotificationRepository
	Hub   *RelayHub
	Redis *redis.Client
	now   func() time.Time
}

func NewNotificationService(repo *repository.NotificationRepository, hub *RelayHub, rdb *redis.Client) *NotificationService {
	return &NotificationService{Repo: repo, Hub: hub, Redis: rdb, now: time.Now}
}

func unreadCountKey(userID uint) string {
	return fmt.Sprintf("notifications:unread:%d", userID)
}

// Notify 先落库再推送，推送失败不影响结果
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) (*model.Notification, error) {
	if req.RecipientID == 0 {
		return nil, util.NewValidationError("recipientId", "recipient is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, util.NewValidationError("title", "title is required")
	}

	n := &model.Notification{
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		Title:       req.Title,
		Message:     req.Message,
		Link:        req.Link,
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal notification metadata: %w", err)
		}
		n.Metadata = datatypes.JSON(raw)
	}
	if err := s.Repo.WithContext(ctx).Create(n); err != nil {
		return nil, err
	}

	s.invalidateCount(ctx, req.RecipientID)
	if s.Hub != nil {
		s.Hub.PushNotification(req.RecipientID, n)
		s.pushCount(ctx, req.RecipientID)
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, unreadOnly bool, page, limit int) ([]model.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > util.MaxLimit {
		limit = util.DefaultLimit
	}
	return s.Repo.WithContext(ctx).List(userID, unreadOnly, limit, (page-1)*limit)
}

// UnreadCount 启用 Redis 时优先读缓存
func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	if s.Redis != nil {
		val, err := s.Redis.Get(ctx, unreadCountKey(userID)).Result()
		if err == nil {
			if n, err := strconv.ParseInt(val, 10, 64); err == nil {
				return n, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("Unread count cache read failed", zap.Uint("userId", userID), zap.Error(err))
		}
	}

	count, err := s.Repo.WithContext(ctx).CountUnread(userID)
	if err != nil {
		return 0, err
	}
	if s.Redis != nil {
		if err := s.Redis.Set(ctx, unreadCountKey(userID), count, unreadCountTTL).Err(); err != nil {
			logger.Log.Warn("Unread count cache write failed", zap.Uint("userId", userID), zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead 同时作为实时通道的已读回执处理函数；重复标记不报错
func (s *NotificationService) MarkRead(ctx context.Context, userID uint, id string) error {
	repo := s.Repo.WithContext(ctx)
	if _, err := repo.FindForRecipient(id, userID); err != nil {
		if isRecordNotFound(err) {
			return util.NotFoundf("notification %s", id)
		}
		return err
	}
	changed, err := repo.MarkRead(id, userID, s.now())
	if err != nil {
		return err
	}
	if changed {
		s.invalidateCount(ctx, userID)
		s.pushCount(ctx, userID)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	n, err := s.Repo.WithContext(ctx).MarkAllRead(userID, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidateCount(ctx, userID)
		s.pushCount(ctx, userID)
	}
	return n, nil
}

// PruneRead 删除已读超过 retention 的通知，由定时任务调用
func (s *NotificationService) PruneRead(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.Repo.WithContext(ctx).DeleteReadBefore(s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Log.Info("Pruned read notifications", zap.Int64("count", n))
	}
	return n, nil
}

func (s *NotificationService) invalidateCount(ctx context.Context, userID uint) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, unreadCountKey(userID)).Err(); err != nil {
		logger.Log.Warn("Unread count cache invalidation failed", zap.Uint("userId", userID), zap.Error(err))
	}
}

func (s *NotificationService) pushCount(ctx context.Context, userID uint) {
	if s.Hub == nil {
		return
	}
	count, err := s.UnreadCount(ctx, userID)
	if err != nil {
		logger.Log.Warn("Unread count for push failed", zap.Uint("userId", userID), zap.Error(err))
		return
	}
	s.Hub.PushNotificationCount(userID, count)
}
