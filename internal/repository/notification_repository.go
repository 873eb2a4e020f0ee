package repository

import (
	"codehub_backend/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type NotificationRepository struct {
	DB *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

func (r *NotificationRepository) WithContext(ctx context.Context) *NotificationRepository {
	return &NotificationRepository{DB: r.DB.WithContext(ctx)}
}

func (r *NotificationRepository) Create(n *model.Notification) error {
	return r.DB.Create(n).Error
}

func (r *NotificationRepository) FindForRecipient(id string, recipientID uint) (*model.Notification, error) {
	var n model.Notification
	err := r.DB.Where("id = ? AND recipient_id = ?", id, recipientID).First(&n).Error
	return &n, err
}

func (r *NotificationRepository) List(recipientID uint, unreadOnly bool, limit, offset int) ([]model.Notification, int64, error) {
	var (
		list  []model.Notification
		total int64
	)
	q := r.DB.Model(&model.Notification{}).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

func (r *NotificationRepository) CountUnread(recipientID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Count(&count).Error
	return count, err
}

// MarkRead 仅更新未读记录，返回是否发生变化
func (r *NotificationRepository) MarkRead(id string, recipientID uint, at time.Time) (bool, error) {
	res := r.DB.Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = ?", id, recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected == 1, res.Error
}

func (r *NotificationRepository) MarkAllRead(recipientID uint, at time.Time) (int64, error) {
	res := r.DB.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return res.RowsAffected, res.Error
}

// DeleteReadBefore 清理过期的已读通知
func (r *NotificationRepository) DeleteReadBefore(before time.Time) (int64, error) {
	res := r.DB.Where("is_read = ? AND read_at < ?", true, before).Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}
