package model

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationProjectInvite NotificationType = "project_invite"
	NotificationTaskAssigned  NotificationType = "task_assigned"
	NotificationAchievement   NotificationType = "achievement"
	NotificationMention       NotificationType = "mention"
	NotificationSystem        NotificationType = "system"
	NotificationPostLike      NotificationType = "post_like"
	NotificationComment       NotificationType = "comment"
	NotificationCommentReply  NotificationType = "comment_reply"
	NotificationCommentLike   NotificationType = "comment_like"
)

// swagger:model Notification
type Notification struct {
	UUIDBase
	RecipientID uint             `gorm:"not null;index:idx_recipient_read" json:"recipientId"`
	SenderID    *uint            `json:"senderId,omitempty"`
	Type        NotificationType `gorm:"size:30;not null" json:"type"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	Message     string           `gorm:"type:text" json:"message"`
	Link        string           `gorm:"size:255" json:"link,omitempty"`
	Metadata    datatypes.JSON   `json:"metadata,omitempty"`
	IsRead      bool             `gorm:"index:idx_recipient_read" json:"isRead"`
	ReadAt      *time.Time       `json:"readAt,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

// MarkRead 已读状态只设置一次
func (n *Notification) MarkRead(now time.Time) bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	n.ReadAt = &now
	return true
}
