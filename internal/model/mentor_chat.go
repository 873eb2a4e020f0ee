package model

import "time"

type ChatSessionStatus string

const (
	ChatSessionActive    ChatSessionStatus = "active"
	ChatSessionCompleted ChatSessionStatus = "completed"
	ChatSessionFailed    ChatSessionStatus = "failed"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatSession 导师对话会话；最近一次模型调用失败时为 failed，下一条成功回复后恢复 active
// swagger:model ChatSession
type ChatSession struct {
	UUIDBase
	UserID        uint              `gorm:"not null;index" json:"userId"`
	ProjectID     *uint             `gorm:"index" json:"projectId,omitempty"`
	SessionType   string            `gorm:"size:30;not null;default:general" json:"sessionType"`
	Title         string            `gorm:"size:200" json:"title"`
	Status        ChatSessionStatus `gorm:"size:20;not null;default:active" json:"status"`
	TotalMessages int               `gorm:"not null;default:0" json:"totalMessages"`
	LastError     string            `gorm:"type:text" json:"lastError,omitempty"`
	LastActivity  time.Time         `gorm:"index" json:"lastActivity"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	Messages      []ChatMessage     `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

func (ChatSession) TableName() string {
	return "mentor_chat_sessions"
}

// ChatMessage UserID 冗余存储，用于统计每日回复数
// swagger:model ChatMessage
type ChatMessage struct {
	UUIDBase
	SessionID string `gorm:"type:varchar(36);not null;index" json:"sessionId"`
	UserID    uint   `gorm:"not null;index" json:"userId"`
	Role      string `gorm:"size:20;not null" json:"role"`
	Content   string `gorm:"type:text;not null" json:"content"`
}

func (ChatMessage) TableName() string {
	return "mentor_chat_messages"
}
