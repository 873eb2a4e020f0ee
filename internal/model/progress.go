package model

import "time"

// swagger:model UserProgress
type UserProgress struct {
	BaseModel
	UserID            uint             `gorm:"not null;uniqueIndex:idx_user_career_path" json:"userId"`
	CareerPathID      uint             `gorm:"not null;uniqueIndex:idx_user_career_path" json:"careerPathId"`
	CurrentModuleID   *uint            `json:"currentModuleId,omitempty"`
	TotalPointsEarned int              `json:"totalPointsEarned"`
	IsCompleted       bool             `json:"isCompleted"`
	CompletionDate    *time.Time       `json:"completionDate,omitempty"`
	StartedAt         time.Time        `json:"startedAt"`
	CompletedModules  []ProgressModule `gorm:"foreignKey:UserProgressID" json:"completedModules,omitempty"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}

// ProgressModule 已完成模块集合，(progress, module) 唯一
type ProgressModule struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserProgressID   uint      `gorm:"not null;uniqueIndex:idx_progress_module" json:"userProgressId"`
	LearningModuleID uint      `gorm:"not null;uniqueIndex:idx_progress_module" json:"learningModuleId"`
	CompletedAt      time.Time `json:"completedAt"`
}

func (ProgressModule) TableName() string {
	return "user_progress_modules"
}
