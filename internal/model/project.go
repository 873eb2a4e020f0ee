package model

import (
	"time"

	"gorm.io/datatypes"
)

type ProjectStatus string

const (
	ProjectPlanning   ProjectStatus = "planning"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectArchived   ProjectStatus = "archived"
)

type ProjectRole string

const (
	ProjectOwner      ProjectRole = "owner"
	ProjectMaintainer ProjectRole = "maintainer"
	ProjectMember     ProjectRole = "member"
	ProjectViewer     ProjectRole = "viewer"
)

// swagger:model Project
type Project struct {
	BaseModel
	Title       string              `gorm:"size:200;not null" json:"title"`
	Description string              `gorm:"type:text" json:"description"`
	OwnerID     uint                `gorm:"not null;index" json:"ownerId"`
	Status      ProjectStatus       `gorm:"size:20;default:'planning'" json:"status"`
	IsPublic    bool                `json:"isPublic"`
	RepoURL     string              `gorm:"size:255" json:"repoUrl"`
	Members     []ProjectMembership `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
}

func (Project) TableName() string {
	return "projects"
}

// swagger:model ProjectMembership
type ProjectMembership struct {
	BaseModel
	ProjectID uint        `gorm:"not null;uniqueIndex:idx_project_member" json:"projectId"`
	UserID    uint        `gorm:"not null;uniqueIndex:idx_project_member" json:"userId"`
	Role      ProjectRole `gorm:"size:20;default:'member'" json:"role"`
	IsActive  bool        `json:"isActive"`
	JoinedAt  time.Time   `json:"joinedAt"`
}

func (ProjectMembership) TableName() string {
	return "project_memberships"
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskReview, TaskDone:
		return true
	}
	return false
}

// swagger:model ProjectTask
type ProjectTask struct {
	BaseModel
	ProjectID   uint           `gorm:"not null;index" json:"projectId"`
	Title       string         `gorm:"size:200;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      TaskStatus     `gorm:"size:20;default:'todo'" json:"status"`
	Priority    int            `json:"priority"`
	AssigneeID  *uint          `json:"assigneeId,omitempty"`
	CreatedByID uint           `json:"createdById"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Labels      datatypes.JSON `json:"labels,omitempty"`
}

func (ProjectTask) TableName() string {
	return "project_tasks"
}
