package model

import (
	"time"
)

type UserRole string

const (
	Student    UserRole = "student"
	Instructor UserRole = "instructor"
	Admin      UserRole = "admin"
)

// PointsPerLevel 每 1000 积分升一级
const PointsPerLevel = 1000

// swagger:model User
type User struct {
	BaseModel
	Name     string     `gorm:"size:100;not null" json:"name"`
	Email    string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Role     UserRole   `gorm:"size:20;default:'student'" json:"role"`
	Bio      string     `gorm:"type:text" json:"bio"`
	Points   int        `gorm:"not null;default:0" json:"points"`
	Level    int        `gorm:"not null;default:1" json:"level"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// LevelForPoints 等级 = floor(points/1000) + 1
func LevelForPoints(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// AddPoints 积分只增不减，非正数忽略
func (u *User) AddPoints(n int) bool {
	if n <= 0 {
		return false
	}
	u.Points += n
	u.Level = LevelForPoints(u.Points)
	return true
}
