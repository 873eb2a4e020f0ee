package model

import (
	"gorm.io/datatypes"
)

type AnalysisStatus string

const (
	AnalysisInProgress AnalysisStatus = "in_progress"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// swagger:model CodeAnalysis
type CodeAnalysis struct {
	UUIDBase
	UserID          uint           `gorm:"not null;index" json:"userId"`
	ProjectID       *uint          `gorm:"index" json:"projectId,omitempty"`
	Language        string         `gorm:"size:50" json:"language"`
	AnalysisType    string         `gorm:"size:30" json:"analysisType"`
	Code            string         `gorm:"type:text;not null" json:"code"`
	Status          AnalysisStatus `gorm:"size:20;index" json:"status"`
	Summary         string         `gorm:"type:text" json:"summary"`
	Findings        datatypes.JSON `json:"findings,omitempty"`
	Recommendations datatypes.JSON `json:"recommendations,omitempty"`
	OverallScore    *int           `json:"overallScore,omitempty"`
	ErrorMessage    string         `gorm:"type:text" json:"errorMessage,omitempty"`
	Provider        string         `gorm:"size:30" json:"provider"`
}

func (CodeAnalysis) TableName() string {
	return "code_analyses"
}
