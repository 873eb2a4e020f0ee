package model

type ProgramType string

const (
	ProgramFrontend ProgramType = "frontend"
	ProgramBackend  ProgramType = "backend"
	ProgramDevOps   ProgramType = "devops"
	ProgramData     ProgramType = "data"
	ProgramMobile   ProgramType = "mobile"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// swagger:model CareerPath
type CareerPath struct {
	BaseModel
	Name              string      `gorm:"size:200;not null" json:"name"`
	Slug              string      `gorm:"size:200;uniqueIndex;not null" json:"slug"`
	Description       string      `gorm:"type:text" json:"description"`
	ProgramType       ProgramType `gorm:"size:20" json:"programType"`
	DifficultyLevel   Difficulty  `gorm:"size:20" json:"difficultyLevel"`
	EstimatedDuration int         `json:"estimatedDuration"` // 周
	// TotalModules 仅作展示，完成判定以当前启用模块数为准
	TotalModules int              `json:"totalModules"`
	PointsReward int              `json:"pointsReward"`
	IsActive     bool             `gorm:"index" json:"isActive"`
	Modules      []LearningModule `gorm:"foreignKey:CareerPathID" json:"modules,omitempty"`
}

func (CareerPath) TableName() string {
	return "career_paths"
}

// swagger:model LearningModule
type LearningModule struct {
	BaseModel
	CareerPathID      uint   `gorm:"not null;uniqueIndex:idx_path_module_number" json:"careerPathId"`
	ModuleNumber      int    `gorm:"not null;uniqueIndex:idx_path_module_number" json:"moduleNumber"`
	Title             string `gorm:"size:200;not null" json:"title"`
	Description       string `gorm:"type:text" json:"description"`
	Content           string `gorm:"type:text" json:"content"`
	EstimatedDuration int    `json:"estimatedDuration"` // 小时
	PointsReward      int    `json:"pointsReward"`
	IsActive          bool   `gorm:"index" json:"isActive"`
	Quiz              *Quiz  `gorm:"foreignKey:ModuleID" json:"quiz,omitempty"`
}

func (LearningModule) TableName() string {
	return "learning_modules"
}
