package model

import "time"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	CodeCompletion QuestionType = "code_completion"
	MultipleSelect QuestionType = "multiple_select"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer, CodeCompletion, MultipleSelect:
		return true
	}
	return false
}

// NeedsManualGrading 简答与代码补全题无法自动判分
func (t QuestionType) NeedsManualGrading() bool {
	return t == ShortAnswer || t == CodeCompletion
}

// swagger:model Quiz
type Quiz struct {
	BaseModel
	ModuleID      uint       `gorm:"not null;uniqueIndex" json:"moduleId"`
	Title         string     `gorm:"size:200;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	TimeLimit     *int       `json:"timeLimit,omitempty"` // 分钟，仅作提示
	MaxAttempts   int        `gorm:"not null" json:"maxAttempts"`
	PassingScore  int        `gorm:"not null" json:"passingScore"`
	IsActive      bool       `json:"isActive"`
	AvailableFrom *time.Time `json:"availableFrom,omitempty"`
	AvailableTo   *time.Time `json:"availableTo,omitempty"`
	Questions     []Question `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// IsAvailableAt 未设置时间窗口视为始终开放
func (q *Quiz) IsAvailableAt(t time.Time) bool {
	if q.AvailableFrom != nil && t.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableTo != nil && t.After(*q.AvailableTo) {
		return false
	}
	return true
}

// swagger:model Question
type Question struct {
	BaseModel
	QuizID       uint             `gorm:"not null;uniqueIndex:idx_quiz_question_order" json:"quizId"`
	Order        int              `gorm:"not null;uniqueIndex:idx_quiz_question_order" json:"order"`
	QuestionText string           `gorm:"type:text;not null" json:"questionText"`
	QuestionType QuestionType     `gorm:"size:20;not null" json:"questionType"`
	CodeSnippet  string           `gorm:"type:text" json:"codeSnippet"`
	Explanation  string           `gorm:"type:text" json:"explanation"`
	Points       int              `gorm:"not null;default:1" json:"points"`
	Choices      []QuestionChoice `gorm:"foreignKey:QuestionID" json:"choices,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model QuestionChoice
type QuestionChoice struct {
	BaseModel
	QuestionID uint   `gorm:"not null;uniqueIndex:idx_question_choice_order" json:"questionId"`
	Order      int    `gorm:"not null;uniqueIndex:idx_question_choice_order" json:"order"`
	ChoiceText string `gorm:"size:500;not null" json:"choiceText"`
	IsCorrect  bool   `json:"isCorrect"`
}

func (QuestionChoice) TableName() string {
	return "question_choices"
}

// swagger:model QuizAttempt
type QuizAttempt struct {
	BaseModel
	UserID        uint       `gorm:"not null;uniqueIndex:idx_user_quiz_attempt" json:"userId"`
	QuizID        uint       `gorm:"not null;uniqueIndex:idx_user_quiz_attempt" json:"quizId"`
	AttemptNumber int        `gorm:"not null;uniqueIndex:idx_user_quiz_attempt" json:"attemptNumber"`
	StartedAt     time.Time  `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	TimeTaken     *int       `json:"timeTaken,omitempty"` // 秒
	Score         int        `json:"score"`
	IsPassed      bool       `json:"isPassed"`
	IsCompleted   bool       `gorm:"index" json:"isCompleted"`
	// ExceededTimeLimit 超时只做记录，不影响判分
	ExceededTimeLimit bool     `json:"exceededTimeLimit"`
	IPAddress         string   `gorm:"size:64" json:"-"`
	Answers           []Answer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// swagger:model Answer
type Answer struct {
	BaseModel
	AttemptID       uint             `gorm:"not null;uniqueIndex:idx_attempt_question" json:"attemptId"`
	QuestionID      uint             `gorm:"not null;uniqueIndex:idx_attempt_question" json:"questionId"`
	AnswerText      string           `gorm:"type:text" json:"answerText"`
	SelectedChoices []QuestionChoice `gorm:"many2many:answer_selected_choices;" json:"selectedChoices,omitempty"`
	// IsCorrect 为 nil 表示待人工评分
	IsCorrect    *bool `json:"isCorrect"`
	PointsEarned int   `json:"pointsEarned"`
}

func (Answer) TableName() string {
	return "answers"
}

// ApplyGrade 每次保存前调用，得分始终由判定结果推出
func (a *Answer) ApplyGrade(isCorrect *bool, questionPoints int) {
	a.IsCorrect = isCorrect
	if isCorrect != nil && *isCorrect {
		a.PointsEarned = questionPoints
	} else {
		a.PointsEarned = 0
	}
}
