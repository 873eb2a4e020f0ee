package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/monitoring"
	"codehub_backend/pkg/tracing"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// 并发开始测验时 attempt_number 冲突的重试次数
	maxStartRetries = 5
	// 未指定时的默认作答次数
	defaultMaxAttempts = 3
)

type QuizService struct {
	QuizRepo    *repository.QuizRepository
	CatalogRepo *repository.CatalogRepository
	DB          *gorm.DB
	now         func() time.Time
}

func NewQuizService(quizRepo *repository.QuizRepository, catalogRepo *repository.CatalogRepository, db *gorm.DB) *QuizService {
	return &QuizService{
		QuizRepo:    quizRepo,
		CatalogRepo: catalogRepo,
		DB:          db,
		now:         time.Now,
	}
}

// QuizInput 讲师创建测验，题目与选项按数组顺序编号
type QuizInput struct {
	Title         string          `json:"title" binding:"required"`
	Description   string          `json:"description"`
	TimeLimit     *int            `json:"timeLimit"`
	MaxAttempts   *int            `json:"maxAttempts"`
	PassingScore  int             `json:"passingScore"`
	AvailableFrom *time.Time      `json:"availableFrom"`
	AvailableTo   *time.Time      `json:"availableTo"`
	Questions     []QuestionInput `json:"questions"`
}

type QuestionInput struct {
	QuestionText string             `json:"questionText"`
	QuestionType model.QuestionType `json:"questionType"`
	CodeSnippet  string             `json:"codeSnippet"`
	Explanation  string             `json:"explanation"`
	Points       int                `json:"points"`
	Choices      []ChoiceInput      `json:"choices"`
}

type ChoiceInput struct {
	ChoiceText string `json:"choiceText"`
	IsCorrect  bool   `json:"isCorrect"`
}

// SubmittedAnswer 单题作答
type SubmittedAnswer struct {
	QuestionID        uint   `json:"questionId"`
	SelectedChoiceIDs []uint `json:"selectedChoiceIds"`
	AnswerText        string `json:"answerText"`
}

// QuizView 学生端测验视图，不含正确答案与解析
type QuizView struct {
	ID            uint           `json:"id"`
	ModuleID      uint           `json:"moduleId"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	TimeLimit     *int           `json:"timeLimit,omitempty"`
	MaxAttempts   int            `json:"maxAttempts"`
	PassingScore  int            `json:"passingScore"`
	AvailableFrom *time.Time     `json:"availableFrom,omitempty"`
	AvailableTo   *time.Time     `json:"availableTo,omitempty"`
	Questions     []QuestionView `json:"questions"`
}

type QuestionView struct {
	ID           uint               `json:"id"`
	Order        int                `json:"order"`
	QuestionText string             `json:"questionText"`
	QuestionType model.QuestionType `json:"questionType"`
	CodeSnippet  string             `json:"codeSnippet,omitempty"`
	Points       int                `json:"points"`
	Choices      []ChoiceView       `json:"choices"`
}

type ChoiceView struct {
	ID         uint   `json:"id"`
	Order      int    `json:"order"`
	ChoiceText string `json:"choiceText"`
}

// CreateQuiz 校验通过后在一个事务里写入测验、题目与选项；每个模块最多一个测验
func (s *QuizService) CreateQuiz(ctx context.Context, moduleID uint, in QuizInput) (*model.Quiz, error) {
	quiz, err := buildQuiz(moduleID, in)
	if err != nil {
		return nil, err
	}
	db := s.DB.WithContext(ctx)
	if _, err := s.CatalogRepo.WithTx(db).FindModule(moduleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("module %d", moduleID)
		}
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		return s.QuizRepo.WithTx(tx).CreateQuiz(quiz)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.NewValidationError("moduleId", "module %d already has a quiz", moduleID)
		}
		return nil, err
	}
	logger.Log.Info("quiz created",
		zap.Uint("quizId", quiz.ID),
		zap.Uint("moduleId", moduleID),
		zap.Int("questions", len(quiz.Questions)),
	)
	return quiz, nil
}

func buildQuiz(moduleID uint, in QuizInput) (*model.Quiz, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, util.NewValidationError("title", "title is required")
	}
	if in.PassingScore < 0 || in.PassingScore > 100 {
		return nil, util.NewValidationError("passingScore", "passing score must be between 0 and 100")
	}
	maxAttempts := defaultMaxAttempts
	if in.MaxAttempts != nil {
		maxAttempts = *in.MaxAttempts
	}
	if maxAttempts < 0 {
		return nil, util.NewValidationError("maxAttempts", "max attempts cannot be negative")
	}
	if in.TimeLimit != nil && *in.TimeLimit < 0 {
		return nil, util.NewValidationError("timeLimit", "time limit cannot be negative")
	}
	if in.AvailableFrom != nil && in.AvailableTo != nil && in.AvailableTo.Before(*in.AvailableFrom) {
		return nil, util.NewValidationError("availableTo", "availableTo is before availableFrom")
	}
	if len(in.Questions) == 0 {
		return nil, util.NewValidationError("questions", "at least one question is required")
	}

	quiz := &model.Quiz{
		ModuleID:      moduleID,
		Title:         in.Title,
		Description:   in.Description,
		TimeLimit:     in.TimeLimit,
		MaxAttempts:   maxAttempts,
		PassingScore:  in.PassingScore,
		IsActive:      true,
		AvailableFrom: in.AvailableFrom,
		AvailableTo:   in.AvailableTo,
		Questions:     make([]model.Question, 0, len(in.Questions)),
	}
	for i, qi := range in.Questions {
		q, err := buildQuestion(i, qi)
		if err != nil {
			return nil, err
		}
		quiz.Questions = append(quiz.Questions, *q)
	}
	return quiz, nil
}

func buildQuestion(i int, in QuestionInput) (*model.Question, error) {
	field := fmt.Sprintf("questions[%d]", i)
	if strings.TrimSpace(in.QuestionText) == "" {
		return nil, util.NewValidationError(field+".questionText", "is required")
	}
	if !in.QuestionType.Valid() {
		return nil, util.NewValidationError(field+".questionType", "unsupported question type %q", in.QuestionType)
	}
	points := in.Points
	if points == 0 {
		points = 1
	}
	if points < 0 {
		return nil, util.NewValidationError(field+".points", "points cannot be negative")
	}

	correct := 0
	for _, c := range in.Choices {
		if c.IsCorrect {
			correct++
		}
	}
	switch in.QuestionType {
	case model.MultipleChoice, model.TrueFalse:
		if len(in.Choices) < 2 || correct != 1 {
			return nil, util.NewValidationError(field+".choices", "needs at least two choices and exactly one correct")
		}
	case model.MultipleSelect:
		if len(in.Choices) < 2 || correct == 0 {
			return nil, util.NewValidationError(field+".choices", "needs at least two choices and one or more correct")
		}
	default:
		// 人工评分题不带选项
		if len(in.Choices) > 0 {
			return nil, util.NewValidationError(field+".choices", "%s questions take no choices", in.QuestionType)
		}
	}

	q := &model.Question{
		Order:        i + 1,
		QuestionText: in.QuestionText,
		QuestionType: in.QuestionType,
		CodeSnippet:  in.CodeSnippet,
		Explanation:  in.Explanation,
		Points:       points,
	}
	for j, c := range in.Choices {
		if strings.TrimSpace(c.ChoiceText) == "" {
			return nil, util.NewValidationError(fmt.Sprintf("%s.choices[%d].choiceText", field, j), "is required")
		}
		q.Choices = append(q.Choices, model.QuestionChoice{
			Order:      j + 1,
			ChoiceText: c.ChoiceText,
			IsCorrect:  c.IsCorrect,
		})
	}
	return q, nil
}

func (s *QuizService) loadActiveQuiz(quizID uint) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByID(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("quiz %d", quizID)
		}
		return nil, err
	}
	if !quiz.IsActive {
		return nil, util.NotFoundf("quiz %d", quizID)
	}
	return quiz, nil
}

// StartAttempt 创建新的测验尝试，序号从 1 开始连续递增
func (s *QuizService) StartAttempt(ctx context.Context, userID, quizID uint, ip string) (*model.QuizAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "QuizService.StartAttempt")
	defer span.End()

	quiz, err := s.loadActiveQuiz(quizID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !quiz.IsAvailableAt(now) {
		return nil, util.NewValidationError("quiz", "quiz is not available at this time")
	}

	repo := s.QuizRepo.WithTx(s.DB.WithContext(ctx))
	for i := 0; i < maxStartRetries; i++ {
		count, err := repo.CountAttempts(userID, quizID)
		if err != nil {
			return nil, err
		}
		if quiz.MaxAttempts > 0 && int(count) >= quiz.MaxAttempts {
			monitoring.QuizAttemptCounter.WithLabelValues("limit_exceeded").Inc()
			return nil, util.ErrAttemptLimitExceeded
		}

		attempt := &model.QuizAttempt{
			UserID:        userID,
			QuizID:        quizID,
			AttemptNumber: int(count) + 1,
			StartedAt:     now,
			IPAddress:     ip,
		}
		err = repo.CreateAttempt(attempt)
		if err == nil {
			monitoring.QuizAttemptCounter.WithLabelValues("started").Inc()
			return attempt, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// 另一请求抢到了同一序号，重新计数
		logger.Log.Debug("attempt number taken, retrying",
			zap.Uint("userId", userID), zap.Uint("quizId", quizID), zap.Int("attemptNumber", attempt.AttemptNumber))
	}
	return nil, fmt.Errorf("start attempt for quiz %d: attempt number still contended after %d tries", quizID, maxStartRetries)
}

// SubmitAttempt 校验、判分并一次性写入；同一尝试只能提交一次
func (s *QuizService) SubmitAttempt(ctx context.Context, userID, attemptID uint, submitted []SubmittedAnswer) (_ *model.QuizAttempt, err error) {
	ctx, span := tracing.StartSpan(ctx, "QuizService.SubmitAttempt", attribute.Int64("attempt.id", int64(attemptID)))
	defer func() { tracing.EndWithError(span, err) }()

	attempt, err := s.QuizRepo.FindAttempt(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("attempt %d", attemptID)
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.IsCompleted {
		return nil, util.ErrAttemptAlreadyCompleted
	}

	quiz, err := s.QuizRepo.FindWithQuestions(attempt.QuizID)
	if err != nil {
		return nil, err
	}

	answers, err := gradeSubmission(quiz, submitted)
	if err != nil {
		return nil, err
	}

	correct := 0
	for _, a := range answers {
		if a.IsCorrect != nil && *a.IsCorrect {
			correct++
		}
	}
	score := ScorePercent(correct, len(answers))
	passed := score >= quiz.PassingScore

	now := s.now()
	timeTaken := int(now.Sub(attempt.StartedAt).Seconds())
	if timeTaken < 0 {
		timeTaken = 0
	}
	exceeded := quiz.TimeLimit != nil && *quiz.TimeLimit > 0 && timeTaken > *quiz.TimeLimit*60

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuizRepo.WithTx(tx)
		affected, err := repo.CompleteAttempt(attempt.ID, map[string]interface{}{
			"completed_at":        now,
			"time_taken":          timeTaken,
			"score":               score,
			"is_passed":           passed,
			"exceeded_time_limit": exceeded,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return util.ErrAttemptAlreadyCompleted
		}

		for i := range answers {
			answers[i].AttemptID = attempt.ID
		}
		return repo.CreateAnswers(answers)
	})
	if err != nil {
		return nil, err
	}

	if passed {
		monitoring.QuizAttemptCounter.WithLabelValues("passed").Inc()
	} else {
		monitoring.QuizAttemptCounter.WithLabelValues("failed").Inc()
	}
	logger.Log.Info("quiz attempt submitted",
		zap.Uint("userId", userID),
		zap.Uint("attemptId", attempt.ID),
		zap.Int("score", score),
		zap.Bool("passed", passed),
	)

	return s.QuizRepo.FindAttemptWithAnswers(attempt.ID)
}

// gradeSubmission 在写库前完成全部校验
func gradeSubmission(quiz *model.Quiz, submitted []SubmittedAnswer) ([]model.Answer, error) {
	questions := make(map[uint]*model.Question, len(quiz.Questions))
	for i := range quiz.Questions {
		questions[quiz.Questions[i].ID] = &quiz.Questions[i]
	}

	seen := make(map[uint]bool, len(submitted))
	answers := make([]model.Answer, 0, len(submitted))
	for i, sa := range submitted {
		if sa.QuestionID == 0 {
			return nil, util.NewValidationError(fmt.Sprintf("answers[%d].questionId", i), "is required")
		}
		if seen[sa.QuestionID] {
			return nil, util.NewValidationError(fmt.Sprintf("answers[%d].questionId", i), "question %d answered more than once", sa.QuestionID)
		}
		seen[sa.QuestionID] = true

		q, ok := questions[sa.QuestionID]
		if !ok {
			return nil, util.NotFoundf("question %d in quiz %d", sa.QuestionID, quiz.ID)
		}

		choices := make(map[uint]model.QuestionChoice, len(q.Choices))
		for _, c := range q.Choices {
			choices[c.ID] = c
		}
		selected := make([]model.QuestionChoice, 0, len(sa.SelectedChoiceIDs))
		picked := make(map[uint]bool, len(sa.SelectedChoiceIDs))
		for _, id := range sa.SelectedChoiceIDs {
			c, ok := choices[id]
			if !ok {
				return nil, util.NewValidationError(fmt.Sprintf("answers[%d].selectedChoiceIds", i), "choice %d does not belong to question %d", id, q.ID)
			}
			if picked[id] {
				continue
			}
			picked[id] = true
			selected = append(selected, c)
		}

		answer := model.Answer{
			QuestionID:      q.ID,
			AnswerText:      sa.AnswerText,
			SelectedChoices: selected,
		}
		answer.ApplyGrade(GradeAnswer(q, sa.SelectedChoiceIDs), q.Points)
		answers = append(answers, answer)
	}
	return answers, nil
}

// GradeAnswerManually 人工评分简答与代码题，并重算所属尝试的分数
func (s *QuizService) GradeAnswerManually(ctx context.Context, answerID uint, isCorrect bool) (*model.QuizAttempt, error) {
	ctx, span := tracing.StartSpan(ctx, "QuizService.GradeAnswerManually")
	defer span.End()

	answer, err := s.QuizRepo.FindAnswer(answerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("answer %d", answerID)
		}
		return nil, err
	}
	question, err := s.QuizRepo.FindQuestion(answer.QuestionID)
	if err != nil {
		return nil, err
	}
	if !question.QuestionType.NeedsManualGrading() {
		return nil, util.NewValidationError("answer", "question type %s is graded automatically", question.QuestionType)
	}
	attempt, err := s.QuizRepo.FindAttempt(answer.AttemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsCompleted {
		return nil, util.NewValidationError("answer", "attempt %d is still in progress", attempt.ID)
	}
	quiz, err := s.QuizRepo.FindByID(attempt.QuizID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.QuizRepo.WithTx(tx)
		answer.ApplyGrade(&isCorrect, question.Points)
		if err := repo.SaveAnswerGrade(answer); err != nil {
			return err
		}
		total, correct, err := repo.AnswerTally(attempt.ID)
		if err != nil {
			return err
		}
		score := ScorePercent(int(correct), int(total))
		return repo.UpdateAttemptScore(attempt.ID, score, score >= quiz.PassingScore)
	})
	if err != nil {
		return nil, err
	}
	return s.QuizRepo.FindAttemptWithAnswers(attempt.ID)
}

// GetAttempt 仅本人可查看
func (s *QuizService) GetAttempt(ctx context.Context, userID, attemptID uint) (*model.QuizAttempt, error) {
	attempt, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).FindAttemptWithAnswers(attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("attempt %d", attemptID)
		}
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

func (s *QuizService) ListAttempts(ctx context.Context, userID, quizID uint) ([]model.QuizAttempt, error) {
	return s.QuizRepo.WithTx(s.DB.WithContext(ctx)).ListAttempts(userID, quizID)
}

// GetQuizForStudent 返回隐藏答案的测验内容
func (s *QuizService) GetQuizForStudent(ctx context.Context, quizID uint) (*QuizView, error) {
	quiz, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).FindWithQuestions(quizID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("quiz %d", quizID)
		}
		return nil, err
	}
	if !quiz.IsActive {
		return nil, util.NotFoundf("quiz %d", quizID)
	}

	var view QuizView
	if err := copier.Copy(&view, quiz); err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *QuizService) GetModuleQuiz(ctx context.Context, moduleID uint) (*QuizView, error) {
	quiz, err := s.QuizRepo.WithTx(s.DB.WithContext(ctx)).FindByModuleID(moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("quiz for module %d", moduleID)
		}
		return nil, err
	}
	return s.GetQuizForStudent(ctx, quiz.ID)
}
