package repository

import (
	"codehub_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// orderColumn order 是保留字，交给方言负责加引号
func orderColumn(table string) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Table: table, Name: "order"}}
}

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) WithTx(tx *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: tx}
}

func (r *QuizRepository) CreateQuiz(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) FindByID(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.First(&quiz, id).Error
	return &quiz, err
}

func (r *QuizRepository) FindByModuleID(moduleID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.Where("module_id = ?", moduleID).First(&quiz).Error
	return &quiz, err
}

// FindWithQuestions 题目和选项均按 order 排序
func (r *QuizRepository) FindWithQuestions(id uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(orderColumn("questions"))
		}).
		Preload("Questions.Choices", func(db *gorm.DB) *gorm.DB {
			return db.Order(orderColumn("question_choices"))
		}).
		First(&quiz, id).Error
	return &quiz, err
}

func (r *QuizRepository) FindQuestion(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.Preload("Choices").First(&q, id).Error
	return &q, err
}

func (r *QuizRepository) CountAttempts(userID, quizID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error
	return count, err
}

func (r *QuizRepository) CreateAttempt(attempt *model.QuizAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *QuizRepository) FindAttempt(id uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.First(&attempt, id).Error
	return &attempt, err
}

func (r *QuizRepository) FindAttemptWithAnswers(id uint) (*model.QuizAttempt, error) {
	var attempt model.QuizAttempt
	err := r.DB.
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("answers.id ASC")
		}).
		Preload("Answers.SelectedChoices").
		First(&attempt, id).Error
	return &attempt, err
}

// ListAttempts quizID 为 0 时返回全部
func (r *QuizRepository) ListAttempts(userID, quizID uint) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	q := r.DB.Where("user_id = ?", userID)
	if quizID != 0 {
		q = q.Where("quiz_id = ?", quizID)
	}
	err := q.Order("started_at DESC").Order("id DESC").Find(&attempts).Error
	return attempts, err
}

// CompleteAttempt 仅当尝试仍未完成时写入结果，返回受影响行数
func (r *QuizRepository) CompleteAttempt(attemptID uint, fields map[string]interface{}) (int64, error) {
	fields["is_completed"] = true
	res := r.DB.Model(&model.QuizAttempt{}).
		Where("id = ? AND is_completed = ?", attemptID, false).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// CreateAnswers 只写 answer 与选项的关联，不重复插入选项
func (r *QuizRepository) CreateAnswers(answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.DB.Omit("SelectedChoices.*").Create(&answers).Error
}

func (r *QuizRepository) FindAnswer(id uint) (*model.Answer, error) {
	var answer model.Answer
	err := r.DB.First(&answer, id).Error
	return &answer, err
}

func (r *QuizRepository) SaveAnswerGrade(answer *model.Answer) error {
	return r.DB.Model(answer).Select("is_correct", "points_earned").Updates(answer).Error
}

// AnswerTally 返回尝试的答题总数与正确数
func (r *QuizRepository) AnswerTally(attemptID uint) (total, correct int64, err error) {
	if err = r.DB.Model(&model.Answer{}).Where("attempt_id = ?", attemptID).Count(&total).Error; err != nil {
		return
	}
	err = r.DB.Model(&model.Answer{}).Where("attempt_id = ? AND is_correct = ?", attemptID, true).Count(&correct).Error
	return
}

func (r *QuizRepository) UpdateAttemptScore(attemptID uint, score int, passed bool) error {
	return r.DB.Model(&model.QuizAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{"score": score, "is_passed": passed}).Error
}
