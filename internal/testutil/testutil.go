// Package testutil 提供基于内存 sqlite 的测试数据库与数据构造函数
package testutil

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/model"
	"codehub_backend/pkg/database"
	"fmt"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB 每个测试独立的内存库，测试结束自动关闭
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:   "sqlite",
		DBName:   fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		LogLevel: "silent",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewServerDB 连接 CODEHUB_TEST_DB_* 指定的 mysql/postgres 库，未配置时跳过测试。
// 数据不清理，构造函数生成的名称带随机后缀，可重复运行
func NewServerDB(t testing.TB) *gorm.DB {
	t.Helper()
	driver := os.Getenv("CODEHUB_TEST_DB_DRIVER")
	if driver == "" {
		t.Skip("CODEHUB_TEST_DB_DRIVER not set")
	}
	port, _ := strconv.Atoi(os.Getenv("CODEHUB_TEST_DB_PORT"))
	db, err := database.InitDB(&config.DatabaseConfig{
		Driver:    driver,
		Host:      os.Getenv("CODEHUB_TEST_DB_HOST"),
		Port:      port,
		User:      os.Getenv("CODEHUB_TEST_DB_USER"),
		Password:  os.Getenv("CODEHUB_TEST_DB_PASSWORD"),
		DBName:    os.Getenv("CODEHUB_TEST_DB_NAME"),
		ParseTime: true,
		LogLevel:  "silent",
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, name string) *model.User {
	t.Helper()
	u := &model.User{
		Name:  name,
		Email: fmt.Sprintf("%s-%s@example.com", name, uuid.NewString()[:8]),
		Role:  model.Student,
		Level: 1,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreatePath 创建职业路径及 n 个启用的模块，模块奖励依次为 moduleReward
func CreatePath(t testing.TB, db *gorm.DB, n, moduleReward, pathReward int) (*model.CareerPath, []model.LearningModule) {
	t.Helper()
	path := &model.CareerPath{
		Name:         "Backend Engineer",
		Slug:         "backend-" + uuid.NewString()[:8],
		ProgramType:  model.ProgramBackend,
		TotalModules: n,
		PointsReward: pathReward,
		IsActive:     true,
	}
	require.NoError(t, db.Create(path).Error)

	modules := make([]model.LearningModule, 0, n)
	for i := 1; i <= n; i++ {
		m := model.LearningModule{
			CareerPathID: path.ID,
			ModuleNumber: i,
			Title:        fmt.Sprintf("Module %d", i),
			PointsReward: moduleReward,
			IsActive:     true,
		}
		require.NoError(t, db.Create(&m).Error)
		modules = append(modules, m)
	}
	return path, modules
}

// QuestionSpec 题目构造参数，Correct 为正确选项在 Choices 中的下标
type QuestionSpec struct {
	Type    model.QuestionType
	Points  int
	Choices []string
	Correct []int
}

// CreateQuiz 在模块上挂一个测验
func CreateQuiz(t testing.TB, db *gorm.DB, moduleID uint, maxAttempts, passingScore int, specs ...QuestionSpec) *model.Quiz {
	t.Helper()
	quiz := &model.Quiz{
		ModuleID:     moduleID,
		Title:        "Checkpoint",
		MaxAttempts:  maxAttempts,
		PassingScore: passingScore,
		IsActive:     true,
	}
	require.NoError(t, db.Create(quiz).Error)

	for i, spec := range specs {
		points := spec.Points
		if points == 0 {
			points = 1
		}
		q := model.Question{
			QuizID:       quiz.ID,
			Order:        i + 1,
			QuestionText: fmt.Sprintf("Question %d", i+1),
			QuestionType: spec.Type,
			Points:       points,
		}
		require.NoError(t, db.Create(&q).Error)

		correct := make(map[int]bool, len(spec.Correct))
		for _, idx := range spec.Correct {
			correct[idx] = true
		}
		for j, text := range spec.Choices {
			c := model.QuestionChoice{
				QuestionID: q.ID,
				Order:      j + 1,
				ChoiceText: text,
				IsCorrect:  correct[j],
			}
			require.NoError(t, db.Create(&c).Error)
			q.Choices = append(q.Choices, c)
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	return quiz
}

// SingleChoice 两个选项的单选题，第一个为正确答案
func SingleChoice() QuestionSpec {
	return QuestionSpec{Type: model.MultipleChoice, Points: 1, Choices: []string{"right", "wrong"}, Correct: []int{0}}
}
