package service

import (
	"codehub_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(id uint, order int, correct bool) model.QuestionChoice {
	c := model.QuestionChoice{Order: order, IsCorrect: correct}
	c.ID = id
	return c
}

func TestGradeSingleChoice(t *testing.T) {
	q := &model.Question{
		QuestionType: model.MultipleChoice,
		Choices:      []model.QuestionChoice{choice(1, 1, false), choice(2, 2, true), choice(3, 3, false)},
	}

	cases := []struct {
		name     string
		selected []uint
		want     bool
	}{
		{"correct", []uint{2}, true},
		{"wrong", []uint{1}, false},
		{"nothing selected", nil, false},
		{"two selected", []uint{2, 3}, false},
		{"duplicate of correct", []uint{2, 2}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GradeAnswer(q, tc.selected)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestGradeSingleChoiceUsesLowestOrderCorrectChoice(t *testing.T) {
	q := &model.Question{
		QuestionType: model.TrueFalse,
		Choices:      []model.QuestionChoice{choice(10, 2, true), choice(11, 1, true)},
	}
	assert.True(t, *GradeAnswer(q, []uint{11}))
	assert.False(t, *GradeAnswer(q, []uint{10}))
}

func TestGradeSingleChoiceWithoutCorrectChoiceIsIncorrect(t *testing.T) {
	q := &model.Question{
		QuestionType: model.MultipleChoice,
		Choices:      []model.QuestionChoice{choice(1, 1, false), choice(2, 2, false)},
	}
	got := GradeAnswer(q, []uint{1})
	require.NotNil(t, got)
	assert.False(t, *got)
}

func TestGradeMultipleSelect(t *testing.T) {
	q := &model.Question{
		QuestionType: model.MultipleSelect,
		Choices: []model.QuestionChoice{
			choice(1, 1, true), choice(2, 2, true), choice(3, 3, false),
		},
	}

	cases := []struct {
		name     string
		selected []uint
		want     bool
	}{
		{"exact set", []uint{1, 2}, true},
		{"order irrelevant", []uint{2, 1}, true},
		{"subset", []uint{1}, false},
		{"superset", []uint{1, 2, 3}, false},
		{"disjoint", []uint{3}, false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, *GradeAnswer(q, tc.selected))
		})
	}
}

func TestGradeManualTypesReturnNil(t *testing.T) {
	for _, typ := range []model.QuestionType{model.ShortAnswer, model.CodeCompletion} {
		assert.Nil(t, GradeAnswer(&model.Question{QuestionType: typ}, []uint{1}), string(typ))
	}
}

func TestGradeIsIdempotent(t *testing.T) {
	q := &model.Question{
		QuestionType: model.MultipleSelect,
		Choices:      []model.QuestionChoice{choice(1, 1, true), choice(2, 2, true)},
	}
	first := *GradeAnswer(q, []uint{1, 2})
	second := *GradeAnswer(q, []uint{1, 2})
	assert.Equal(t, first, second)
}

func TestScorePercent(t *testing.T) {
	assert.Equal(t, 0, ScorePercent(0, 0))
	assert.Equal(t, 0, ScorePercent(0, 10))
	assert.Equal(t, 80, ScorePercent(8, 10))
	assert.Equal(t, 67, ScorePercent(2, 3))
	assert.Equal(t, 33, ScorePercent(1, 3))
	assert.Equal(t, 50, ScorePercent(1, 2))
	assert.Equal(t, 100, ScorePercent(3, 3))
	// 0.5 向上取整
	assert.Equal(t, 13, ScorePercent(1, 8))
}
