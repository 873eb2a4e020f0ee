package service

import (
	"codehub_backend/internal/model"
	"math"
)

// GradeAnswer 自动判分；返回 nil 表示需要人工评分
func GradeAnswer(q *model.Question, selectedIDs []uint) *bool {
	var correct bool
	switch q.QuestionType {
	case model.MultipleChoice, model.TrueFalse:
		correct = gradeSingleChoice(q, selectedIDs)
	case model.MultipleSelect:
		correct = gradeMultipleSelect(q, selectedIDs)
	default:
		return nil
	}
	return &correct
}

// 正确选项取 order 最小的一个；没有正确选项时一律判错
func gradeSingleChoice(q *model.Question, selectedIDs []uint) bool {
	var (
		correctID uint
		bestOrder int
		found     bool
	)
	for _, c := range q.Choices {
		if c.IsCorrect && (!found || c.Order < bestOrder) {
			correctID, bestOrder, found = c.ID, c.Order, true
		}
	}
	if !found {
		return false
	}

	selected := uniqueIDs(selectedIDs)
	return len(selected) == 1 && selected[correctID]
}

// 多选题要求选择集合与正确集合完全一致，没有部分得分
func gradeMultipleSelect(q *model.Question, selectedIDs []uint) bool {
	correct := make(map[uint]bool)
	for _, c := range q.Choices {
		if c.IsCorrect {
			correct[c.ID] = true
		}
	}

	selected := uniqueIDs(selectedIDs)
	if len(selected) != len(correct) {
		return false
	}
	for id := range selected {
		if !correct[id] {
			return false
		}
	}
	return true
}

func uniqueIDs(ids []uint) map[uint]bool {
	set := make(map[uint]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// ScorePercent round(100*correct/total)，没有作答时为 0
func ScorePercent(correct, total int) int {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct >= total {
		return 100
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
