package repository

import (
	"codehub_backend/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

type CodeAnalysisRepository struct {
	DB *gorm.DB
}

func NewCodeAnalysisRepository(db *gorm.DB) *CodeAnalysisRepository {
	return &CodeAnalysisRepository{DB: db}
}

func (r *CodeAnalysisRepository) WithContext(ctx context.Context) *CodeAnalysisRepository {
	return &CodeAnalysisRepository{DB: r.DB.WithContext(ctx)}
}

func (r *CodeAnalysisRepository) Create(a *model.CodeAnalysis) error {
	return r.DB.Create(a).Error
}

func (r *CodeAnalysisRepository) FindByID(id string) (*model.CodeAnalysis, error) {
	var a model.CodeAnalysis
	err := r.DB.Where("id = ?", id).First(&a).Error
	return &a, err
}

func (r *CodeAnalysisRepository) Save(a *model.CodeAnalysis) error {
	return r.DB.Save(a).Error
}

func (r *CodeAnalysisRepository) ListByUser(userID uint, limit, offset int) ([]model.CodeAnalysis, int64, error) {
	var (
		list  []model.CodeAnalysis
		total int64
	)
	q := r.DB.Model(&model.CodeAnalysis{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// FailStale 把超时仍在进行中的分析标记为失败
func (r *CodeAnalysisRepository) FailStale(before time.Time, reason string) (int64, error) {
	res := r.DB.Model(&model.CodeAnalysis{}).
		Where("status = ? AND created_at < ?", model.AnalysisInProgress, before).
		Updates(map[string]interface{}{"status": model.AnalysisFailed, "error_message": reason})
	return res.RowsAffected, res.Error
}
