package repository

import (
	"codehub_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) WithTx(tx *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: tx}
}

// EnsureProgress 不存在时插入，并发插入由唯一索引去重；返回是否为本次创建
func (r *ProgressRepository) EnsureProgress(userID, pathID uint, startedAt time.Time) (bool, error) {
	p := model.UserProgress{
		UserID:       userID,
		CareerPathID: pathID,
		StartedAt:    startedAt,
	}
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&p)
	return res.RowsAffected == 1, res.Error
}

func (r *ProgressRepository) Find(userID, pathID uint) (*model.UserProgress, error) {
	var p model.UserProgress
	err := r.DB.Where("user_id = ? AND career_path_id = ?", userID, pathID).First(&p).Error
	return &p, err
}

// FindForUpdate 行锁，需在事务中调用
func (r *ProgressRepository) FindForUpdate(userID, pathID uint) (*model.UserProgress, error) {
	var p model.UserProgress
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND career_path_id = ?", userID, pathID).
		First(&p).Error
	return &p, err
}

func (r *ProgressRepository) ListByUser(userID uint) ([]model.UserProgress, error) {
	var list []model.UserProgress
	err := r.DB.Where("user_id = ?", userID).Order("started_at DESC").Find(&list).Error
	return list, err
}

// ClaimModule 插入完成记录；RowsAffected 为 1 的调用方才是首次完成者
func (r *ProgressRepository) ClaimModule(progressID, moduleID uint, at time.Time) (bool, error) {
	pm := model.ProgressModule{
		UserProgressID:   progressID,
		LearningModuleID: moduleID,
		CompletedAt:      at,
	}
	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&pm)
	return res.RowsAffected == 1, res.Error
}

func (r *ProgressRepository) CompletedModuleIDs(progressID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.ProgressModule{}).
		Where("user_progress_id = ?", progressID).
		Order("completed_at ASC").Order("id ASC").
		Pluck("learning_module_id", &ids).Error
	return ids, err
}

// SaveState 写回进度的可变字段，零值也会写入
func (r *ProgressRepository) SaveState(p *model.UserProgress) error {
	return r.DB.Model(p).
		Select("current_module_id", "total_points_earned", "is_completed", "completion_date").
		Updates(p).Error
}
