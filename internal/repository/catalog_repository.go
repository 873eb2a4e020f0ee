package repository

import (
	"codehub_backend/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository 职业路径与学习模块
type CatalogRepository struct {
	DB *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{DB: db}
}

func (r *CatalogRepository) WithTx(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{DB: tx}
}

func (r *CatalogRepository) CreatePath(path *model.CareerPath) error {
	return r.DB.Create(path).Error
}

func (r *CatalogRepository) CreateModule(module *model.LearningModule) error {
	return r.DB.Create(module).Error
}

func (r *CatalogRepository) ListPaths(activeOnly bool) ([]model.CareerPath, error) {
	var paths []model.CareerPath
	q := r.DB.Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&paths).Error
	return paths, err
}

func (r *CatalogRepository) FindPath(id uint) (*model.CareerPath, error) {
	var path model.CareerPath
	err := r.DB.First(&path, id).Error
	return &path, err
}

func (r *CatalogRepository) FindModule(id uint) (*model.LearningModule, error) {
	var module model.LearningModule
	err := r.DB.First(&module, id).Error
	return &module, err
}

// ListActiveModules 按模块序号升序
func (r *CatalogRepository) ListActiveModules(pathID uint) ([]model.LearningModule, error) {
	var modules []model.LearningModule
	err := r.DB.Where("career_path_id = ? AND is_active = ?", pathID, true).
		Order("module_number ASC").
		Find(&modules).Error
	return modules, err
}

func (r *CatalogRepository) ActiveModuleIDs(pathID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.LearningModule{}).
		Where("career_path_id = ? AND is_active = ?", pathID, true).
		Order("module_number ASC").
		Pluck("id", &ids).Error
	return ids, err
}
