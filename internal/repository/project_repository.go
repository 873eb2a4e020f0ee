package repository

import (
	"codehub_backend/internal/model"

	"gorm.io/gorm"
)

type ProjectRepository struct {
	DB *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

func (r *ProjectRepository) WithTx(tx *gorm.DB) *ProjectRepository {
	return &ProjectRepository{DB: tx}
}

func (r *ProjectRepository) Create(project *model.Project) error {
	return r.DB.Create(project).Error
}

func (r *ProjectRepository) FindByID(id uint) (*model.Project, error) {
	var project model.Project
	err := r.DB.First(&project, id).Error
	return &project, err
}

func (r *ProjectRepository) AddMember(m *model.ProjectMembership) error {
	return r.DB.Create(m).Error
}

// FindMembership 仅返回有效成员
func (r *ProjectRepository) FindMembership(projectID, userID uint) (*model.ProjectMembership, error) {
	var m model.ProjectMembership
	err := r.DB.Where("project_id = ? AND user_id = ? AND is_active = ?", projectID, userID, true).First(&m).Error
	return &m, err
}

func (r *ProjectRepository) ListMembers(projectID uint) ([]model.ProjectMembership, error) {
	var members []model.ProjectMembership
	err := r.DB.Where("project_id = ? AND is_active = ?", projectID, true).Order("joined_at ASC").Order("id ASC").Find(&members).Error
	return members, err
}

func (r *ProjectRepository) CreateTask(task *model.ProjectTask) error {
	return r.DB.Create(task).Error
}

func (r *ProjectRepository) FindTask(id uint) (*model.ProjectTask, error) {
	var task model.ProjectTask
	err := r.DB.First(&task, id).Error
	return &task, err
}

func (r *ProjectRepository) SaveTask(task *model.ProjectTask) error {
	return r.DB.Save(task).Error
}

func (r *ProjectRepository) ListTasks(projectID uint, status string) ([]model.ProjectTask, error) {
	var tasks []model.ProjectTask
	q := r.DB.Where("project_id = ?", projectID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("priority DESC").Order("id ASC").Find(&tasks).Error
	return tasks, err
}
