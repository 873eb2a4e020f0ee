package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/util"
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

type CatalogService struct {
	Repo *repository.CatalogRepository
	DB   *gorm.DB
}

func NewCatalogService(repo *repository.CatalogRepository, db *gorm.DB) *CatalogService {
	return &CatalogService{Repo: repo, DB: db}
}

// CareerPathView 附带当前启用的模块数
type CareerPathView struct {
	model.CareerPath
	ActiveModuleCount int `json:"activeModuleCount"`
}

type CareerPathInput struct {
	Name              string            `json:"name" binding:"required"`
	Slug              string            `json:"slug" binding:"required"`
	Description       string            `json:"description"`
	ProgramType       model.ProgramType `json:"programType"`
	DifficultyLevel   model.Difficulty  `json:"difficultyLevel"`
	EstimatedDuration int               `json:"estimatedDuration"`
	TotalModules      int               `json:"totalModules"`
	PointsReward      int               `json:"pointsReward"`
}

type ModuleInput struct {
	ModuleNumber      int    `json:"moduleNumber" binding:"required"`
	Title             string `json:"title" binding:"required"`
	Description       string `json:"description"`
	Content           string `json:"content"`
	EstimatedDuration int    `json:"estimatedDuration"`
	PointsReward      int    `json:"pointsReward"`
}

func (s *CatalogService) repo(ctx context.Context) *repository.CatalogRepository {
	return s.Repo.WithTx(s.DB.WithContext(ctx))
}

func (s *CatalogService) ListCareerPaths(ctx context.Context) ([]CareerPathView, error) {
	repo := s.repo(ctx)
	paths, err := repo.ListPaths(true)
	if err != nil {
		return nil, err
	}
	out := make([]CareerPathView, 0, len(paths))
	for _, p := range paths {
		ids, err := repo.ActiveModuleIDs(p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, CareerPathView{CareerPath: p, ActiveModuleCount: len(ids)})
	}
	return out, nil
}

// ListModules 仅返回启用的模块，按序号排列
func (s *CatalogService) ListModules(ctx context.Context, pathID uint) ([]model.LearningModule, error) {
	repo := s.repo(ctx)
	path, err := repo.FindPath(pathID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("career path %d", pathID)
		}
		return nil, err
	}
	if !path.IsActive {
		return nil, util.NotFoundf("career path %d", pathID)
	}
	return repo.ListActiveModules(pathID)
}

func (s *CatalogService) CreateCareerPath(ctx context.Context, in CareerPathInput) (*model.CareerPath, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Slug) == "" {
		return nil, util.NewValidationError("name", "name and slug are required")
	}
	if in.PointsReward < 0 {
		return nil, util.NewValidationError("pointsReward", "points reward cannot be negative")
	}
	path := &model.CareerPath{
		Name:              in.Name,
		Slug:              in.Slug,
		Description:       in.Description,
		ProgramType:       in.ProgramType,
		DifficultyLevel:   in.DifficultyLevel,
		EstimatedDuration: in.EstimatedDuration,
		TotalModules:      in.TotalModules,
		PointsReward:      in.PointsReward,
		IsActive:          true,
	}
	if err := s.repo(ctx).CreatePath(path); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.NewValidationError("slug", "slug %q already exists", in.Slug)
		}
		return nil, err
	}
	return path, nil
}

func (s *CatalogService) CreateModule(ctx context.Context, pathID uint, in ModuleInput) (*model.LearningModule, error) {
	if in.ModuleNumber <= 0 {
		return nil, util.NewValidationError("moduleNumber", "module number must be positive")
	}
	if in.PointsReward < 0 {
		return nil, util.NewValidationError("pointsReward", "points reward cannot be negative")
	}
	repo := s.repo(ctx)
	if _, err := repo.FindPath(pathID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("career path %d", pathID)
		}
		return nil, err
	}
	module := &model.LearningModule{
		CareerPathID:      pathID,
		ModuleNumber:      in.ModuleNumber,
		Title:             in.Title,
		Description:       in.Description,
		Content:           in.Content,
		EstimatedDuration: in.EstimatedDuration,
		PointsReward:      in.PointsReward,
		IsActive:          true,
	}
	if err := repo.CreateModule(module); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, util.NewValidationError("moduleNumber", "module %d already exists in this path", in.ModuleNumber)
		}
		return nil, err
	}
	return module, nil
}
