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
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier 站内通知
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest) (*model.Notification, error)
}

type ProgressService struct {
	ProgressRepo *repository.ProgressRepository
	CatalogRepo  *repository.CatalogRepository
	UserRepo     *repository.UserRepository
	Users        *UserService
	Notifier     Notifier
	DB           *gorm.DB
	now          func() time.Time
}

func NewProgressService(
	progressRepo *repository.ProgressRepository,
	catalogRepo *repository.CatalogRepository,
	userRepo *repository.UserRepository,
	users *UserService,
	notifier Notifier,
	db *gorm.DB,
) *ProgressService {
	return &ProgressService{
		ProgressRepo: progressRepo,
		CatalogRepo:  catalogRepo,
		UserRepo:     userRepo,
		Users:        users,
		Notifier:     notifier,
		DB:           db,
		now:          time.Now,
	}
}

// ProgressSnapshot 某职业路径上的学习进度
type ProgressSnapshot struct {
	ProgressID         uint       `json:"progressId"`
	CareerPathID       uint       `json:"careerPathId"`
	CurrentModuleID    *uint      `json:"currentModuleId,omitempty"`
	CompletedModuleIDs []uint     `json:"completedModuleIds"`
	ActiveModuleCount  int        `json:"activeModuleCount"`
	Percentage         int        `json:"percentage"`
	TotalPointsEarned  int        `json:"totalPointsEarned"`
	IsCompleted        bool       `json:"isCompleted"`
	CompletionDate     *time.Time `json:"completionDate,omitempty"`
	StartedAt          time.Time  `json:"startedAt"`
	UserPoints         int        `json:"userPoints"`
	UserLevel          int        `json:"userLevel"`

	// 以下字段仅描述本次调用的结果
	PointsAwarded        int  `json:"pointsAwarded"`
	ModuleNewlyCompleted bool `json:"moduleNewlyCompleted"`
	PathCompleted        bool `json:"pathCompleted"`
}

func (s *ProgressService) activePath(pathID uint) (*model.CareerPath, error) {
	path, err := s.CatalogRepo.FindPath(pathID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("career path %d", pathID)
		}
		return nil, err
	}
	if !path.IsActive {
		return nil, util.NotFoundf("career path %d", pathID)
	}
	return path, nil
}

// StartCareerPath 幂等，首次开始时当前模块设为第一个启用模块
func (s *ProgressService) StartCareerPath(ctx context.Context, userID, pathID uint) (*ProgressSnapshot, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.StartCareerPath")
	defer span.End()

	if _, err := s.activePath(pathID); err != nil {
		return nil, false, err
	}

	var (
		snapshot *ProgressSnapshot
		created  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		progressRepo := s.ProgressRepo.WithTx(tx)
		var err error
		created, err = progressRepo.EnsureProgress(userID, pathID, s.now())
		if err != nil {
			return err
		}
		progress, err := progressRepo.FindForUpdate(userID, pathID)
		if err != nil {
			return err
		}
		user, err := s.UserRepo.WithTx(tx).FindByID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NotFoundf("user %d", userID)
			}
			return err
		}

		if created {
			modules, err := s.CatalogRepo.WithTx(tx).ListActiveModules(pathID)
			if err != nil {
				return err
			}
			if len(modules) > 0 {
				progress.CurrentModuleID = &modules[0].ID
				if err := progressRepo.SaveState(progress); err != nil {
					return err
				}
			}
		}

		snapshot, err = s.buildSnapshot(tx, progress, user)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return snapshot, created, nil
}

// CompleteModule 幂等地记录模块完成；只有首次完成的调用方获得积分，
// 路径奖励只在未完成→完成的那一次发放
func (s *ProgressService) CompleteModule(ctx context.Context, userID, moduleID uint) (_ *ProgressSnapshot, err error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.CompleteModule",
		attribute.Int64("user.id", int64(userID)),
		attribute.Int64("module.id", int64(moduleID)),
	)
	defer func() { tracing.EndWithError(span, err) }()

	module, err := s.CatalogRepo.FindModule(moduleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("module %d", moduleID)
		}
		return nil, err
	}
	if !module.IsActive {
		return nil, util.NotFoundf("module %d", moduleID)
	}
	path, err := s.CatalogRepo.FindPath(module.CareerPathID)
	if err != nil {
		return nil, err
	}

	var snapshot *ProgressSnapshot
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		progressRepo := s.ProgressRepo.WithTx(tx)
		now := s.now()

		if _, err := progressRepo.EnsureProgress(userID, path.ID, now); err != nil {
			return err
		}
		// 先锁进度行再锁用户行，所有写路径保持同一顺序
		progress, err := progressRepo.FindForUpdate(userID, path.ID)
		if err != nil {
			return err
		}
		user, err := s.UserRepo.WithTx(tx).FindByIDForUpdate(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return util.NotFoundf("user %d", userID)
			}
			return err
		}

		claimed, err := progressRepo.ClaimModule(progress.ID, module.ID, now)
		if err != nil {
			return err
		}

		awarded := 0
		pathCompleted := false
		if claimed {
			progress.TotalPointsEarned += module.PointsReward
			n, err := s.Users.awardPointsTx(tx, user, module.PointsReward)
			if err != nil {
				return err
			}
			awarded += n

			activeIDs, err := s.CatalogRepo.WithTx(tx).ActiveModuleIDs(path.ID)
			if err != nil {
				return err
			}
			completedIDs, err := progressRepo.CompletedModuleIDs(progress.ID)
			if err != nil {
				return err
			}

			// 以当前启用的模块数判定完成，不使用 total_modules
			if !progress.IsCompleted && len(activeIDs) > 0 && countCompleted(activeIDs, completedIDs) == len(activeIDs) {
				progress.IsCompleted = true
				progress.CompletionDate = &now
				// 路径奖励只进入用户积分，不计入本路径的 total_points_earned
				n, err := s.Users.awardPointsTx(tx, user, path.PointsReward)
				if err != nil {
					return err
				}
				awarded += n
				pathCompleted = true
			}

			progress.CurrentModuleID = nextModule(activeIDs, completedIDs, module.ID)
			if err := progressRepo.SaveState(progress); err != nil {
				return err
			}
		}

		snapshot, err = s.buildSnapshot(tx, progress, user)
		if err != nil {
			return err
		}
		snapshot.PointsAwarded = awarded
		snapshot.ModuleNewlyCompleted = claimed
		snapshot.PathCompleted = pathCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordPointsAwarded(snapshot.PointsAwarded)
	if snapshot.ModuleNewlyCompleted {
		monitoring.ModuleCompletionCounter.Inc()
		logger.Log.Info("module completed",
			zap.Uint("userId", userID),
			zap.Uint("moduleId", moduleID),
			zap.Int("pointsAwarded", snapshot.PointsAwarded),
		)
	}
	if snapshot.PathCompleted {
		monitoring.PathCompletionCounter.Inc()
		s.notifyPathCompleted(ctx, userID, path)
	}
	return snapshot, nil
}

func (s *ProgressService) notifyPathCompleted(ctx context.Context, userID uint, path *model.CareerPath) {
	if s.Notifier == nil {
		return
	}
	_, err := s.Notifier.Notify(ctx, NotifyRequest{
		RecipientID: userID,
		Type:        model.NotificationAchievement,
		Title:       fmt.Sprintf("Career path completed: %s", path.Name),
		Message:     fmt.Sprintf("You finished every module of %s and earned %d bonus points.", path.Name, path.PointsReward),
		Link:        fmt.Sprintf("/career-paths/%d", path.ID),
		Metadata: map[string]interface{}{
			"career_path_id": path.ID,
			"points_reward":  path.PointsReward,
		},
	})
	if err != nil {
		// 通知失败不影响已提交的进度
		logger.Log.Warn("path completion notification failed", zap.Uint("userId", userID), zap.Error(err))
	}
}

func countCompleted(activeIDs, completedIDs []uint) int {
	done := make(map[uint]bool, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = true
	}
	n := 0
	for _, id := range activeIDs {
		if done[id] {
			n++
		}
	}
	return n
}

// nextModule 优先取刚完成模块之后第一个未完成的模块，其次取任意未完成模块
func nextModule(activeIDs, completedIDs []uint, justCompleted uint) *uint {
	done := make(map[uint]bool, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = true
	}

	after := false
	for _, id := range activeIDs {
		if id == justCompleted {
			after = true
			continue
		}
		if after && !done[id] {
			next := id
			return &next
		}
	}
	for _, id := range activeIDs {
		if !done[id] {
			next := id
			return &next
		}
	}
	return nil
}

func (s *ProgressService) buildSnapshot(tx *gorm.DB, progress *model.UserProgress, user *model.User) (*ProgressSnapshot, error) {
	completedIDs, err := s.ProgressRepo.WithTx(tx).CompletedModuleIDs(progress.ID)
	if err != nil {
		return nil, err
	}
	activeIDs, err := s.CatalogRepo.WithTx(tx).ActiveModuleIDs(progress.CareerPathID)
	if err != nil {
		return nil, err
	}
	if completedIDs == nil {
		completedIDs = []uint{}
	}

	return &ProgressSnapshot{
		ProgressID:         progress.ID,
		CareerPathID:       progress.CareerPathID,
		CurrentModuleID:    progress.CurrentModuleID,
		CompletedModuleIDs: completedIDs,
		ActiveModuleCount:  len(activeIDs),
		Percentage:         ScorePercent(countCompleted(activeIDs, completedIDs), len(activeIDs)),
		TotalPointsEarned:  progress.TotalPointsEarned,
		IsCompleted:        progress.IsCompleted,
		CompletionDate:     progress.CompletionDate,
		StartedAt:          progress.StartedAt,
		UserPoints:         user.Points,
		UserLevel:          user.Level,
	}, nil
}

func (s *ProgressService) GetProgress(ctx context.Context, userID, pathID uint) (*ProgressSnapshot, error) {
	db := s.DB.WithContext(ctx)
	progress, err := s.ProgressRepo.WithTx(db).Find(userID, pathID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("progress on career path %d", pathID)
		}
		return nil, err
	}
	user, err := s.UserRepo.WithTx(db).FindByID(userID)
	if err != nil {
		return nil, err
	}
	return s.buildSnapshot(db, progress, user)
}

func (s *ProgressService) ListProgress(ctx context.Context, userID uint) ([]ProgressSnapshot, error) {
	db := s.DB.WithContext(ctx)
	list, err := s.ProgressRepo.WithTx(db).ListByUser(userID)
	if err != nil {
		return nil, err
	}
	user, err := s.UserRepo.WithTx(db).FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.NotFoundf("user %d", userID)
		}
		return nil, err
	}

	out := make([]ProgressSnapshot, 0, len(list))
	for i := range list {
		snap, err := s.buildSnapshot(db, &list[i], user)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}
