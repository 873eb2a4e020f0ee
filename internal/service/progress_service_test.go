package service

import (
	"codehub_backend/internal/model"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/testutil"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/monitoring"
	"context"
	"errors"
	"sync"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu       sync.Mutex
	requests []NotifyRequest
}

func (n *recordingNotifier) Notify(_ context.Context, req NotifyRequest) (*model.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return &model.Notification{RecipientID: req.RecipientID, Type: req.Type, Title: req.Title}, nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.requests)
}

func newProgressService(db *gorm.DB, notifier Notifier) *ProgressService {
	userRepo := repository.NewUserRepository(db)
	return NewProgressService(
		repository.NewProgressRepository(db),
		repository.NewCatalogRepository(db),
		userRepo,
		NewUserService(userRepo, db),
		notifier,
		db,
	)
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *model.User {
	t.Helper()
	var u model.User
	require.NoError(t, db.First(&u, id).Error)
	return &u
}

func TestCompleteModuleIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "bob")
	_, modules := testutil.CreatePath(t, db, 3, 100, 500)
	svc := newProgressService(db, nil)
	ctx := context.Background()

	first, err := svc.CompleteModule(ctx, user.ID, modules[0].ID)
	require.NoError(t, err)
	assert.True(t, first.ModuleNewlyCompleted)
	assert.Equal(t, 100, first.PointsAwarded)

	second, err := svc.CompleteModule(ctx, user.ID, modules[0].ID)
	require.NoError(t, err)
	assert.False(t, second.ModuleNewlyCompleted)
	assert.Equal(t, 0, second.PointsAwarded)

	assert.Equal(t, first.CompletedModuleIDs, second.CompletedModuleIDs)
	assert.Equal(t, 100, second.TotalPointsEarned)
	assert.Equal(t, 100, reloadUser(t, db, user.ID).Points)
}

// sqlite 只有一个连接，这里的事务实际是排队执行的；
// 真正重叠的事务见 integration 标签下的 TestCompleteModuleConcurrentOnServerDB
func TestCompleteModuleConcurrentAwardsOnce(t *testing.T) {
	assertConcurrentCompletionAwardsOnce(t, testutil.NewDB(t))
}

func assertConcurrentCompletionAwardsOnce(t *testing.T, db *gorm.DB) {
	t.Helper()
	user := testutil.CreateUser(t, db, "carol")
	_, modules := testutil.CreatePath(t, db, 2, 150, 500)
	svc := newProgressService(db, nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan *ProgressSnapshot, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			snap, err := svc.CompleteModule(context.Background(), user.ID, modules[0].ID)
			if assert.NoError(t, err) {
				results <- snap
			}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for snap := range results {
		if snap.ModuleNewlyCompleted {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 150, reloadUser(t, db, user.ID).Points)

	var rows int64
	db.Model(&model.ProgressModule{}).
		Where("learning_module_id = ?", modules[0].ID).
		Count(&rows)
	assert.Equal(t, int64(1), rows)
}

func TestCompleteModuleFinishesPathOnLastModule(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "dave")
	path, modules := testutil.CreatePath(t, db, 3, 100, 500)
	notifier := &recordingNotifier{}
	svc := newProgressService(db, notifier)
	ctx := context.Background()

	snap, err := svc.CompleteModule(ctx, user.ID, modules[0].ID)
	require.NoError(t, err)
	assert.False(t, snap.IsCompleted)
	require.NotNil(t, snap.CurrentModuleID)
	assert.Equal(t, modules[1].ID, *snap.CurrentModuleID)
	assert.Equal(t, 33, snap.Percentage)

	snap, err = svc.CompleteModule(ctx, user.ID, modules[1].ID)
	require.NoError(t, err)
	assert.False(t, snap.IsCompleted)
	assert.Nil(t, snap.CompletionDate)

	snap, err = svc.CompleteModule(ctx, user.ID, modules[2].ID)
	require.NoError(t, err)
	assert.True(t, snap.IsCompleted)
	assert.True(t, snap.PathCompleted)
	require.NotNil(t, snap.CompletionDate)
	assert.Nil(t, snap.CurrentModuleID)
	assert.Equal(t, 100, snap.Percentage)
	assert.Equal(t, 100+500, snap.PointsAwarded)
	// 路径进度只累计模块奖励，路径奖励只记到用户账上
	assert.Equal(t, 3*100, snap.TotalPointsEarned)
	completedAt := *snap.CompletionDate

	// 重复完成不改变完成时间，也不再发奖励
	again, err := svc.CompleteModule(ctx, user.ID, modules[2].ID)
	require.NoError(t, err)
	assert.True(t, again.IsCompleted)
	assert.False(t, again.PathCompleted)
	assert.True(t, completedAt.Equal(*again.CompletionDate))

	assert.Equal(t, 3*100, again.TotalPointsEarned)

	var stored model.UserProgress
	require.NoError(t, db.Where("user_id = ? AND career_path_id = ?", user.ID, path.ID).First(&stored).Error)
	assert.Equal(t, 3*100, stored.TotalPointsEarned)

	u := reloadUser(t, db, user.ID)
	assert.Equal(t, 800, u.Points)
	assert.Equal(t, model.LevelForPoints(800), u.Level)

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, model.NotificationAchievement, notifier.requests[0].Type)
	assert.Equal(t, user.ID, notifier.requests[0].RecipientID)
	assert.Equal(t, path.ID, notifier.requests[0].Metadata["career_path_id"])
}

func TestPointsMetricCountsOnlyCommittedAwards(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "dina")
	_, modules := testutil.CreatePath(t, db, 2, 100, 500)
	svc := newProgressService(db, nil)
	ctx := context.Background()

	before := promtestutil.ToFloat64(monitoring.PointsAwardedCounter)
	_, err := svc.CompleteModule(ctx, user.ID, modules[0].ID)
	require.NoError(t, err)
	assert.Equal(t, before+100, promtestutil.ToFloat64(monitoring.PointsAwardedCounter))

	// 进度写回失败时整个事务回滚，积分与指标都不变
	saveErr := errors.New("progress write failed")
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_progress_save", func(tx *gorm.DB) {
		if tx.Statement.Table == "user_progress" {
			tx.AddError(saveErr)
		}
	}))

	before = promtestutil.ToFloat64(monitoring.PointsAwardedCounter)
	_, err = svc.CompleteModule(ctx, user.ID, modules[1].ID)
	require.ErrorIs(t, err, saveErr)
	assert.Equal(t, before, promtestutil.ToFloat64(monitoring.PointsAwardedCounter))
	assert.Equal(t, 100, reloadUser(t, db, user.ID).Points)

	var rows int64
	db.Model(&model.ProgressModule{}).Count(&rows)
	assert.Equal(t, int64(1), rows)
}

func TestCompletionUsesLiveActiveModuleCount(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "erin")
	path, modules := testutil.CreatePath(t, db, 3, 10, 1000)
	svc := newProgressService(db, nil)
	ctx := context.Background()

	// 声明 5 个模块，但只有 2 个启用
	require.NoError(t, db.Model(path).Update("total_modules", 5).Error)
	require.NoError(t, db.Model(&modules[2]).Update("is_active", false).Error)

	_, err := svc.CompleteModule(ctx, user.ID, modules[0].ID)
	require.NoError(t, err)
	snap, err := svc.CompleteModule(ctx, user.ID, modules[1].ID)
	require.NoError(t, err)
	assert.True(t, snap.IsCompleted)
	assert.Equal(t, 2, snap.ActiveModuleCount)

	u := reloadUser(t, db, user.ID)
	assert.Equal(t, 1020, u.Points)
	assert.Equal(t, 2, u.Level)

	_, err = svc.CompleteModule(ctx, user.ID, modules[2].ID)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestCompleteModuleUnknownModuleOrUser(t *testing.T) {
	db := testutil.NewDB(t)
	_, modules := testutil.CreatePath(t, db, 1, 10, 10)
	svc := newProgressService(db, nil)

	_, err := svc.CompleteModule(context.Background(), 1, 4242)
	assert.ErrorIs(t, err, util.ErrNotFound)

	_, err = svc.CompleteModule(context.Background(), 4242, modules[0].ID)
	assert.ErrorIs(t, err, util.ErrNotFound)

	// 失败的请求不留下进度记录
	var count int64
	db.Model(&model.UserProgress{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestStartCareerPathSetsFirstModule(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "frank")
	path, modules := testutil.CreatePath(t, db, 2, 10, 10)
	svc := newProgressService(db, nil)
	ctx := context.Background()

	snap, created, err := svc.StartCareerPath(ctx, user.ID, path.ID)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, snap.CurrentModuleID)
	assert.Equal(t, modules[0].ID, *snap.CurrentModuleID)
	assert.Empty(t, snap.CompletedModuleIDs)

	_, created, err = svc.StartCareerPath(ctx, user.ID, path.ID)
	require.NoError(t, err)
	assert.False(t, created)

	list, err := svc.ListProgress(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, path.ID, list[0].CareerPathID)

	got, err := svc.GetProgress(ctx, user.ID, path.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ProgressID, got.ProgressID)

	_, err = svc.GetProgress(ctx, user.ID, 999)
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestNextModule(t *testing.T) {
	active := []uint{1, 2, 3, 4}
	next := nextModule(active, []uint{1, 2}, 2)
	require.NotNil(t, next)
	assert.Equal(t, uint(3), *next)

	// 跳到后面时回头补未完成的模块
	next = nextModule(active, []uint{1, 3, 4}, 4)
	require.NotNil(t, next)
	assert.Equal(t, uint(2), *next)

	assert.Nil(t, nextModule(active, active, 4))
}
