package scheduler

import (
	"codehub_backend/pkg/logger"
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Job 定时任务，返回的错误只记录日志
type Job func(ctx context.Context) error

// Scheduler 后台定时任务
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func New() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Every 注册周期任务，上一次未结束时跳过本次
func (s *Scheduler) Every(interval time.Duration, name string, job Job) error {
	_, err := s.scheduler.Every(interval).Tag(name).Do(func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			logger.Log.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		logger.Log.Debug("scheduled job finished", zap.String("job", name), zap.Duration("elapsed", time.Since(start)))
	})
	return err
}

func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
