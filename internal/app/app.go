package app

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/controller"
	"codehub_backend/internal/repository"
	"codehub_backend/internal/service"
	"codehub_backend/pkg/configwatcher"
	"codehub_backend/pkg/database"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/monitoring"
	"codehub_backend/pkg/scheduler"
	"codehub_backend/pkg/security"
	"codehub_backend/pkg/tracing"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"
)

// 已读通知保留时长
const readNotificationRetention = 30 * 24 * time.Hour

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	scheduler       *scheduler.Scheduler
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user         *repository.UserRepository
	catalog      *repository.CatalogRepository
	quiz         *repository.QuizRepository
	progress     *repository.ProgressRepository
	project      *repository.ProjectRepository
	notification *repository.NotificationRepository
	codeAnalysis *repository.CodeAnalysisRepository
	chat         *repository.ChatRepository
	community    *repository.CommunityRepository
}

type services struct {
	user         *service.UserService
	catalog      *service.CatalogService
	quiz         *service.QuizService
	progress     *service.ProgressService
	notification *service.NotificationService
	project      *service.ProjectService
	codeAnalysis *service.CodeAnalysisService
	mentorChat   *service.MentorChatService
	community    *service.CommunityService
	relayHub     *service.RelayHub
}

type controllers struct {
	catalog      *controller.CatalogController
	progress     *controller.ProgressController
	quiz         *controller.QuizController
	notification *controller.NotificationController
	project      *controller.ProjectController
	realtime     *controller.RealtimeController
	mentor       *controller.MentorController
	community    *controller.CommunityController
	user         *controller.UserController
	health       *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:         repository.NewUserRepository(db),
		catalog:      repository.NewCatalogRepository(db),
		quiz:         repository.NewQuizRepository(db),
		progress:     repository.NewProgressRepository(db),
		project:      repository.NewProjectRepository(db),
		notification: repository.NewNotificationRepository(db),
		codeAnalysis: repository.NewCodeAnalysisRepository(db),
		chat:         repository.NewChatRepository(db),
		community:    repository.NewCommunityRepository(db),
	}
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.relayHub = service.NewRelayHub(rdb, cfg.Relay)
	s.notification = service.NewNotificationService(repos.notification, s.relayHub, rdb)
	s.relayHub.AckHandler = s.notification.MarkRead

	s.user = service.NewUserService(repos.user, db)
	s.catalog = service.NewCatalogService(repos.catalog, db)
	s.quiz = service.NewQuizService(repos.quiz, repos.catalog, db)
	s.progress = service.NewProgressService(repos.progress, repos.catalog, repos.user, s.user, s.notification, db)
	s.project = service.NewProjectService(repos.project, repos.user, s.notification, s.relayHub, db)
	s.community = service.NewCommunityService(repos.community, repos.user, s.notification, db)

	provider, err := service.NewLLMProvider(ctx, cfg.AI)
	if err != nil {
		// 模型不可用时分析请求返回 502，其余功能不受影响
		logger.Log.Error("Failed to initialize AI provider", zap.String("provider", cfg.AI.Provider), zap.Error(err))
		provider = nil
	}
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	s.codeAnalysis = service.NewCodeAnalysisService(repos.codeAnalysis, s.project, provider, timeout)
	s.mentorChat = service.NewMentorChatService(repos.chat, s.project, provider, cfg.AI)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		catalog:      controller.NewCatalogController(s.catalog, s.progress),
		progress:     controller.NewProgressController(s.progress),
		quiz:         controller.NewQuizController(s.quiz),
		notification: controller.NewNotificationController(s.notification),
		project:      controller.NewProjectController(s.project),
		realtime:     controller.NewRealtimeController(s.relayHub, s.project),
		mentor:       controller.NewMentorController(s.codeAnalysis, s.mentorChat),
		community:    controller.NewCommunityController(s.community),
		user:         controller.NewUserController(s.user),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	a.scheduler = scheduler.New()

	interval := time.Duration(cfg.Scheduler.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	staleAfter := time.Duration(cfg.Scheduler.StaleAnalysisMinutes) * time.Minute

	jobs := []struct {
		name     string
		interval time.Duration
		job      scheduler.Job
	}{
		{"fail-stale-analyses", interval, func(ctx context.Context) error {
			_, err := s.codeAnalysis.FailStaleAnalyses(ctx, staleAfter)
			return err
		}},
		{"prune-read-notifications", time.Hour, func(ctx context.Context) error {
			_, err := s.notification.PruneRead(ctx, readNotificationRetention)
			return err
		}},
	}
	for _, j := range jobs {
		if err := a.scheduler.Every(j.interval, j.name, j.job); err != nil {
			logger.Log.Error("Failed to schedule job", zap.String("job", j.name), zap.Error(err))
		}
	}
	a.scheduler.Start()
}

// registerReloaders 配置文件变更时调整日志级别并切换 AI 模型
func (a *App) registerReloaders(ctx context.Context) {
	a.RegisterConfigCallback(logger.Reload)
	a.RegisterConfigCallback(func(cfg *config.Config) {
		if cfg.AI == a.Config.AI {
			return
		}
		a.services.mentorChat.SetDailyLimit(cfg.AI.DailyMessageLimit)
		provider, err := service.NewLLMProvider(ctx, cfg.AI)
		if err != nil {
			logger.Log.Error("AI provider reload failed", zap.Error(err))
			return
		}
		a.services.codeAnalysis.SetProvider(provider)
		a.services.mentorChat.SetProvider(provider)
		a.Config.AI = cfg.AI
		logger.Log.Info("AI provider reloaded", zap.String("provider", provider.Name()))
	})
}

func (a *App) watchConfig(ctx context.Context, configDir string) {
	configFile := filepath.Join(configDir, "config.yaml")
	go func() {
		err := configwatcher.WatchConfig(ctx, configFile, func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

// wire 组装仓储、服务、控制器与路由，不启动后台任务
func (a *App) wire(ctx context.Context) {
	monitoring.Init()

	repos := a.initRepositories(a.DB)
	a.services = a.initServices(ctx, repos, a.Config, a.DB, a.Redis)
	ctrls := a.initControllers(a.services, a.DB, a.Redis)

	router := gin.New()
	router.Use(gin.Recovery())
	a.Router = router
	a.setupMiddlewares(router, a.Config)
	a.registerRoutes(router, ctrls, repos, a.Config)
}

// NewApp configDir 为空时不监听配置变化
func NewApp(cfg *config.Config, configDir string) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	if cfg.MigrateOnly {
		return app, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("codehub-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			cancel()
			return nil, err
		}
		app.tracer = tp
	}

	app.wire(ctx)

	go app.services.relayHub.Run(ctx)
	app.startBackgroundTasks(app.services, cfg)

	if configDir != "" {
		app.registerReloaders(ctx)
		app.watchConfig(ctx, configDir)
	}
	return app, nil
}

// Shutdown 释放后台任务与连接，实时通道由 Run 先行关闭
func (a *App) Shutdown(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 先关闭实时连接，websocket 不会被 srv.Shutdown 等待
	a.services.relayHub.Stop()
	err := srv.Shutdown(ctx)
	a.Shutdown(ctx)
	if err != nil {
		return err
	}
	logger.Log.Info("Server exiting")
	return nil
}
