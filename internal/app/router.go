package app

import (
	"codehub_backend/docs"
	"codehub_backend/internal/config"
	"codehub_backend/internal/middleware"
	"codehub_backend/internal/model"

	"codehub_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	router.GET("/api/health", c.health.HealthCheck)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerLearnerRoutes(authGroup, c)
		a.registerCollaborationRoutes(authGroup, c)

		// 讲师维护课程目录
		instructor := authGroup.Group("/instructor")
		instructor.Use(middleware.RoleMiddleware(model.Instructor))
		{
			instructor.POST("/career-paths", c.catalog.CreateCareerPath)
			instructor.POST("/career-paths/:id/modules", c.catalog.CreateModule)
			instructor.POST("/modules/:id/quiz", c.quiz.CreateQuiz)
		}
	}

	// 3. 实时通道
	a.registerRealtimeRoutes(router, c, cfg)
}

func (a *App) registerLearnerRoutes(r *gin.RouterGroup, c *controllers) {
	r.GET("/users/me", c.user.GetProfile)
	r.GET("/users/leaderboard", c.user.Leaderboard)

	r.GET("/career-paths", c.catalog.ListCareerPaths)
	r.GET("/career-paths/:id/modules", c.catalog.ListModules)
	r.POST("/career-paths/:id/start", c.catalog.StartCareerPath)

	r.GET("/progress", c.progress.ListProgress)
	r.GET("/progress/:pathId", c.progress.GetProgress)
	r.POST("/modules/:id/complete", c.progress.CompleteModule)

	// 测验
	r.GET("/modules/:id/quiz", c.quiz.GetModuleQuiz)
	r.GET("/quizzes/:id", c.quiz.GetQuiz)
	r.POST("/quizzes/:id/start", c.quiz.StartAttempt)
	r.GET("/attempts", c.quiz.ListAttempts)
	r.GET("/attempts/:id", c.quiz.GetAttempt)
	r.POST("/attempts/:id/submit", c.quiz.SubmitAttempt)
	r.POST("/answers/:id/grade", middleware.RoleMiddleware(model.Instructor), c.quiz.GradeAnswer)

	// AI 导师
	r.POST("/mentor/analyze", c.mentor.AnalyzeCode)
	r.GET("/mentor/analyses", c.mentor.ListAnalyses)
	r.GET("/mentor/analyses/:id", c.mentor.GetAnalysis)
	r.POST("/mentor/messages", c.mentor.SendMessage)
	r.GET("/mentor/sessions", c.mentor.ListSessions)
	r.GET("/mentor/sessions/:id", c.mentor.GetSession)
	r.POST("/mentor/sessions/:id/complete", c.mentor.CompleteSession)

	// 社区
	r.GET("/posts", c.community.ListPosts)
	r.POST("/posts", c.community.CreatePost)
	r.GET("/posts/:id", c.community.GetPost)
	r.POST("/posts/:id/like", c.community.TogglePostLike)
	r.GET("/posts/:id/comments", c.community.ListComments)
	r.POST("/posts/:id/comments", c.community.CreateComment)
	r.POST("/comments/:id/like", c.community.ToggleCommentLike)
}

func (a *App) registerCollaborationRoutes(r *gin.RouterGroup, c *controllers) {
	r.POST("/projects", c.project.CreateProject)
	r.GET("/projects/:id/members", c.project.ListMembers)
	r.POST("/projects/:id/members", c.project.AddMember)
	r.GET("/projects/:id/tasks", c.project.ListTasks)
	r.POST("/projects/:id/tasks", c.project.CreateTask)
	r.GET("/projects/:id/presence", c.project.Presence)
	r.PATCH("/tasks/:id", c.project.UpdateTask)

	r.GET("/notifications", c.notification.ListNotifications)
	r.GET("/notifications/unread-count", c.notification.UnreadCount)
	r.POST("/notifications/read-all", c.notification.MarkAllRead)
	r.POST("/notifications/:id/read", c.notification.MarkRead)
}

func (a *App) registerRealtimeRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	ws := router.Group("/ws")
	{
		ws.GET("/projects/:id", middleware.AuthMiddleware(cfg), c.realtime.ProjectSocket)
		// 匿名连接在握手后以 1008 关闭
		ws.GET("/notifications", middleware.TryAuthMiddleware(cfg), c.realtime.NotificationSocket)
	}
}
