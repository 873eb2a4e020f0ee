// @title CodeHub 后端 API
// @version 1.0
// @description CodeHub 编程学习与协作平台的后端服务器。

// @contact.name API支持

// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"codehub_backend/internal/app"
	"codehub_backend/internal/config"
	"codehub_backend/pkg/logger"
	"flag"
	"log"

	"github.com/joho/godotenv"
)

const configDir = "configs"

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	flag.Parse()

	// 本地开发时从 .env 读取 CODEHUB_* 变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.MigrateOnly = *migrateOnly

	application, err := app.NewApp(cfg, configDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	if err := application.Run(); err != nil {
		logger.Log.Sugar().Fatalf("Server stopped: %v", err)
	}
}
