package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"volunteer_hub/internal/api"
	"volunteer_hub/internal/models"
	"volunteer_hub/internal/repository"
	"volunteer_hub/internal/service"
	"volunteer_hub/internal/storage"
	"volunteer_hub/internal/utils"
	"volunteer_hub/pkg/config"
)

func main() {
	// 載入應用程式配置
	// 從配置文件中讀取設置，如數據庫連接信息和服務器地址等
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	utils.SetSecret(cfg.JWT.Secret)

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// 初始化資料庫連接
	// 使用配置中的信息建立到 PostgreSQL 數據庫的連接
	db, err := storage.NewPostgresDB(cfg.DB.Host, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.Port)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	// 確保在程序結束時關閉數據庫連接
	defer db.Close()

	// 自動遷移資料庫結構
	// 根據定義的模型自動創建或更新數據庫表結構
	if err := db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.Application{},
		&models.ChatMessage{},
		&models.ConversationCounter{},
		&models.ReadMark{},
	); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	// 初始化媒體儲存
	// 上傳的照片和影片寫到本機磁碟，由 /media 路徑對外提供
	blobs, err := storage.NewDiskStore(cfg.Media.Dir, "/media")
	if err != nil {
		log.Fatalf("Failed to initialize media store: %v", err)
	}

	// 初始化 repositories
	repos := repository.NewRepositories(db)

	// 初始化 services
	services := service.NewServices(repos, blobs, logger)

	// 設置 Gin 路由
	r := gin.Default()
	r.Static("/media", blobs.Dir())
	api.SetupRoutes(r, services)

	// 啟動伺服器
	// 使用配置中指定的地址啟動 HTTP 服務器
	if err := r.Run(cfg.Server.Address); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
