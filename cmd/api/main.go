package main

import (
	"log"
	"os"

	"innovation-review-api/config"
	"innovation-review-api/controllers"
	"innovation-review-api/middleware"
	"innovation-review-api/models"
	"innovation-review-api/monitor"
	"innovation-review-api/routes"
	"innovation-review-api/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logFile, logWriter := config.InitLogging()
	if logFile != nil {
		defer logFile.Close()
	}

	appCfg := config.LoadAppConfig()
	if appCfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	// Initialize database
	config.InitDB()
	if err := models.Migrate(config.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	criteria, err := config.LoadCriteria(appCfg.CriteriaFile)
	if err != nil {
		log.Fatalf("Failed to load scoring criteria: %v", err)
	}

	// Create upload directory if not exists
	if err := os.MkdirAll(appCfg.UploadPath, os.ModePerm); err != nil {
		log.Printf("Warning: Failed to create upload directory: %v", err)
	}

	files, err := services.NewFileExchangeManager(services.FileExchangeConfig{
		Root:               appCfg.UploadPath,
		StaticTemplateFile: appCfg.StaticTemplateFile,
		TemplateMasterFile: appCfg.TemplateMasterFile,
		Criteria:           criteria,
	})
	if err != nil {
		log.Fatalf("Failed to prepare file storage: %v", err)
	}

	var notifier services.Notifier = services.NopNotifier{}
	if config.MailConfigured() {
		notifier = services.NewMailNotifier(config.DB)
		log.Printf("📧 Judge notifications enabled")
	}

	settings := services.NewSettingsService(config.DB)
	aggregator := &services.ScoreAggregator{}
	states := services.NewAssignmentStateMachine(config.DB, aggregator, notifier)

	handler := &controllers.Handler{
		Allocator: services.NewAssignmentAllocator(config.DB, settings, notifier),
		States:    states,
		Exchange:  services.NewExchangeService(states, files, settings),
		IdeaFiles: services.NewIdeaFileService(config.DB, files, settings),
		Reviews:   services.NewReviewService(config.DB, criteria, states, aggregator),
		Settings:  settings,
		BaseURL:   appCfg.PublicBaseURL,
	}

	// Set Gin mode
	if appCfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = logWriter
	gin.DefaultErrorWriter = logWriter

	// Create Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(controllers.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(appCfg.AllowedOrigins))
	router.Use(middleware.Metrics())

	monitor.RegisterRoutes(router, config.DB, os.Getenv("LOGS_TOKEN"))
	routes.SetupRoutes(router, handler, middleware.AuthMiddleware(appCfg.JWTSecret, middleware.ActiveUserChecker(config.DB)))

	log.Printf("🚀 Server starting on port %s", appCfg.Port)
	if appCfg.GinMode == "release" {
		log.Printf("🏭 Running in production mode")
	} else {
		log.Printf("🔧 Running in development mode")
	}

	if err := router.Run(":" + appCfg.Port); err != nil {
		log.Fatal("❌ Failed to start server:", err)
	}
}
