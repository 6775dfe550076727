package main

import (
	"context"
	"log"
	"time"

	"abtrust/internal/api"
	"abtrust/internal/config"
	"abtrust/internal/container"
	"abtrust/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase opens the PostgreSQL connection used for audit-run history
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	if !appConfig.Database.Enabled() {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	if appConfig.Database.Enabled() {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		if err := appContainer.InitWithDatabase(context.Background(), db); err != nil {
			log.Fatalf("Failed to initialize container: %v", err)
		}
	} else {
		log.Println("⚠️ DATABASE_URL not set, audit runs will not be persisted")
	}

	plan, err := appContainer.Service.Plan(appConfig.Experiment)
	if err != nil {
		log.Printf("⚠️ Default experiment %q cannot be planned: %v", appConfig.Experiment.Name, err)
	} else {
		log.Printf("📐 Default experiment %q needs %d subjects (%d days at %d/day)",
			appConfig.Experiment.Name, plan.RequiredN, plan.RequiredDays, plan.DailyVolume)
	}

	// Start ops server for health, metrics and profiling
	if appConfig.Profiling.Enabled {
		go func() {
			log.Printf("🚀 Ops server starting on :%s", appConfig.Profiling.Port)
			log.Printf("💡 View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
			if err := appContainer.OpsServer().Start(":" + appConfig.Profiling.Port); err != nil {
				log.Printf("❌ Ops server failed: %v", err)
			}
		}()
	}

	router := api.NewRouter(appContainer.Handler)
	log.Printf("🚀 Starting abtrust server on port %s", appConfig.Server.Port)
	log.Fatal(router.Run(":" + appConfig.Server.Port))
}
