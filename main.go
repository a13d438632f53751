package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/brandonscholten/capstone-spring-2025/config"
	pgconfig "github.com/brandonscholten/capstone-spring-2025/config/postgres"
	"github.com/brandonscholten/capstone-spring-2025/middleware"
	"github.com/brandonscholten/capstone-spring-2025/routes"
	"github.com/brandonscholten/capstone-spring-2025/services/announcer"
	"github.com/brandonscholten/capstone-spring-2025/services/approval"
	"github.com/brandonscholten/capstone-spring-2025/services/backend"
	"github.com/brandonscholten/capstone-spring-2025/services/bus"
	"github.com/brandonscholten/capstone-spring-2025/services/calendar"
	"github.com/brandonscholten/capstone-spring-2025/services/coordinator"
	"github.com/brandonscholten/capstone-spring-2025/services/gateway"
	"github.com/brandonscholten/capstone-spring-2025/services/mail"
	"github.com/brandonscholten/capstone-spring-2025/services/redis"
	"github.com/brandonscholten/capstone-spring-2025/services/scheduler"
)

// @title Session Coordinator API
// @version 1.0
// @description Status API for the tabletop session coordinator
// @BasePath /
func main() {
	godotenv.Load()
	log.Println("Setting up coordinator...")

	if os.Getenv("PROD") == "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	gormDB, err := pgconfig.ConnectGORM()
	if err != nil {
		log.Fatalf("Error connecting to PostgreSQL: %v", err)
	}
	log.Println("GORM Connected")

	if os.Getenv("MIGRATE_POSTGRES") == "true" {
		log.Println("Migrating PostgreSQL database...")
		if err := pgconfig.MigrateDatabase(gormDB); err != nil {
			log.Printf("Warning: Database migration failed: %v", err)
		} else {
			log.Println("Database migrated successfully")
		}
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("Error reading GORM PostgreSQL instance: %v", err)
	}
	defer sqlDB.Close()

	redisClient, err := config.Connect_redis()
	if err != nil {
		log.Fatalf("Error connecting to Redis: %v", err)
	}
	defer redis.CloseRedis(redisClient)

	r := gin.Default()
	middleware.SetUpMiddleware(r)
	routes.SetupRoutes(r, redisClient)

	sio := gateway.NewSocketServer()
	sio.Start(r, gormDB)
	defer sio.Close()

	backendClient := backend.NewClient(os.Getenv("BACKEND_URL"))
	calendarClient := calendar.New(os.Getenv("CALENDAR_FEED_URL"), os.Getenv("CALENDAR_API_URL"))
	mailer := mail.NewSender()

	actions := scheduler.New(gormDB, redisClient, sio, backendClient)
	announcements := announcer.New(sio, redisClient, actions,
		os.Getenv("GAMES_CHANNEL"), os.Getenv("EVENTS_CHANNEL"))
	rsvp := coordinator.New(redisClient, sio, announcements, backendClient, actions)
	sio.SetReactionHandler(rsvp)

	approvals := approval.New(sio, redisClient, calendarClient, backendClient, mailer)

	if err := actions.RestorePending(); err != nil {
		log.Printf("Warning: could not restore scheduled actions: %v", err)
	}

	listener := bus.NewListener(redisClient, announcements, approvals)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Listen(ctx)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Error starting server: %v", err)
	}
}
