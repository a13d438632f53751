package routes

import (
	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/brandonscholten/capstone-spring-2025/controllers"
	"github.com/brandonscholten/capstone-spring-2025/services/redis"
	"github.com/brandonscholten/capstone-spring-2025/utils"
)

// SetupRoutes configures the status API.
func SetupRoutes(router *gin.Engine, redisClient *redis.RedisClient) {
	router.Use(utils.ErrorHandler())

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/")

	api.GET("/ping", controllers.Ping)

	api.GET("/sessions", controllers.GetLiveSessions(redisClient))
}
