package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brandonscholten/capstone-spring-2025/services/redis"
)

// @Summary Health probe
// @Description Returns pong if the coordinator is up
// @Tags status
// @Produce json
// @Success 200 {object} object{message=string}
// @Router /ping [get]
func Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// @Summary Lists live sessions
// @Description Returns the sessions currently tracked in the registry
// @Tags status
// @Produce json
// @Success 200 {array} object{id=string,kind=string,title=string,start_time=string,end_time=string,attending=integer,capacity=integer}
// @Failure 500 {object} object{error=string}
// @Router /sessions [get]
func GetLiveSessions(redisClient *redis.RedisClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessions, err := redisClient.ListSessions()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list sessions"})
			return
		}

		list := make([]gin.H, 0, len(sessions))
		for _, session := range sessions {
			list = append(list, gin.H{
				"id":         session.Id,
				"kind":       session.Kind,
				"title":      session.Title,
				"start_time": session.StartTime,
				"end_time":   session.EndTime,
				"attending":  len(session.Roster),
				"capacity":   session.Capacity,
			})
		}
		c.JSON(http.StatusOK, list)
	}
}
