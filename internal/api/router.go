package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"greendrake/realty/internal/config"
	"greendrake/realty/internal/notify"
	"greendrake/realty/internal/services"
)

// Polling of mock notifications in getTestNotification.
var (
	notificationPollAttempts = 10
	notificationPollInterval = 200 * time.Millisecond
)

type serviceRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments"`
}

// SetupServiceRouter configures and returns the service Gin engine. It is an operator surface
// bound to a private port: liveness, shutdown, an on-demand expiry sweep and, for end-to-end
// tests, reading back mock notifications from Redis. rdb may be nil when Redis is not in use.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, expiryService services.IExpiryService, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req serviceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "ping":
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "pong", "app": cfg.AppName})
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "expireReservations":
			handleExpireReservations(c, expiryService)
		case "getTestNotification":
			handleGetTestNotification(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

func handleExpireReservations(c *gin.Context, expiryService services.IExpiryService) {
	count, err := expiryService.ExpireReservations(c.Request.Context())
	if err != nil {
		log.Printf("Service API: expiry sweep failed after releasing %d reservations: %v", count, err)
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error(), "result": gin.H{"released": count}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": gin.H{"released": count}})
}

func handleGetTestNotification(c *gin.Context, rdb *redis.Client, rawArgs json.RawMessage) {
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Redis is not configured"})
		return
	}
	var args []string // Expect ["room", "kind"]
	if err := json.Unmarshal(rawArgs, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [room, kind]"})
		return
	}
	redisKey := notify.MockKey(args[0], notify.Kind(args[1]))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data string
	found := false
	for i := 0; i < notificationPollAttempts; i++ {
		var getErr error
		data, getErr = rdb.Get(ctx, redisKey).Result()
		if getErr == nil {
			found = true
			rdb.Del(ctx, redisKey)
			break
		}
		if !errors.Is(getErr, redis.Nil) {
			log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(notificationPollInterval)
	}

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test notification not found in Redis for key %s", redisKey)})
		return
	}

	var ev map[string]interface{}
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		log.Printf("Service API: Error unmarshalling notification from key %s: %v", redisKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": ev})
}
