package controllers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"portalti-api/services"
)

var (
	presenceOnce sync.Once
	presence     services.Presence
)

func getPresence() services.Presence {
	presenceOnce.Do(func() {
		presence = services.NewPresence()
	})
	return presence
}

// Heartbeat refreshes the caller's online TTL.
func Heartbeat(c *gin.Context) {
	actor := currentActor(c)
	if err := getPresence().Touch(c.Request.Context(), actor.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record heartbeat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetOnlineUsers lists user IDs with a fresh heartbeat.
func GetOnlineUsers(c *gin.Context) {
	ids, err := getPresence().Online(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch presence"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "online": ids, "total": len(ids)})
}
