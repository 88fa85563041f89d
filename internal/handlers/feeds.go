package handlers

import (
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/idohaver7/PatrolVision/internal/services"
)

var (
	feedHub  *services.FeedHub
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins for now
		},
	}
)

// SetFeedHub sets the feed hub for the handlers
func SetFeedHub(hub *services.FeedHub) {
	feedHub = hub
}

// HandleViolationFeed upgrades an admin connection to the live violation feed
func HandleViolationFeed(c *gin.Context) {
	if feedHub == nil {
		respondError(c, http.StatusServiceUnavailable, "Feed hub not initialized")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	userID, _ := currentUser(c)
	client := services.NewFeedClient(feedHub, conn, strconv.FormatUint(uint64(userID), 10), c.ClientIP())

	feedHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// GetFeedHubStats returns feed hub statistics
func GetFeedHubStats(c *gin.Context) {
	if feedHub == nil {
		c.JSON(http.StatusOK, gin.H{
			"enabled": false,
		})
		return
	}

	stats := feedHub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"enabled":   true,
		"clients":   stats.Clients,
		"delivered": stats.Delivered,
		"dropped":   stats.Dropped,
	})
}
