package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventLogDefaultLimit = "100"
	eventLogMaxLimit     = 1000
)

func handleEventLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid since"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", eventLogDefaultLimit))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
		if limit > eventLogMaxLimit {
			limit = eventLogMaxLimit
		}

		evs, err := engine.Events(since, limit)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"events": evs})
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleEventFeed streams committed events over a websocket until the
// client goes away or falls too far behind. The subscription starts before
// the handshake completes, so clients see every event published after the
// dial returns.
func handleEventFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		feed := engine.Feed()
		ch := feed.Subscribe()
		defer feed.Unsubscribe(ch)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Drain client frames so closes are noticed.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.NextReader(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					// Dropped by the feed for falling behind.
					return
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}
