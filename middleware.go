package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mintmark-inc/mintmark-trade/market"
)

// abortWithError maps an engine failure onto the HTTP surface.
func abortWithError(c *gin.Context, err error) {
	var status int
	switch market.Classify(err) {
	case market.KindUnauthorized:
		status = http.StatusForbidden
	case market.KindInvalidInput:
		status = http.StatusBadRequest
	case market.KindStateConflict:
		status = http.StatusConflict
	case market.KindInsufficientPayment:
		status = http.StatusPaymentRequired
	case market.KindTransferFailure:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"message": err.Error()})
}

// requestLogger reports every request once it completes.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// serializeWrites makes mutating routes take turns. The engine expects
// calls to arrive one at a time; overlapping requests would trip its
// reentrancy guard instead of queueing.
func serializeWrites() gin.HandlerFunc {
	var mu sync.Mutex
	return func(c *gin.Context) {
		mu.Lock()
		defer mu.Unlock()
		c.Next()
	}
}
