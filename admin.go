package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type feeRequest struct {
	Caller  string `json:"caller"`
	RateBps uint64 `json:"rate_bps"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
}

func handleFee() gin.HandlerFunc {
	return func(c *gin.Context) {
		rate, err := engine.FeeRate()
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"fee_bps": rate})
	}
}

func handleSetFee() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req feeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Caller); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "caller not registered"})
			return
		}

		if err := engine.SetFee(req.Caller, req.RateBps); err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"fee_bps": req.RateBps})
	}
}

func handleWithdraw() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Caller); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "caller not registered"})
			return
		}

		amount, err := engine.Withdraw(req.Caller)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"amount": amount, "to": adminAccount.number})
	}
}
