package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mintmark-inc/mintmark-trade/funds"
)

type depositRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

func handleDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Account); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "account not registered"})
			return
		}

		balance, err := ledger.Credit(req.Account, req.Amount)
		if err != nil {
			switch {
			case errors.Is(err, funds.ErrInvalidAmount):
				c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			case errors.Is(err, funds.ErrBalanceOverflow):
				c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": req.Account, "balance": balance})
	}
}

func handleBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountNo := c.Param("accountNo")
		if _, err := getAccount(accountNo); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
			return
		}

		balance, err := ledger.BalanceOf(accountNo)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": accountNo, "balance": balance})
	}
}
