package main

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mintmark-inc/mintmark-trade/market"
)

type listRequest struct {
	AssetID uint64 `json:"asset_id"`
	Seller  string `json:"seller"`
	Price   uint64 `json:"price"`
}

type buyRequest struct {
	AssetID    uint64 `json:"asset_id"`
	Buyer      string `json:"buyer"`
	PaidAmount uint64 `json:"paid_amount"`
}

type cancelRequest struct {
	AssetID uint64 `json:"asset_id"`
	Caller  string `json:"caller"`
}

func handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req listRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Seller); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "seller not registered"})
			return
		}

		listing, err := engine.List(req.AssetID, req.Seller, req.Price)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing": listing})
	}
}

func handleBuy() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req buyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Buyer); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "buyer not registered"})
			return
		}

		sale, err := engine.Buy(req.AssetID, req.Buyer, req.PaidAmount)
		if err != nil {
			abortWithError(c, err)
			return
		}

		message, signature := signSaleReceipt(sale)
		c.JSON(http.StatusOK, gin.H{
			"receipt":        sale,
			"signed_message": message,
			"signature":      signature,
			"signed_by":      svcAccount.number,
		})
	}
}

// signSaleReceipt signs the settlement summary with the service key so
// callers can prove the sale was settled by this marketplace.
func signSaleReceipt(sale *market.Sale) (message, signature string) {
	ts := strconv.FormatInt(sale.SoldAt.UnixNano()/1000000, 10)
	parts := []string{
		sale.ID,
		strconv.FormatUint(sale.AssetID, 10),
		sale.Buyer,
		sale.Seller,
		strconv.FormatUint(sale.Price, 10),
		ts,
	}
	message = strings.Join(parts, "|")
	signature = hex.EncodeToString(svcAccount.sign([]byte(message)))
	return message, signature
}

func handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if _, err := getAccount(req.Caller); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "caller not registered"})
			return
		}

		if err := engine.Cancel(req.AssetID, req.Caller); err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"asset_id": req.AssetID, "owner": req.Caller})
	}
}
