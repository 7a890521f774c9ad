package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type mintRequest struct {
	Holder           string `json:"holder"`
	MetadataRef      string `json:"metadata_ref"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	RoyaltyRateBps   uint64 `json:"royalty_rate_bps"`
}

func handleMint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
			return
		}
		if req.MetadataRef == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "metadata_ref is required"})
			return
		}
		if _, err := getAccount(req.Holder); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "holder not registered"})
			return
		}
		if req.RoyaltyRateBps > 0 {
			if _, err := getAccount(req.RoyaltyRecipient); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"message": "royalty recipient not registered"})
				return
			}
		}

		assetID, err := engine.Mint(req.Holder, req.MetadataRef, req.RoyaltyRecipient, req.RoyaltyRateBps)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"asset_id": assetID})
	}
}
