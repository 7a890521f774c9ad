package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mintmark-inc/mintmark-trade/market"
	"github.com/mintmark-inc/mintmark-trade/registry"
)

func assetIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("assetId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid asset id"})
		return 0, false
	}
	return id, true
}

func handleAssetLookup() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID, ok := assetIDParam(c)
		if !ok {
			return
		}

		asset, err := assets.Asset(assetID)
		if err != nil {
			if errors.Is(err, registry.ErrUnknownAsset) {
				c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
				return
			}
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"asset": asset})
	}
}

func handleRoyaltyQuote() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID, ok := assetIDParam(c)
		if !ok {
			return
		}
		price, err := strconv.ParseUint(c.Query("price"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid price"})
			return
		}

		recipient, amount, err := engine.RoyaltyQuote(assetID, price)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"recipient": recipient, "amount": amount})
	}
}

func handleListingLookup() gin.HandlerFunc {
	return func(c *gin.Context) {
		assetID, ok := assetIDParam(c)
		if !ok {
			return
		}

		listing, err := engine.Listing(assetID)
		if err != nil {
			if errors.Is(err, market.ErrNotListed) {
				c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
				return
			}
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing": listing})
	}
}

func handleActiveListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		listings, err := engine.ActiveListings()
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listings": listings})
	}
}
