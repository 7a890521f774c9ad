package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mintmark-inc/mintmark-trade/market"
)

// Metrics used in monitoring the marketplace.
var (
	mintedAssets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of assets minted",
			Name:      "assets_minted_total",
			Namespace: "mintmark",
		},
	)
	createdListings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of listings created",
			Name:      "listings_created_total",
			Namespace: "mintmark",
		},
	)
	cancelledListings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of listings cancelled",
			Name:      "listings_cancelled_total",
			Namespace: "mintmark",
		},
	)
	settledSales = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Number of sales settled",
			Name:      "sales_settled_total",
			Namespace: "mintmark",
		},
	)
	tradedVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Sum of sale prices settled",
			Name:      "traded_volume_total",
			Namespace: "mintmark",
		},
	)
	collectedFees = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Sum of marketplace fees collected",
			Name:      "collected_fees_total",
			Namespace: "mintmark",
		},
	)
	paidRoyalties = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Sum of royalties paid out",
			Name:      "paid_royalties_total",
			Namespace: "mintmark",
		},
	)
	activeListings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of currently active listings",
			Name:      "active_listings",
			Namespace: "mintmark",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mintedAssets,
		createdListings,
		cancelledListings,
		settledSales,
		tradedVolume,
		collectedFees,
		paidRoyalties,
		activeListings,
	)
}

// trackMarketMetrics feeds the collectors from the committed-event feed.
func trackMarketMetrics(feed *market.Feed) {
	ch := feed.Subscribe()
	for ev := range ch {
		switch ev.Type {
		case market.EventAssetCreated:
			mintedAssets.Inc()
		case market.EventListed:
			createdListings.Inc()
			activeListings.Inc()
		case market.EventListingCancelled:
			cancelledListings.Inc()
			activeListings.Dec()
		case market.EventSold:
			settledSales.Inc()
			activeListings.Dec()
			tradedVolume.Add(float64(ev.Price))
			collectedFees.Add(float64(ev.Fee))
			paidRoyalties.Add(float64(ev.Royalty))
		}
	}
	log.Warn("metrics subscriber dropped from the event feed")
}
