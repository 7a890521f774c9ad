package market

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"
)

// MaxPrice bounds listing prices so that basis-point splits of the price
// cannot overflow uint64.
const MaxPrice = math.MaxUint64 / bpsDenominator

const listingBucket = "listings"

// Listing is a sale offer, live or settled. At most one listing record
// exists per asset; relisting overwrites the previous, inactive record.
type Listing struct {
	AssetID   uint64    `json:"asset_id"`
	Seller    string    `json:"seller"`
	Price     uint64    `json:"price"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// getListing returns nil without error when the asset was never listed.
func getListing(tx *bolt.Tx, assetID uint64) (*Listing, error) {
	raw := tx.Bucket([]byte(listingBucket)).Get(itob(assetID))
	if raw == nil {
		return nil, nil
	}

	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode listing %d: %w", assetID, err)
	}
	return &l, nil
}

func putListing(tx *bolt.Tx, l *Listing) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listing %d: %w", l.AssetID, err)
	}
	return tx.Bucket([]byte(listingBucket)).Put(itob(l.AssetID), raw)
}
