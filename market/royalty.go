package market

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

const royaltyBucket = "royalties"

// RoyaltyRecord fixes the creator cut for one asset. A record is written at
// mint time or never, and it does not change afterwards: the royalty terms
// apply to every resale over the asset's life.
type RoyaltyRecord struct {
	Recipient string `json:"recipient"`
	RateBps   uint64 `json:"rate_bps"`
}

// quote computes the royalty share of a sale price with floor division.
func (r *RoyaltyRecord) quote(salePrice uint64) uint64 {
	return salePrice * r.RateBps / bpsDenominator
}

// getRoyalty returns nil without error when the asset has no royalty terms.
func getRoyalty(tx *bolt.Tx, assetID uint64) (*RoyaltyRecord, error) {
	raw := tx.Bucket([]byte(royaltyBucket)).Get(itob(assetID))
	if raw == nil {
		return nil, nil
	}

	var rec RoyaltyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode royalty record %d: %w", assetID, err)
	}
	return &rec, nil
}

func putRoyalty(tx *bolt.Tx, assetID uint64, rec RoyaltyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode royalty record %d: %w", assetID, err)
	}
	return tx.Bucket([]byte(royaltyBucket)).Put(itob(assetID), raw)
}
