package market

import (
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Fee and royalty bounds, in basis points of the sale price.
const (
	// DefaultFeeBps is the marketplace fee applied until an administrator
	// configures another rate.
	DefaultFeeBps = 250
	// MaxFeeBps is the ceiling an administrator can raise the marketplace
	// fee to.
	MaxFeeBps = 1000
	// MaxRoyaltyBps is the ceiling accepted for per-asset royalty rates.
	MaxRoyaltyBps = 1000
	// bpsDenominator converts basis points to fractions: 10000 bps = 100%.
	bpsDenominator = 10000
)

const policyBucket = "policy"

// feeKey is the policy bucket key holding the marketplace fee rate.
var feeKey = []byte("fee_bps")

// feeRate reads the rate in force. The bucket is seeded when the engine
// starts, so a missing key only happens on a fresh database mid-init.
func feeRate(tx *bolt.Tx) uint64 {
	raw := tx.Bucket([]byte(policyBucket)).Get(feeKey)
	if raw == nil {
		return DefaultFeeBps
	}
	return binary.BigEndian.Uint64(raw)
}

func putFeeRate(tx *bolt.Tx, rate uint64) error {
	if rate > MaxFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, rate)
	}
	return tx.Bucket([]byte(policyBucket)).Put(feeKey, itob(rate))
}
