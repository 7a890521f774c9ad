package market

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	bolt "go.etcd.io/bbolt"
)

const eventBucket = "events"

// EventType tags the records appended to the marketplace log.
type EventType string

// Event types emitted by the engine.
const (
	EventAssetCreated     EventType = "asset_created"
	EventRoyaltySet       EventType = "royalty_set"
	EventListed           EventType = "listed"
	EventSold             EventType = "sold"
	EventListingCancelled EventType = "listing_cancelled"
	EventFeeChanged       EventType = "fee_changed"
	EventFundsWithdrawn   EventType = "funds_withdrawn"
)

// Event is one record of the persisted marketplace log. Records are
// appended in the same transaction as the state change they describe, so
// the log never mentions an effect that rolled back.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	AssetID   uint64    `json:"asset_id,omitempty"`
	SaleID    string    `json:"sale_id,omitempty"`
	Owner     string    `json:"owner,omitempty"`
	Seller    string    `json:"seller,omitempty"`
	Buyer     string    `json:"buyer,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Price     uint64    `json:"price,omitempty"`
	Fee       uint64    `json:"fee,omitempty"`
	Royalty   uint64    `json:"royalty,omitempty"`
	Proceeds  uint64    `json:"proceeds,omitempty"`
	Refund    uint64    `json:"refund,omitempty"`
	RateBps   uint64    `json:"rate_bps,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
}

func appendEvent(tx *bolt.Tx, ev Event) (Event, error) {
	b := tx.Bucket([]byte(eventBucket))

	seq, err := b.NextSequence()
	if err != nil {
		return Event{}, err
	}
	ev.Seq = seq
	ev.Time = time.Now().UTC()

	raw, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("encode event %d: %w", seq, err)
	}
	if err := b.Put(itob(seq), raw); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// readEvents returns events with sequence numbers greater than since,
// oldest first. A positive limit caps the result.
func readEvents(tx *bolt.Tx, since uint64, limit int) ([]Event, error) {
	evs := []Event{}
	if since == math.MaxUint64 {
		return evs, nil
	}

	c := tx.Bucket([]byte(eventBucket)).Cursor()
	for k, v := c.Seek(itob(since + 1)); k != nil; k, v = c.Next() {
		var ev Event
		if err := json.Unmarshal(v, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		evs = append(evs, ev)
		if limit > 0 && len(evs) == limit {
			break
		}
	}
	return evs, nil
}

// Bucket keys are big-endian uint64s so cursor order follows numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
