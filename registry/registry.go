// Package registry is the authoritative ledger of unique assets. It issues
// monotonically increasing identifiers, tracks the current holder of every
// asset and executes ownership transfers. The marketplace engine drives it
// through shared bolt transactions so that custody moves commit or roll back
// together with the trade state that caused them.
package registry

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrUnknownAsset is returned when no asset exists under the requested id.
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrNotHolder is returned when a transfer names a sender that is not
	// the current holder of the asset.
	ErrNotHolder = errors.New("not the current holder")
)

const assetBucket = "assets"

// Asset is the registry record of one unique item. Assets are created once
// and never destroyed; only the Owner field changes over their lifetime.
type Asset struct {
	ID          uint64    `json:"id"`
	Owner       string    `json:"owner"`
	Issuer      string    `json:"issuer"`
	MetadataRef string    `json:"metadata_ref"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Registry is a bolt-backed asset ledger. Mutating methods operate inside a
// caller-provided read-write transaction so that multi-step operations stay
// atomic.
type Registry struct {
	db *bolt.DB
}

// New prepares the asset bucket on the shared database.
func New(db *bolt.DB) (*Registry, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(assetBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("init asset bucket: %w", err)
	}
	return &Registry{db: db}, nil
}

// Create issues the next asset id to owner and records the asset. Ids are
// strictly increasing; an id reserved by a failed operation is never reused
// because the sequence update rolls back with the transaction.
func (r *Registry) Create(tx *bolt.Tx, owner, metadataRef string) (uint64, error) {
	b := tx.Bucket([]byte(assetBucket))
	id, err := b.NextSequence()
	if err != nil {
		return 0, err
	}

	asset := Asset{
		ID:          id,
		Owner:       owner,
		Issuer:      owner,
		MetadataRef: metadataRef,
		Fingerprint: Fingerprint(metadataRef),
		CreatedAt:   time.Now().UTC(),
	}
	if err := putAsset(tx, &asset); err != nil {
		return 0, err
	}

	return id, nil
}

// OwnerOf reports the current holder of an asset.
func (r *Registry) OwnerOf(tx *bolt.Tx, id uint64) (string, error) {
	asset, err := getAsset(tx, id)
	if err != nil {
		return "", err
	}
	return asset.Owner, nil
}

// Transfer moves an asset from its current holder to another account. It
// refuses to move an asset the sender does not hold.
func (r *Registry) Transfer(tx *bolt.Tx, from, to string, id uint64) error {
	asset, err := getAsset(tx, id)
	if err != nil {
		return err
	}
	if asset.Owner != from {
		return fmt.Errorf("%w: asset %d belongs to %s", ErrNotHolder, id, asset.Owner)
	}

	asset.Owner = to
	return putAsset(tx, asset)
}

// Asset looks up a registry record outside of any enclosing operation.
func (r *Registry) Asset(id uint64) (*Asset, error) {
	var asset *Asset
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		asset, err = getAsset(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// Fingerprint derives the content fingerprint recorded for a metadata
// reference.
func Fingerprint(metadataRef string) string {
	digest := sha3.Sum512([]byte(metadataRef))
	return hex.EncodeToString(digest[:])
}

func getAsset(tx *bolt.Tx, id uint64) (*Asset, error) {
	raw := tx.Bucket([]byte(assetBucket)).Get(itob(id))
	if raw == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAsset, id)
	}

	var asset Asset
	if err := json.Unmarshal(raw, &asset); err != nil {
		return nil, fmt.Errorf("decode asset %d: %w", id, err)
	}
	return &asset, nil
}

func putAsset(tx *bolt.Tx, asset *Asset) error {
	raw, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("encode asset %d: %w", asset.ID, err)
	}
	return tx.Bucket([]byte(assetBucket)).Put(itob(asset.ID), raw)
}

// Asset keys are big-endian uint64s so bucket iteration follows issue order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
