// Package market implements the listing, escrow and settlement engine of
// the marketplace: the state machine that takes an asset from owned through
// listed to sold, and the payment splitting that runs on every purchase.
//
// The engine owns the mutable trade state (listings, royalty records, fee
// policy, event log) and drives two injected collaborators: an asset
// registry for custody moves and a fund ledger for payments. Every
// operation executes inside a single bolt read-write transaction, so each
// one is all-or-nothing; the commit is the only point where its effects
// become visible.
package market

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// AssetRegistry issues asset identifiers, tracks holders and executes
// custody moves. Methods run inside the engine's transaction so custody
// changes commit together with the trade state.
type AssetRegistry interface {
	Create(tx *bolt.Tx, owner, metadataRef string) (uint64, error)
	OwnerOf(tx *bolt.Tx, assetID uint64) (string, error)
	Transfer(tx *bolt.Tx, from, to string, assetID uint64) error
}

// FundLedger moves funds between accounts inside the engine's transaction.
type FundLedger interface {
	Transfer(tx *bolt.Tx, from, to string, amount uint64) error
	Balance(tx *bolt.Tx, account string) uint64
}

// Config wires an Engine to its collaborator accounts.
type Config struct {
	// MarketAccount holds listed assets in escrow and relays every
	// payment made through the marketplace.
	MarketAccount string
	// AdminAccount is the administrative principal: the only account
	// allowed to change the fee policy and the recipient of collected
	// fees and treasury withdrawals.
	AdminAccount string
	// InitialFeeBps seeds the fee policy on a fresh database. Zero keeps
	// DefaultFeeBps.
	InitialFeeBps uint64
	Logger        *zap.Logger
}

// Engine executes marketplace operations against the shared database.
type Engine struct {
	db     *bolt.DB
	assets AssetRegistry
	funds  FundLedger

	market string
	admin  string

	log  *zap.Logger
	feed *Feed

	// busy rejects reentrant invocations: a collaborator that calls back
	// into the engine while an operation is in flight fails with
	// ErrOperationInProgress instead of deadlocking on the database
	// writer lock.
	busy atomic.Bool
}

// NewEngine prepares the market buckets and seeds the fee policy when none
// has been persisted yet.
func NewEngine(db *bolt.DB, assets AssetRegistry, funds FundLedger, cfg Config) (*Engine, error) {
	if cfg.MarketAccount == "" || cfg.AdminAccount == "" {
		return nil, fmt.Errorf("%w: engine needs market and admin accounts", ErrInvalidAccount)
	}
	if cfg.InitialFeeBps > MaxFeeBps {
		return nil, fmt.Errorf("%w: %d bps", ErrFeeTooHigh, cfg.InitialFeeBps)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{listingBucket, royaltyBucket, policyBucket, eventBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		if tx.Bucket([]byte(policyBucket)).Get(feeKey) != nil {
			return nil
		}
		rate := cfg.InitialFeeBps
		if rate == 0 {
			rate = DefaultFeeBps
		}
		return putFeeRate(tx, rate)
	})
	if err != nil {
		return nil, fmt.Errorf("init market buckets: %w", err)
	}

	return &Engine{
		db:     db,
		assets: assets,
		funds:  funds,
		market: cfg.MarketAccount,
		admin:  cfg.AdminAccount,
		log:    log,
		feed:   newFeed(),
	}, nil
}

// Feed returns the engine's committed-event feed.
func (e *Engine) Feed() *Feed {
	return e.feed
}

// enter marks the engine busy for the duration of one mutating operation.
func (e *Engine) enter() error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrOperationInProgress
	}
	return nil
}

func (e *Engine) exit() {
	e.busy.Store(false)
}

// Mint creates an asset owned by holder and, when royaltyBps is positive,
// fixes its royalty terms for the asset's life. It returns the new asset
// id.
func (e *Engine) Mint(holder, metadataRef, royaltyRecipient string, royaltyBps uint64) (uint64, error) {
	if holder == "" {
		return 0, fmt.Errorf("%w: empty holder", ErrInvalidAccount)
	}
	if royaltyBps > MaxRoyaltyBps {
		return 0, fmt.Errorf("%w: %d bps exceeds ceiling %d", ErrInvalidRoyalty, royaltyBps, MaxRoyaltyBps)
	}
	if royaltyBps > 0 && royaltyRecipient == "" {
		return 0, fmt.Errorf("%w: no recipient for %d bps", ErrInvalidRoyalty, royaltyBps)
	}

	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	var (
		assetID uint64
		evs     []Event
	)
	err := e.db.Update(func(tx *bolt.Tx) error {
		id, err := e.assets.Create(tx, holder, metadataRef)
		if err != nil {
			return fmt.Errorf("create asset: %w", err)
		}
		assetID = id

		ev, err := appendEvent(tx, Event{Type: EventAssetCreated, AssetID: id, Owner: holder})
		if err != nil {
			return err
		}
		evs = append(evs, ev)

		if royaltyBps == 0 {
			return nil
		}
		if err := putRoyalty(tx, id, RoyaltyRecord{Recipient: royaltyRecipient, RateBps: royaltyBps}); err != nil {
			return err
		}
		ev, err = appendEvent(tx, Event{Type: EventRoyaltySet, AssetID: id, Recipient: royaltyRecipient, RateBps: royaltyBps})
		if err != nil {
			return err
		}
		evs = append(evs, ev)
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.feed.publish(evs...)
	e.log.Info("asset minted",
		zap.Uint64("asset_id", assetID),
		zap.String("holder", holder),
		zap.Uint64("royalty_bps", royaltyBps))
	return assetID, nil
}

// List puts an asset up for sale. Custody moves to the market account and
// the listing activates in the same transaction: there is no state where
// one holds without the other.
func (e *Engine) List(assetID uint64, seller string, price uint64) (*Listing, error) {
	if seller == "" {
		return nil, fmt.Errorf("%w: empty seller", ErrInvalidAccount)
	}
	if price == 0 || price > MaxPrice {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrice, price)
	}

	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	var (
		listing *Listing
		ev      Event
	)
	err := e.db.Update(func(tx *bolt.Tx) error {
		current, err := getListing(tx, assetID)
		if err != nil {
			return err
		}
		if current != nil && current.Active {
			return fmt.Errorf("%w: asset %d", ErrAlreadyListed, assetID)
		}

		owner, err := e.assets.OwnerOf(tx, assetID)
		if err != nil {
			return fmt.Errorf("%w: %d", ErrUnknownAsset, assetID)
		}
		if owner != seller {
			return fmt.Errorf("%w: asset %d belongs to %s", ErrNotOwner, assetID, owner)
		}

		if err := e.assets.Transfer(tx, seller, e.market, assetID); err != nil {
			return fmt.Errorf("%w: escrow asset %d: %v", ErrTransferFailed, assetID, err)
		}

		listing = &Listing{
			AssetID:   assetID,
			Seller:    seller,
			Price:     price,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
		if err := putListing(tx, listing); err != nil {
			return err
		}

		ev, err = appendEvent(tx, Event{Type: EventListed, AssetID: assetID, Seller: seller, Price: price})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.feed.publish(ev)
	e.log.Info("asset listed",
		zap.Uint64("asset_id", assetID),
		zap.String("seller", seller),
		zap.Uint64("price", price))
	return listing, nil
}

// Cancel withdraws an active listing. Only the seller that created the
// listing may cancel it; the asset returns to the seller in the same
// transaction that deactivates the listing.
func (e *Engine) Cancel(assetID uint64, caller string) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	var ev Event
	err := e.db.Update(func(tx *bolt.Tx) error {
		listing, err := getListing(tx, assetID)
		if err != nil {
			return err
		}
		if listing == nil || !listing.Active {
			return fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
		}
		if listing.Seller != caller {
			return fmt.Errorf("%w: listing belongs to %s", ErrNotSeller, listing.Seller)
		}

		listing.Active = false
		if err := putListing(tx, listing); err != nil {
			return err
		}
		if err := e.assets.Transfer(tx, e.market, listing.Seller, assetID); err != nil {
			return fmt.Errorf("%w: release asset %d: %v", ErrTransferFailed, assetID, err)
		}

		ev, err = appendEvent(tx, Event{Type: EventListingCancelled, AssetID: assetID, Seller: listing.Seller})
		return err
	})
	if err != nil {
		return err
	}

	e.feed.publish(ev)
	e.log.Info("listing cancelled",
		zap.Uint64("asset_id", assetID),
		zap.String("seller", caller))
	return nil
}

// Sale is the settlement record of one purchase.
type Sale struct {
	ID               string    `json:"sale_id"`
	AssetID          uint64    `json:"asset_id"`
	Buyer            string    `json:"buyer"`
	Seller           string    `json:"seller"`
	Price            uint64    `json:"price"`
	Fee              uint64    `json:"fee"`
	Royalty          uint64    `json:"royalty"`
	RoyaltyRecipient string    `json:"royalty_recipient,omitempty"`
	SellerProceeds   uint64    `json:"seller_proceeds"`
	Refund           uint64    `json:"refund"`
	SoldAt           time.Time `json:"sold_at"`
}

// Buy settles the purchase of a listed asset. The listing goes inactive
// before any custody or fund movement, so a reentrant purchase attempt
// observes an unlisted asset; the enclosing transaction keeps the whole
// settlement all-or-nothing regardless.
//
// Split amounts use floor division and are fixed before any transfer: the
// fee from the rate in force now, the royalty from the asset's record, the
// remainder to the seller and any overpayment back to the buyer.
func (e *Engine) Buy(assetID uint64, buyer string, paid uint64) (*Sale, error) {
	if buyer == "" {
		return nil, fmt.Errorf("%w: empty buyer", ErrInvalidAccount)
	}

	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	var (
		sale *Sale
		ev   Event
	)
	err := e.db.Update(func(tx *bolt.Tx) error {
		listing, err := getListing(tx, assetID)
		if err != nil {
			return err
		}
		if listing == nil || !listing.Active {
			return fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
		}
		if paid < listing.Price {
			return fmt.Errorf("%w: paid %d, price %d", ErrInsufficientPayment, paid, listing.Price)
		}

		// Deactivate before anything moves.
		listing.Active = false
		if err := putListing(tx, listing); err != nil {
			return err
		}

		price := listing.Price
		fee := price * feeRate(tx) / bpsDenominator

		royalty, recipient := uint64(0), ""
		rec, err := getRoyalty(tx, assetID)
		if err != nil {
			return err
		}
		if rec != nil {
			recipient, royalty = rec.Recipient, rec.quote(price)
		}

		if fee+royalty > price {
			// Unreachable while both rate ceilings stay at 10%; checked
			// so a broken policy aborts settlement instead of
			// underflowing the seller's share.
			return fmt.Errorf("settlement split exceeds price: fee %d, royalty %d, price %d", fee, royalty, price)
		}
		proceeds := price - fee - royalty

		if err := e.assets.Transfer(tx, e.market, buyer, assetID); err != nil {
			return fmt.Errorf("%w: deliver asset %d: %v", ErrTransferFailed, assetID, err)
		}

		if err := e.funds.Transfer(tx, buyer, e.market, paid); err != nil {
			return fmt.Errorf("%w: collect payment: %v", ErrTransferFailed, err)
		}
		if fee > 0 {
			if err := e.funds.Transfer(tx, e.market, e.admin, fee); err != nil {
				return fmt.Errorf("%w: disburse fee: %v", ErrTransferFailed, err)
			}
		}
		if royalty > 0 && recipient != "" {
			if err := e.funds.Transfer(tx, e.market, recipient, royalty); err != nil {
				return fmt.Errorf("%w: disburse royalty: %v", ErrTransferFailed, err)
			}
		}
		if err := e.funds.Transfer(tx, e.market, listing.Seller, proceeds); err != nil {
			return fmt.Errorf("%w: disburse proceeds: %v", ErrTransferFailed, err)
		}
		if refund := paid - price; refund > 0 {
			if err := e.funds.Transfer(tx, e.market, buyer, refund); err != nil {
				return fmt.Errorf("%w: refund overpayment: %v", ErrTransferFailed, err)
			}
		}

		sale = &Sale{
			ID:               uuid.NewString(),
			AssetID:          assetID,
			Buyer:            buyer,
			Seller:           listing.Seller,
			Price:            price,
			Fee:              fee,
			Royalty:          royalty,
			RoyaltyRecipient: recipient,
			SellerProceeds:   proceeds,
			Refund:           paid - price,
			SoldAt:           time.Now().UTC(),
		}
		ev, err = appendEvent(tx, Event{
			Type:      EventSold,
			AssetID:   assetID,
			SaleID:    sale.ID,
			Buyer:     buyer,
			Seller:    sale.Seller,
			Recipient: recipient,
			Price:     price,
			Fee:       fee,
			Royalty:   royalty,
			Proceeds:  proceeds,
			Refund:    sale.Refund,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	e.feed.publish(ev)
	e.log.Info("sale settled",
		zap.String("sale_id", sale.ID),
		zap.Uint64("asset_id", assetID),
		zap.String("buyer", buyer),
		zap.String("seller", sale.Seller),
		zap.Uint64("price", sale.Price),
		zap.Uint64("fee", sale.Fee),
		zap.Uint64("royalty", sale.Royalty))
	return sale, nil
}

// RoyaltyQuote computes the royalty split a sale at the given price would
// produce. Assets without royalty terms, including unknown assets, quote
// to ("", 0).
func (e *Engine) RoyaltyQuote(assetID, salePrice uint64) (string, uint64, error) {
	if salePrice > MaxPrice {
		return "", 0, fmt.Errorf("%w: %d", ErrInvalidPrice, salePrice)
	}

	var (
		recipient string
		amount    uint64
	)
	err := e.db.View(func(tx *bolt.Tx) error {
		rec, err := getRoyalty(tx, assetID)
		if err != nil || rec == nil {
			return err
		}
		recipient, amount = rec.Recipient, rec.quote(salePrice)
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return recipient, amount, nil
}

// FeeRate reports the rate that will apply to the next settlement.
func (e *Engine) FeeRate() (uint64, error) {
	var rate uint64
	err := e.db.View(func(tx *bolt.Tx) error {
		rate = feeRate(tx)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rate, nil
}

// SetFee changes the marketplace fee rate. Only the administrative
// principal may call it. The new rate applies to the next settlement;
// active listings carry no rate snapshot.
func (e *Engine) SetFee(caller string, rateBps uint64) error {
	if caller != e.admin {
		return fmt.Errorf("%w: fee policy is admin-only", ErrUnauthorized)
	}
	if rateBps > MaxFeeBps {
		return fmt.Errorf("%w: %d bps exceeds ceiling %d", ErrFeeTooHigh, rateBps, MaxFeeBps)
	}

	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	var ev Event
	err := e.db.Update(func(tx *bolt.Tx) error {
		if err := putFeeRate(tx, rateBps); err != nil {
			return err
		}
		var err error
		ev, err = appendEvent(tx, Event{Type: EventFeeChanged, RateBps: rateBps})
		return err
	})
	if err != nil {
		return err
	}

	e.feed.publish(ev)
	e.log.Info("fee rate changed", zap.Uint64("fee_bps", rateBps))
	return nil
}

// Withdraw sweeps whatever balance the market account holds to the
// administrative principal and returns the amount moved. Settlement leaves
// the market account at zero; the sweep covers funds deposited to it
// directly.
func (e *Engine) Withdraw(caller string) (uint64, error) {
	if caller != e.admin {
		return 0, fmt.Errorf("%w: withdrawals are admin-only", ErrUnauthorized)
	}

	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()

	var (
		amount uint64
		ev     Event
		swept  bool
	)
	err := e.db.Update(func(tx *bolt.Tx) error {
		amount = e.funds.Balance(tx, e.market)
		if amount == 0 {
			return nil
		}
		if err := e.funds.Transfer(tx, e.market, e.admin, amount); err != nil {
			return fmt.Errorf("%w: withdraw: %v", ErrTransferFailed, err)
		}
		swept = true

		var err error
		ev, err = appendEvent(tx, Event{Type: EventFundsWithdrawn, Recipient: e.admin, Amount: amount})
		return err
	})
	if err != nil {
		return 0, err
	}

	if swept {
		e.feed.publish(ev)
		e.log.Info("funds withdrawn",
			zap.String("recipient", e.admin),
			zap.Uint64("amount", amount))
	}
	return amount, nil
}

// Listing returns the listing record of an asset, live or settled, and
// ErrNotListed when the asset was never listed.
func (e *Engine) Listing(assetID uint64) (*Listing, error) {
	var listing *Listing
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		listing, err = getListing(tx, assetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, fmt.Errorf("%w: asset %d", ErrNotListed, assetID)
	}
	return listing, nil
}

// ActiveListings returns every live listing in asset-id order.
func (e *Engine) ActiveListings() ([]Listing, error) {
	listings := []Listing{}
	err := e.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(listingBucket)).ForEach(func(_, v []byte) error {
			var l Listing
			if err := json.Unmarshal(v, &l); err != nil {
				return fmt.Errorf("decode listing: %w", err)
			}
			if l.Active {
				listings = append(listings, l)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// Events returns persisted events with sequence numbers greater than
// since, oldest first. A positive limit caps the result.
func (e *Engine) Events(since uint64, limit int) ([]Event, error) {
	var evs []Event
	err := e.db.View(func(tx *bolt.Tx) error {
		var err error
		evs, err = readEvents(tx, since, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}
