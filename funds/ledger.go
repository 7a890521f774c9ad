// Package funds keeps the account balance ledger the marketplace settles
// against. Balances are unsigned integers in the smallest currency unit;
// moves between accounts run inside the caller's bolt transaction so a
// settlement either lands completely or not at all.
package funds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the account's
	// balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceOverflow is returned when a credit would push a balance
	// past the maximum representable amount.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrInvalidAmount is returned for zero-amount moves.
	ErrInvalidAmount = errors.New("invalid amount")
)

const balanceBucket = "balances"

// Ledger is a bolt-backed map of account number to balance.
type Ledger struct {
	db *bolt.DB
}

// New prepares the balance bucket on the shared database.
func New(db *bolt.DB) (*Ledger, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(balanceBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("init balance bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Transfer moves amount from one account to another within the caller's
// transaction. The debit and credit commit or roll back together with the
// enclosing operation.
func (l *Ledger) Transfer(tx *bolt.Tx, from, to string, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: zero transfer", ErrInvalidAmount)
	}

	b := tx.Bucket([]byte(balanceBucket))

	fromBal := btou(b.Get([]byte(from)))
	if fromBal < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, fromBal, amount)
	}
	if err := b.Put([]byte(from), utob(fromBal-amount)); err != nil {
		return err
	}

	// Re-read so a self-transfer observes its own debit.
	toBal := btou(b.Get([]byte(to)))
	if toBal > math.MaxUint64-amount {
		return fmt.Errorf("%w: account %s", ErrBalanceOverflow, to)
	}
	return b.Put([]byte(to), utob(toBal+amount))
}

// Balance reports an account's balance within the caller's transaction.
// Accounts that never received funds hold zero.
func (l *Ledger) Balance(tx *bolt.Tx, account string) uint64 {
	return btou(tx.Bucket([]byte(balanceBucket)).Get([]byte(account)))
}

// Credit deposits amount on an account in its own transaction and returns
// the new balance. It is the on-ramp for external funds.
func (l *Ledger) Credit(account string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: zero deposit", ErrInvalidAmount)
	}

	var balance uint64
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(balanceBucket))
		current := btou(b.Get([]byte(account)))
		if current > math.MaxUint64-amount {
			return fmt.Errorf("%w: account %s", ErrBalanceOverflow, account)
		}
		balance = current + amount
		return b.Put([]byte(account), utob(balance))
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// BalanceOf reports a balance outside of any enclosing operation.
func (l *Ledger) BalanceOf(account string) (uint64, error) {
	var balance uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		balance = l.Balance(tx, account)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func utob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btou(b []byte) uint64 {
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
