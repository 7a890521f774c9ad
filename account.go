package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"
)

// numberHeader prefixes every account number so unrelated base58 blobs
// cannot pass as accounts.
var numberHeader = []byte{0x6d, 0x6b, 0x01}

const checksumSize = 4

// account is a custodial identity: the service keeps the ed25519 seed and
// signs on the account's behalf.
type account struct {
	number string
	key    ed25519.PrivateKey
}

func (a *account) sign(message []byte) []byte {
	return ed25519.Sign(a.key, message)
}

func newAccount() (*account, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, err
	}
	return accountFromSeed(seed), nil
}

func accountFromSeed(seed []byte) *account {
	key := ed25519.NewKeyFromSeed(seed)
	return &account{
		number: accountNumber(key.Public().(ed25519.PublicKey)),
		key:    key,
	}
}

func accountNumber(pub ed25519.PublicKey) string {
	var b bytes.Buffer

	// write the header
	b.Write(numberHeader)

	// write the public key
	b.Write(pub)

	// write the checksum
	checksum := sha3.Sum256(b.Bytes())
	b.Write(checksum[:checksumSize])

	return base58.Encode(b.Bytes())
}

// parseAccountNumber recovers the public key from an account number,
// rejecting anything whose header or checksum does not hold.
func parseAccountNumber(number string) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(number)
	if err != nil {
		return nil, fmt.Errorf("invalid account number: %v", err)
	}
	if len(raw) != len(numberHeader)+ed25519.PublicKeySize+checksumSize {
		return nil, fmt.Errorf("invalid account number length: %d", len(raw))
	}
	if !bytes.Equal(raw[:len(numberHeader)], numberHeader) {
		return nil, fmt.Errorf("invalid account number header")
	}

	body := raw[:len(raw)-checksumSize]
	checksum := sha3.Sum256(body)
	if !bytes.Equal(checksum[:checksumSize], raw[len(raw)-checksumSize:]) {
		return nil, fmt.Errorf("invalid account number checksum")
	}

	return ed25519.PublicKey(body[len(numberHeader):]), nil
}

func createAccount() (string, error) {
	acct, err := newAccount()
	if err != nil {
		return "", err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(accountBucket))
		return b.Put([]byte(acct.number), acct.key.Seed())
	})
	if err != nil {
		return "", err
	}

	return acct.number, nil
}

func getAccount(accountNo string) (*account, error) {
	var seed []byte

	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(accountBucket))
		if v := b.Get([]byte(accountNo)); v != nil {
			seed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get the account from db: %v", err)
	}

	if seed == nil {
		return nil, fmt.Errorf("account %s not registered", accountNo)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid account format for %s", accountNo)
	}

	return accountFromSeed(seed), nil
}

// ensureServiceAccounts loads the marketplace and admin identities,
// creating them on first boot.
func ensureServiceAccounts() (svc, admin *account, err error) {
	svc, err = ensureNamedAccount([]byte("service-account"))
	if err != nil {
		return nil, nil, err
	}
	admin, err = ensureNamedAccount([]byte("admin-account"))
	if err != nil {
		return nil, nil, err
	}
	return svc, admin, nil
}

func ensureNamedAccount(metaKey []byte) (*account, error) {
	var number string
	err := db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket([]byte(metaBucket)).Get(metaKey); v != nil {
			number = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if number != "" {
		return getAccount(number)
	}

	number, err = createAccount()
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put(metaKey, []byte(number))
	})
	if err != nil {
		return nil, err
	}

	return getAccount(number)
}

func handleAccountCreation() gin.HandlerFunc {
	return func(c *gin.Context) {
		number, err := createAccount()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"message": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"account": number})
	}
}
