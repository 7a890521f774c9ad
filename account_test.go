package main

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) {
	t.Helper()
	log = zap.NewNop()
	db = openDB(filepath.Join(t.TempDir(), "trade.db"))
	t.Cleanup(func() { require.NoError(t, db.Close()) })
}

func TestAccountNumberRoundTrip(t *testing.T) {
	acct, err := newAccount()
	require.NoError(t, err)
	require.NotEmpty(t, acct.number)

	pub, err := parseAccountNumber(acct.number)
	require.NoError(t, err)
	assert.Equal(t, acct.key.Public(), pub)

	// the recovered key verifies the account's signatures
	message := []byte("settlement receipt")
	sig := acct.sign(message)
	assert.True(t, ed25519.Verify(pub, message, sig))
}

func TestParseAccountNumberRejectsCorruption(t *testing.T) {
	acct, err := newAccount()
	require.NoError(t, err)

	// flip one character to another base58 character
	flipped := byte('2')
	if acct.number[0] == flipped {
		flipped = '3'
	}
	corrupted := string(flipped) + acct.number[1:]
	_, err = parseAccountNumber(corrupted)
	require.Error(t, err)

	_, err = parseAccountNumber(acct.number[:len(acct.number)-2])
	require.Error(t, err)

	_, err = parseAccountNumber("not base58 at all!")
	require.Error(t, err)

	_, err = parseAccountNumber("")
	require.Error(t, err)
}

func TestCreateAndGetAccount(t *testing.T) {
	openTestDB(t)

	number, err := createAccount()
	require.NoError(t, err)

	acct, err := getAccount(number)
	require.NoError(t, err)
	assert.Equal(t, number, acct.number)

	_, err = getAccount("nobody")
	require.ErrorContains(t, err, "not registered")
}

func TestEnsureServiceAccountsAreStable(t *testing.T) {
	openTestDB(t)

	svc1, admin1, err := ensureServiceAccounts()
	require.NoError(t, err)
	require.NotEqual(t, svc1.number, admin1.number)

	// a second boot loads the same identities
	svc2, admin2, err := ensureServiceAccounts()
	require.NoError(t, err)
	assert.Equal(t, svc1.number, svc2.number)
	assert.Equal(t, admin1.number, admin2.number)
}
