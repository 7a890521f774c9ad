package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mintmark-inc/mintmark-trade/funds"
	"github.com/mintmark-inc/mintmark-trade/market"
	"github.com/mintmark-inc/mintmark-trade/registry"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log = zap.NewNop()
	db = openDB(filepath.Join(t.TempDir(), "trade.db"))
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	var err error
	assets, err = registry.New(db)
	require.NoError(t, err)
	ledger, err = funds.New(db)
	require.NoError(t, err)
	svcAccount, adminAccount, err = ensureServiceAccounts()
	require.NoError(t, err)

	engine, err = market.NewEngine(db, assets, ledger, market.Config{
		MarketAccount: svcAccount.number,
		AdminAccount:  adminAccount.number,
		Logger:        zap.NewNop(),
	})
	require.NoError(t, err)

	return setupRouter()
}

func request(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func registerAccount(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := request(t, r, http.MethodPost, "/v1/accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	number, ok := decode(t, w)["account"].(string)
	require.True(t, ok)
	require.NotEmpty(t, number)
	return number
}

func deposit(t *testing.T, r *gin.Engine, account string, amount uint64) {
	t.Helper()
	w := request(t, r, http.MethodPost, "/v1/funds/deposit", gin.H{"account": account, "amount": amount})
	require.Equal(t, http.StatusOK, w.Code)
}

func balanceOf(t *testing.T, r *gin.Engine, account string) float64 {
	t.Helper()
	w := request(t, r, http.MethodGet, "/v1/funds/"+account, nil)
	require.Equal(t, http.StatusOK, w.Code)
	balance, ok := decode(t, w)["balance"].(float64)
	require.True(t, ok)
	return balance
}

func TestTradeFlowOverHTTP(t *testing.T) {
	r := newTestServer(t)

	seller := registerAccount(t, r)
	buyer := registerAccount(t, r)
	creator := registerAccount(t, r)
	deposit(t, r, buyer, 1200)

	w := request(t, r, http.MethodPost, "/v1/mint", gin.H{
		"holder":            seller,
		"metadata_ref":      "ipfs://piece",
		"royalty_recipient": creator,
		"royalty_rate_bps":  500,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assetID := uint64(decode(t, w)["asset_id"].(float64))

	w = request(t, r, http.MethodGet, fmt.Sprintf("/v1/assets/%d/royalty?price=1000", assetID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	quote := decode(t, w)
	assert.Equal(t, creator, quote["recipient"])
	assert.EqualValues(t, 50, quote["amount"])

	w = request(t, r, http.MethodPost, "/v1/list", gin.H{
		"asset_id": assetID,
		"seller":   seller,
		"price":    1000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// underpaying is refused and leaves the listing live
	w = request(t, r, http.MethodPost, "/v1/buy", gin.H{
		"asset_id":    assetID,
		"buyer":       buyer,
		"paid_amount": 500,
	})
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	w = request(t, r, http.MethodPost, "/v1/buy", gin.H{
		"asset_id":    assetID,
		"buyer":       buyer,
		"paid_amount": 1200,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)

	receipt, ok := resp["receipt"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1000, receipt["price"])
	assert.EqualValues(t, 25, receipt["fee"])
	assert.EqualValues(t, 50, receipt["royalty"])
	assert.EqualValues(t, 925, receipt["seller_proceeds"])
	assert.EqualValues(t, 200, receipt["refund"])
	assert.Equal(t, buyer, receipt["buyer"])
	assert.Equal(t, seller, receipt["seller"])

	// the receipt is signed by the service account
	assert.Equal(t, svcAccount.number, resp["signed_by"])
	pub, err := parseAccountNumber(resp["signed_by"].(string))
	require.NoError(t, err)
	sig, err := hex.DecodeString(resp["signature"].(string))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte(resp["signed_message"].(string)), sig))

	assert.Equal(t, float64(200), balanceOf(t, r, buyer))
	assert.Equal(t, float64(925), balanceOf(t, r, seller))
	assert.Equal(t, float64(50), balanceOf(t, r, creator))
	assert.Equal(t, float64(25), balanceOf(t, r, adminAccount.number))

	w = request(t, r, http.MethodGet, fmt.Sprintf("/v1/assets/%d", assetID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	asset := decode(t, w)["asset"].(map[string]any)
	assert.Equal(t, buyer, asset["owner"])
	assert.Equal(t, seller, asset["issuer"])

	w = request(t, r, http.MethodGet, fmt.Sprintf("/v1/listings/%d", assetID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decode(t, w)["listing"].(map[string]any)
	assert.Equal(t, false, listing["active"])

	w = request(t, r, http.MethodGet, "/v1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode(t, w)["events"].([]any)
	assert.GreaterOrEqual(t, len(events), 4)
}

func TestListingConflictsOverHTTP(t *testing.T) {
	r := newTestServer(t)

	seller := registerAccount(t, r)
	intruder := registerAccount(t, r)

	w := request(t, r, http.MethodPost, "/v1/mint", gin.H{
		"holder":       seller,
		"metadata_ref": "ipfs://piece",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assetID := uint64(decode(t, w)["asset_id"].(float64))

	// listing someone else's asset conflicts
	w = request(t, r, http.MethodPost, "/v1/list", gin.H{
		"asset_id": assetID, "seller": intruder, "price": 1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = request(t, r, http.MethodPost, "/v1/list", gin.H{
		"asset_id": assetID, "seller": seller, "price": 1000,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = request(t, r, http.MethodPost, "/v1/list", gin.H{
		"asset_id": assetID, "seller": seller, "price": 2000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// cancelling someone else's listing is forbidden
	w = request(t, r, http.MethodPost, "/v1/cancel", gin.H{
		"asset_id": assetID, "caller": intruder,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPost, "/v1/cancel", gin.H{
		"asset_id": assetID, "caller": seller,
	})
	require.Equal(t, http.StatusOK, w.Code)

	// buying after the cancel conflicts
	buyer := registerAccount(t, r)
	deposit(t, r, buyer, 1000)
	w = request(t, r, http.MethodPost, "/v1/buy", gin.H{
		"asset_id": assetID, "buyer": buyer, "paid_amount": 1000,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// unregistered accounts are rejected before the engine runs
	w = request(t, r, http.MethodPost, "/v1/list", gin.H{
		"asset_id": assetID, "seller": "ghost", "price": 1000,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, "/v1/list", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFeeEndpointsOverHTTP(t *testing.T) {
	r := newTestServer(t)

	w := request(t, r, http.MethodGet, "/v1/fee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, market.DefaultFeeBps, decode(t, w)["fee_bps"])

	outsider := registerAccount(t, r)
	w = request(t, r, http.MethodPut, "/v1/fee", gin.H{"caller": outsider, "rate_bps": 500})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPut, "/v1/fee", gin.H{
		"caller": adminAccount.number, "rate_bps": market.MaxFeeBps + 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPut, "/v1/fee", gin.H{
		"caller": adminAccount.number, "rate_bps": 500,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = request(t, r, http.MethodGet, "/v1/fee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 500, decode(t, w)["fee_bps"])
}

func TestMintValidationOverHTTP(t *testing.T) {
	r := newTestServer(t)
	holder := registerAccount(t, r)

	w := request(t, r, http.MethodPost, "/v1/mint", gin.H{"holder": holder})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, "/v1/mint", gin.H{
		"holder": "ghost", "metadata_ref": "ipfs://piece",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, "/v1/mint", gin.H{
		"holder":           holder,
		"metadata_ref":     "ipfs://piece",
		"royalty_rate_bps": 500,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// an over-ceiling royalty reaches the engine and is rejected there
	creator := registerAccount(t, r)
	w = request(t, r, http.MethodPost, "/v1/mint", gin.H{
		"holder":            holder,
		"metadata_ref":      "ipfs://piece",
		"royalty_recipient": creator,
		"royalty_rate_bps":  market.MaxRoyaltyBps + 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositAndBalanceOverHTTP(t *testing.T) {
	r := newTestServer(t)
	account := registerAccount(t, r)

	w := request(t, r, http.MethodPost, "/v1/funds/deposit", gin.H{"account": account, "amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, "/v1/funds/deposit", gin.H{"account": "ghost", "amount": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodPost, "/v1/funds/deposit", gin.H{"account": account, "amount": 10})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 10, decode(t, w)["balance"])

	assert.Equal(t, float64(10), balanceOf(t, r, account))

	w = request(t, r, http.MethodGet, "/v1/funds/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWithdrawOverHTTP(t *testing.T) {
	r := newTestServer(t)

	// stray funds deposited straight to the market account
	deposit(t, r, svcAccount.number, 300)

	outsider := registerAccount(t, r)
	w := request(t, r, http.MethodPost, "/v1/withdraw", gin.H{"caller": outsider})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(t, r, http.MethodPost, "/v1/withdraw", gin.H{"caller": adminAccount.number})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 300, resp["amount"])
	assert.Equal(t, adminAccount.number, resp["to"])

	assert.Equal(t, float64(300), balanceOf(t, r, adminAccount.number))
}

func TestEventLogParamsOverHTTP(t *testing.T) {
	r := newTestServer(t)

	holder := registerAccount(t, r)
	for i := 0; i < 3; i++ {
		w := request(t, r, http.MethodPost, "/v1/mint", gin.H{
			"holder":       holder,
			"metadata_ref": fmt.Sprintf("ipfs://piece-%d", i),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := request(t, r, http.MethodGet, "/v1/events?since=1&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	events := decode(t, w)["events"].([]any)
	require.Len(t, events, 1)
	assert.EqualValues(t, 2, events[0].(map[string]any)["seq"])

	w = request(t, r, http.MethodGet, "/v1/events?since=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = request(t, r, http.MethodGet, "/v1/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestServer(t)

	w := request(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mintmark_")
}

func TestEventFeedWebsocket(t *testing.T) {
	r := newTestServer(t)

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := strings.Replace(srv.URL, "http", "ws", 1) + "/v1/events/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// the subscription is live once the dial returns
	holder := registerAccount(t, r)
	_, err = engine.Mint(holder, "ipfs://streamed", "", 0)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev market.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, market.EventAssetCreated, ev.Type)
	assert.Equal(t, holder, ev.Owner)
}
