package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aidin1998/pincex_clob/api"
	"github.com/Aidin1998/pincex_clob/internal/config"
	"github.com/Aidin1998/pincex_clob/internal/trading/incentives"
	"github.com/Aidin1998/pincex_clob/internal/trading/market"
	"github.com/Aidin1998/pincex_clob/internal/trading/model"
	"github.com/Aidin1998/pincex_clob/internal/trading/user"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	maker = model.Address("0xfeed")
	taker = model.Address("0xbeef")
)

var testAuth = config.AuthConfig{
	Enabled:  true,
	Secret:   "test-secret-please-rotate",
	Issuer:   "clob-test",
	Audience: "clob-api",
	Leeway:   30 * time.Second,
}

// setupServer registers BTC/USDC with lot size 10 and tick size 2.
func setupServer(t *testing.T, auth config.AuthConfig) (*api.Server, *market.Exchange, uint64) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)
	e, err := market.NewExchange(market.DefaultConfig(), incentives.DefaultParams(), logger)
	require.NoError(t, err)
	id, err := e.RegisterMarket(
		market.Info{BaseType: "BTC", QuoteType: "USDC", LotSize: 10, TickSize: 2, MinSize: 1},
		model.Coins{Asset: model.UtilityCoin, Amount: incentives.DefaultParams().MarketRegistrationFee},
	)
	require.NoError(t, err)
	srv, err := api.NewServer(logger, api.Options{Exchange: e, Auth: auth})
	require.NoError(t, err)
	return srv, e, id
}

type call struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
}

func do(t *testing.T, srv *api.Server, c call) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func as(addr model.Address, role ...string) map[string]string {
	h := map[string]string{"X-User-Address": string(addr)}
	if len(role) > 0 {
		h["X-User-Role"] = role[0]
	}
	return h
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func data(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response data is not an object: %v", resp)
	return d
}

func TestHealthCheck(t *testing.T) {
	srv, _, _ := setupServer(t, config.AuthConfig{})
	w, resp := do(t, srv, call{method: http.MethodGet, path: "/api/v1/health"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
	assert.EqualValues(t, 1, resp["markets"])
}

func TestMarkets_ListAndBook(t *testing.T) {
	srv, e, id := setupServer(t, config.AuthConfig{})
	require.NoError(t, e.RegisterMarketAccount(user.Self(maker), id))
	require.NoError(t, e.DepositCoins(maker, id, model.NoCustodian, model.Coins{Asset: "BTC", Amount: 500}))
	_, err := e.PlaceLimitOrder(user.Self(maker), market.LimitOrder{MarketID: id, Side: model.Ask, Size: 5, Price: 100})
	require.NoError(t, err)

	w, resp := do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets"})
	require.Equal(t, http.StatusOK, w.Code)
	list := resp["data"].([]interface{})
	require.Len(t, list, 1)
	m := list[0].(map[string]interface{})
	assert.EqualValues(t, 100, m["best_ask"])
	assert.Nil(t, m["best_bid"])
	assert.Equal(t, "20", m["best_ask_unit_price"])

	w, resp = do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/1/book"})
	require.Equal(t, http.StatusOK, w.Code)
	asks := data(t, resp)["asks"].([]interface{})
	require.Len(t, asks, 1)
	ask := asks[0].(map[string]interface{})
	assert.Equal(t, "20", ask["unit_price"])
	assert.Equal(t, "50", ask["base"])
	assert.Equal(t, string(maker), ask["user"])

	w, resp = do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/1/depth?levels=5"})
	require.Equal(t, http.StatusOK, w.Code)
	levels := data(t, resp)["asks"].([]interface{})
	require.Len(t, levels, 1)
	assert.EqualValues(t, 5, levels[0].(map[string]interface{})["size"])

	w, resp = do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/1/events"})
	require.Equal(t, http.StatusOK, w.Code)
	events := resp["data"].([]interface{})
	require.Len(t, events, 1)
	assert.Equal(t, model.EventKindMaker, events[0].(map[string]interface{})["kind"])
}

func TestMarkets_UnknownMarketIsProblem(t *testing.T) {
	srv, _, _ := setupServer(t, config.AuthConfig{})
	w, resp := do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/99"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "market", resp["module"])
	assert.EqualValues(t, 6, resp["code"])
	assert.Equal(t, "E_INVALID_MARKET_ID", resp["abort"])
	assert.Equal(t, "/api/v1/markets/99", resp["instance"])

	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoRoute_SuggestsClosest(t *testing.T) {
	srv, _, _ := setupServer(t, config.AuthConfig{})
	w, resp := do(t, srv, call{method: http.MethodGet, path: "/api/v1/market"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "/api/v1/markets", resp["did_you_mean"])
}

func TestTradingFlow_DevHeaders(t *testing.T) {
	srv, _, _ := setupServer(t, config.AuthConfig{})

	w, _ := do(t, srv, call{method: http.MethodGet, path: "/api/v1/accounts"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1", headers: as("0xFEED")})
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1/deposit", headers: as(maker),
		body: map[string]interface{}{"asset": "base", "amount": 500}})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/limit", headers: as(maker),
		body: map[string]interface{}{"side": "ask", "size": 5, "price": 100}})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	orderID := data(t, resp)["market_order_id"].(string)

	w, resp = do(t, srv, call{method: http.MethodGet, path: "/api/v1/accounts/1", headers: as(maker)})
	require.Equal(t, http.StatusOK, w.Code)
	acct := data(t, resp)
	assert.EqualValues(t, 500, acct["base_total"])
	assert.EqualValues(t, 450, acct["base_available"])

	w, resp = do(t, srv, call{method: http.MethodGet, path: "/api/v1/markets/1/orders?side=ask", headers: as(maker)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, data(t, resp)["ask"], 1)

	// The taker lifts the ask with quote from its own account.
	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1", headers: as(taker)})
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1/deposit", headers: as(taker),
		body: map[string]interface{}{"asset": "quote", "amount": 10000}})
	require.Equal(t, http.StatusOK, w.Code)
	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/market", headers: as(taker),
		body: map[string]interface{}{"direction": "buy", "max_base": 20, "limit_price": 100}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	assert.EqualValues(t, 20, data(t, resp)["base_traded"])

	w, resp = do(t, srv, call{method: http.MethodPatch, path: "/api/v1/markets/1/orders/ask/" + orderID, headers: as(maker),
		body: map[string]interface{}{"size": 2}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	newID := data(t, resp)["market_order_id"].(string)

	w, _ = do(t, srv, call{method: http.MethodDelete, path: "/api/v1/markets/1/orders/ask/" + newID, headers: as(taker)})
	assert.Equal(t, http.StatusBadRequest, w.Code, "only the owner may cancel")

	w, resp = do(t, srv, call{method: http.MethodDelete, path: "/api/v1/markets/1/orders/ask/" + newID, headers: as(maker)})
	require.Equal(t, http.StatusOK, w.Code, resp)

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1/withdraw", headers: as(maker),
		body: map[string]interface{}{"asset": "base", "amount": 480}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	assert.EqualValues(t, 480, data(t, resp)["amount"])

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1/withdraw", headers: as(maker),
		body: map[string]interface{}{"asset": "base", "amount": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "E_WITHDRAW_TOO_LITTLE_AVAILABLE", resp["abort"])
}

func TestAuth_BearerTokens(t *testing.T) {
	srv, _, _ := setupServer(t, testAuth)

	token, err := api.IssueToken(testAuth, maker, api.RoleTrader, time.Minute)
	require.NoError(t, err)
	w, _ := do(t, srv, call{method: http.MethodGet, path: "/api/v1/accounts", headers: bearer(token)})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/accounts", headers: as(maker)})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "dev headers are ignored with auth enabled")

	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/accounts", headers: bearer(token + "x")})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := testAuth
	other.Secret = "some-other-secret"
	forged, err := api.IssueToken(other, maker, api.RoleAdmin, time.Minute)
	require.NoError(t, err)
	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/admin/incentives", headers: bearer(forged)})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/admin/incentives", headers: bearer(token)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := api.IssueToken(testAuth, "0xad", api.RoleAdmin, time.Minute)
	require.NoError(t, err)
	w, resp := do(t, srv, call{method: http.MethodGet, path: "/api/v1/admin/incentives", headers: bearer(admin)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, incentives.DefaultParams().TakerFeeDivisor, data(t, resp)["taker_fee_divisor"])
}

func TestAdmin_GenericMarketLifecycle(t *testing.T) {
	srv, e, _ := setupServer(t, config.AuthConfig{})
	admin := as("0xad", api.RoleAdmin)

	w, resp := do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/underwriters", headers: admin, body: map[string]interface{}{}})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	assert.EqualValues(t, 1, data(t, resp)["underwriter_id"])

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/markets", headers: admin, body: map[string]interface{}{
		"base_name_generic": "<b>Gold</b>",
		"quote":             "USDC",
		"lot_size":          1,
		"tick_size":         1,
		"min_size":          1,
		"underwriter_id":    1,
	}})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	m := data(t, resp)
	assert.EqualValues(t, 2, m["market_id"])
	assert.Equal(t, string(model.GenericAsset), m["base_type"])
	assert.Equal(t, "Gold", m["base_name_generic"])

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/2", headers: as(maker)})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/underwriters/1/deposit", headers: admin,
		body: map[string]interface{}{"user": string(maker), "market_id": 2, "amount": 30}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	acct, err := e.MarketAccount(maker, 2, model.NoCustodian)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), acct.BaseTotal)

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/underwriters/7/withdraw", headers: admin,
		body: map[string]interface{}{"user": string(maker), "market_id": 2, "amount": 10}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/underwriters/1/withdraw", headers: admin,
		body: map[string]interface{}{"user": string(maker), "market_id": 2, "amount": 10}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	acct, err = e.MarketAccount(maker, 2, model.NoCustodian)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), acct.BaseTotal)

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/underwriters", headers: as(maker), body: map[string]interface{}{}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_UtilityCoinsAndSnapshots(t *testing.T) {
	srv, e, _ := setupServer(t, config.AuthConfig{})
	admin := as("0xad", api.RoleAdmin)
	collected := e.UtilityCoins()
	require.Positive(t, collected)

	w, resp := do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/utility/withdraw", headers: admin,
		body: map[string]interface{}{"amount": collected}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	assert.Equal(t, uint64(0), e.UtilityCoins())

	w, _ = do(t, srv, call{method: http.MethodPost, path: "/api/v1/admin/snapshots", headers: admin})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w, _ = do(t, srv, call{method: http.MethodGet, path: "/api/v1/ws/events"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPassiveAdvanceOrder(t *testing.T) {
	srv, e, id := setupServer(t, config.AuthConfig{})

	// Empty book: nothing to advance from.
	w, _ := do(t, srv, call{method: http.MethodPost, path: "/api/v1/accounts/1", headers: as(maker)})
	require.Equal(t, http.StatusCreated, w.Code)
	w, resp := do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/passive", headers: as(maker),
		body: map[string]interface{}{"side": "ask", "size": 1, "advance_style": "ticks", "target_advance_amount": 10}})
	require.Equal(t, http.StatusOK, w.Code, resp)
	assert.Nil(t, data(t, resp)["market_order_id"])

	require.NoError(t, e.DepositCoins(maker, id, model.NoCustodian, model.Coins{Asset: "BTC", Amount: 500}))
	_, err := e.PlaceLimitOrder(user.Self(maker), market.LimitOrder{MarketID: id, Side: model.Ask, Size: 5, Price: 100})
	require.NoError(t, err)
	require.NoError(t, e.RegisterMarketAccount(user.Self(taker), id))
	require.NoError(t, e.DepositCoins(taker, id, model.NoCustodian, model.Coins{Asset: "USDC", Amount: 10000}))
	_, err = e.PlaceLimitOrder(user.Self(taker), market.LimitOrder{MarketID: id, Side: model.Bid, Size: 1, Price: 40})
	require.NoError(t, err)

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/passive", headers: as(maker),
		body: map[string]interface{}{"side": "ask", "size": 1, "advance_style": "ticks", "target_advance_amount": 10}})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	assert.NotEmpty(t, data(t, resp)["market_order_id"])

	best, err := e.BestPrices(id)
	require.NoError(t, err)
	require.NotNil(t, best.Ask)
	assert.EqualValues(t, 90, *best.Ask)

	w, resp = do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/passive", headers: as(maker),
		body: map[string]interface{}{"side": "ask", "size": 1, "advance_style": "percent", "target_advance_amount": 101}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "E_INVALID_PERCENT", resp["abort"])
}

func TestBind_ReportsFieldErrors(t *testing.T) {
	srv, _, _ := setupServer(t, config.AuthConfig{})

	w, resp := do(t, srv, call{method: http.MethodPost, path: "/api/v1/markets/1/orders/passive", headers: as(maker),
		body: map[string]interface{}{"side": "bid", "advance_style": "sideways"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "request validation failed", resp["detail"])

	errs, ok := resp["errors"].([]interface{})
	require.True(t, ok, "missing errors: %v", resp)
	codes := map[string]string{}
	for _, raw := range errs {
		fe := raw.(map[string]interface{})
		codes[fe["field"].(string)] = fe["code"].(string)
	}
	assert.Equal(t, map[string]string{"size": "required", "advance_style": "oneof"}, codes)
}
