package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/state/bank"
)

const (
	testToken = "SVT"
	authToken = "test-admin-token"
)

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(int64(c.now), 0).UTC()
}

func testAddr(suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.StakePrefix, raw)
}

type testEnv struct {
	server *httptest.Server
	clock  *fakeClock
	ledger *bank.Ledger
	admin  crypto.Address
	alice  crypto.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	module := testAddr(0xAA)
	admin := testAddr(0xAD)
	treasury := testAddr(0xFE)
	alice := testAddr(0x01)

	ledger := bank.NewLedger()
	require.NoError(t, ledger.Mint(testToken, alice, big.NewInt(1_000_000)))
	require.NoError(t, ledger.Mint(testToken, module, big.NewInt(1_000_000)))

	engine, err := staking.NewEngine(staking.Params{
		StakeToken:          testToken,
		ModuleAddress:       module,
		Admin:               admin,
		Treasury:            treasury,
		RewardRatePerSecond: big.NewInt(10),
	}, bank.NewCustodian(ledger))
	require.NoError(t, err)

	clock := &fakeClock{now: 1000}
	engine.SetClock(clock.Now)
	require.NoError(t, engine.AddTier(admin, 100, staking.PrecisionUnit()))

	srv := NewServer(engine, slog.Default(), WithAuthToken(authToken))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, clock: clock, ledger: ledger, admin: admin, alice: alice}
}

func (env *testEnv) call(t *testing.T, method string, params interface{}, token string) (json.RawMessage, *RPCError) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded.Result, decoded.Error
}

func TestDepositWithdrawOverRPC(t *testing.T) {
	env := newTestEnv(t)

	result, rpcErr := env.call(t, "staking_deposit", map[string]interface{}{
		"owner":  env.alice.String(),
		"amount": "1000",
		"tier":   0,
	}, "")
	require.Nil(t, rpcErr)

	var deposit struct {
		Index     int    `json:"index"`
		UnlocksAt uint64 `json:"unlocksAt"`
	}
	require.NoError(t, json.Unmarshal(result, &deposit))
	require.Equal(t, 0, deposit.Index)
	require.Equal(t, uint64(1100), deposit.UnlocksAt)

	// Locked: withdrawing early maps to the invalid-state code.
	_, rpcErr = env.call(t, "staking_withdraw", map[string]interface{}{
		"owner": env.alice.String(),
		"index": 0,
	}, "")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidState, rpcErr.Code)

	env.clock.now = 1100
	result, rpcErr = env.call(t, "staking_withdraw", map[string]interface{}{
		"owner": env.alice.String(),
		"index": 0,
	}, "")
	require.Nil(t, rpcErr)

	var withdraw struct {
		Principal string `json:"principal"`
		Reward    string `json:"reward"`
	}
	require.NoError(t, json.Unmarshal(result, &withdraw))
	require.Equal(t, "1000", withdraw.Principal)
	require.Equal(t, "1000", withdraw.Reward)

	// Principal round-tripped and the reward came out of the module budget.
	require.Equal(t, big.NewInt(1_001_000), env.ledger.Balance(testToken, env.alice))
}

func TestPositionQueryOverRPC(t *testing.T) {
	env := newTestEnv(t)

	_, rpcErr := env.call(t, "staking_deposit", map[string]interface{}{
		"owner":  env.alice.String(),
		"amount": "500",
		"tier":   0,
	}, "")
	require.Nil(t, rpcErr)

	env.clock.now = 1050
	result, rpcErr := env.call(t, "staking_position", map[string]interface{}{
		"owner": env.alice.String(),
		"index": 0,
	}, "")
	require.Nil(t, rpcErr)

	var info struct {
		Amount  string `json:"amount"`
		Pending string `json:"pending"`
		Closed  bool   `json:"closed"`
	}
	require.NoError(t, json.Unmarshal(result, &info))
	require.Equal(t, "500", info.Amount)
	require.Equal(t, "500", info.Pending)
	require.False(t, info.Closed)

	_, rpcErr = env.call(t, "staking_position", map[string]interface{}{
		"owner": env.alice.String(),
		"index": 7,
	}, "")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeNotFound, rpcErr.Code)
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	env := newTestEnv(t)

	params := map[string]interface{}{
		"caller": env.admin.String(),
		"rate":   "20",
	}
	_, rpcErr := env.call(t, "staking_setRewardRate", params, "")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	_, rpcErr = env.call(t, "staking_setRewardRate", params, "wrong-token")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	_, rpcErr = env.call(t, "staking_setRewardRate", params, authToken)
	require.Nil(t, rpcErr)
}

func TestAdminRejectsSchemelessAuthorizationHeader(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "staking_setRewardRate",
		"params": map[string]interface{}{
			"caller": env.admin.String(),
			"rate":   "20",
		},
	})
	require.NoError(t, err)

	// The raw token without the Bearer scheme must not authenticate.
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Error *RPCError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeUnauthorized, decoded.Error.Code)
}

func TestAdminCallerMustBeConfiguredAdmin(t *testing.T) {
	env := newTestEnv(t)

	// Valid token but a non-admin caller address: the engine's own permission
	// check still rejects it.
	_, rpcErr := env.call(t, "staking_setRewardRate", map[string]interface{}{
		"caller": env.alice.String(),
		"rate":   "20",
	}, authToken)
	require.NotNil(t, rpcErr)
	require.Equal(t, codeUnauthorized, rpcErr.Code)
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	_, rpcErr := env.call(t, "staking_doesNotExist", nil, "")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestMalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Error *RPCError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.NotNil(t, decoded.Error)
	require.Equal(t, codeParseError, decoded.Error.Code)
}

func TestCapacityErrorCode(t *testing.T) {
	env := newTestEnv(t)

	_, rpcErr := env.call(t, "staking_setStakingCap", map[string]interface{}{
		"caller": env.admin.String(),
		"cap":    "100",
	}, authToken)
	require.Nil(t, rpcErr)

	_, rpcErr = env.call(t, "staking_deposit", map[string]interface{}{
		"owner":  env.alice.String(),
		"amount": "1000",
		"tier":   0,
	}, "")
	require.NotNil(t, rpcErr)
	require.Equal(t, codeCapacityExceeded, rpcErr.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
