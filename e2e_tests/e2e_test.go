// Package e2etests drives a running API (GATEWAY_MODE=mock, dev seed data)
// over HTTP. Set E2E=1 to enable.
package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Golden-Age-Club/server/internal/signature"
	"github.com/Golden-Age-Club/server/pkg/envconf"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second
)

var (
	baseURL       = envconf.Get("E2E_BASE_URL", "http://localhost:8080")
	jwtSecret     = envconf.Get("AUTH_JWT_SECRET", "dev-jwt-secret")
	gatewaySecret = envconf.Get("GATEWAY_APP_SECRET", "dev-gateway-secret")
	httpClient    = &http.Client{Timeout: timeout}
)

func TestE2E_ProviderRoundTrip(t *testing.T) {
	waitUntilReady(t)

	const account = 1
	auth := bearer(t, strconv.Itoa(account), "player")
	token := launchGame(t, auth, "slots-1")

	start := balance(t, auth)
	tid := uniqID("wager")

	t.Run("wager debits once", func(t *testing.T) {
		resp := callback(t, map[string]any{"cmd": "withdraw", "player_token": token, "transactionId": tid, "roundId": tid, "betAmount": "30.00"})
		require.EqualValues(t, 0, resp["err_code"], resp["err_desc"])
		assert.Equal(t, start.Sub(decimal.NewFromInt(30)).StringFixed(2), balance(t, auth).StringFixed(2))

		resp = callback(t, map[string]any{"cmd": "withdraw", "player_token": token, "transactionId": tid, "roundId": tid, "betAmount": "30.00"})
		require.EqualValues(t, 0, resp["err_code"])
		assert.Equal(t, start.Sub(decimal.NewFromInt(30)).StringFixed(2), balance(t, auth).StringFixed(2))
	})

	t.Run("rollback restores once", func(t *testing.T) {
		for range 2 {
			resp := callback(t, map[string]any{"cmd": "rollback", "player_token": token, "transactionId": tid})
			require.EqualValues(t, 0, resp["err_code"], resp["err_desc"])
		}
		assert.Equal(t, start.StringFixed(2), balance(t, auth).StringFixed(2))
	})

	t.Run("unknown player", func(t *testing.T) {
		resp := callback(t, map[string]any{"cmd": "getBalance", "player_token": "not-a-token"})
		assert.EqualValues(t, 2, resp["err_code"])
	})
}

func TestE2E_DepositWebhook(t *testing.T) {
	waitUntilReady(t)

	auth := bearer(t, "3", "player")
	start := balance(t, auth)

	code, body := do(t, http.MethodPost, "/wallet/deposit", auth, map[string]any{"amount": "50.00", "currency": "USDT"}, nil)
	require.Equal(t, http.StatusCreated, code, body)

	var dep struct {
		MerchantOrderID string `json:"merchant_order_id"`
	}
	require.NoError(t, json.Unmarshal(body, &dep))

	params := map[string]any{"merchant_order_id": dep.MerchantOrderID, "order_status": "paid"}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signature.GatewaySign(params, ts, gatewaySecret)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, _ := do(t, http.MethodPost, "/webhooks/gateway", "", params, map[string]string{"Timestamp": ts, "Sign": sign})
			assert.Equal(t, http.StatusOK, code)
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(decimal.NewFromInt(50)).StringFixed(2), balance(t, auth).StringFixed(2))

	code, _ = do(t, http.MethodPost, "/webhooks/gateway", "", params, map[string]string{"Timestamp": ts, "Sign": "bad"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

/* -------------------- helpers -------------------- */

func bearer(t *testing.T, sub, role string) string {
	t.Helper()

	claims := jwt.MapClaims{"sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix()}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	return "Bearer " + signed
}

func launchGame(t *testing.T, auth, gameID string) string {
	t.Helper()

	code, body := do(t, http.MethodPost, "/wallet/game-session", auth, map[string]any{"game_id": gameID}, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var out struct {
		PlayerToken string `json:"player_token"`
	}
	require.NoError(t, json.Unmarshal(body, &out))

	return out.PlayerToken
}

func balance(t *testing.T, auth string) decimal.Decimal {
	t.Helper()

	code, body := do(t, http.MethodGet, "/wallet/balance", auth, nil, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(body, &out))

	return out.Balance
}

func callback(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()

	code, body := do(t, http.MethodPost, "/provider/callback", "", payload, nil)
	require.Equal(t, http.StatusOK, code, "provider callbacks always answer 200")

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))

	return out
}

func do(t *testing.T, method, path, auth string, payload any, headers map[string]string) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, b
}

// waitUntilReady polls /healthz until the API answers or waitReady passes.
func waitUntilReady(t *testing.T) {
	t.Helper()

	if os.Getenv("E2E") == "" {
		t.Skip("set E2E=1 to run against a live API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", baseURL, waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(baseURL + "/healthz")
			if err != nil {
				continue
			}
			_ = resp.Body.Close()

			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}

func uniqID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
