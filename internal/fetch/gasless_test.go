package fetch

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

func signQuote(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("relayer-secret"))
	require.NoError(t, err)
	return token
}

func quoteRequest() GaslessQuoteRequest {
	return GaslessQuoteRequest{
		Source:      types.Ethereum,
		Destination: types.Arbitrum,
		Amount:      amount.MicroUsdc(25_500_000),
		Sender:      "0x00000000000000000000000000000000000000aa",
		Recipient:   "0x00000000000000000000000000000000000000bb",
		Corridor: cctpr.CorridorParams{
			Type:        cctpr.V2Direct,
			FastFeeRate: amount.FromInt(amount.Percentage, 1, "bp"),
		},
		MaxRelayFee:       amount.MicroUsdc(1_234_567),
		TakeFeesFromInput: true,
	}
}

func TestGaslessURL(t *testing.T) {
	assert.Equal(t, GaslessTestnetURL, GaslessURL(types.Testnet))
	assert.Empty(t, GaslessURL(types.Mainnet))

	_, err := NewGaslessClient(types.Mainnet, "")
	assert.ErrorIs(t, err, ErrGaslessUnavailable)

	c, err := NewGaslessClient(types.Mainnet, "http://relayer")
	require.NoError(t, err)
	assert.Equal(t, "http://relayer", c.baseURL)
}

func TestGaslessQuote(t *testing.T) {
	iat := time.Unix(1_800_000_000, 0)
	token := signQuote(t, jwt.MapClaims{
		"iat":                iat.Unix(),
		"exp":                iat.Add(time.Minute).Unix(),
		"gaslessFee":         "0.152",
		"willRelay":          true,
		"permit2GaslessData": map[string]any{"nonce": "7"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gasless-transfer/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0", q.Get("sourceDomain"))
		assert.Equal(t, "3", q.Get("targetDomain"))
		assert.Equal(t, "25.5", q.Get("amount"))
		assert.Equal(t, "v2Direct", q.Get("corridor"))
		assert.Equal(t, "0", q.Get("gasDropoff"))
		assert.Equal(t, "1.234567", q.Get("maxRelayFee"))
		assert.Equal(t, "0.0001", q.Get("fastFeeRate"))
		assert.Equal(t, "true", q.Get("takeFeesFromInput"))
		assert.Equal(t, "false", q.Get("permit2PermitRequired"))
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"jwt": token}})
	}))
	defer srv.Close()

	c, err := NewGaslessClient(types.Testnet, srv.URL)
	require.NoError(t, err)
	quote, err := c.Quote(context.Background(), quoteRequest())
	require.NoError(t, err)

	assert.Equal(t, token, quote.JWT)
	assert.True(t, quote.GaslessFee.Eq(amount.MicroUsdc(152_000)), quote.GaslessFee.String())
	assert.True(t, quote.IssuedAt.Equal(iat))
	assert.True(t, quote.ExpiresAt.Equal(iat.Add(time.Minute)))
	assert.JSONEq(t, `{"nonce":"7"}`, string(quote.Permit2Data))
	assert.False(t, quote.Expired(iat))
	assert.True(t, quote.Expired(iat.Add(time.Minute)))
}

func TestGaslessQuoteV1SendsNoFastFee(t *testing.T) {
	token := signQuote(t, jwt.MapClaims{"gaslessFee": "0.1", "willRelay": true})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0", r.URL.Query().Get("fastFeeRate"))
		assert.Equal(t, "0.01", r.URL.Query().Get("gasDropoff"))
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"jwt": token}})
	}))
	defer srv.Close()

	req := quoteRequest()
	req.Corridor = cctpr.CorridorParams{Type: cctpr.V1}
	req.GasDropoff = amount.MustOf(amount.EvmGasToken, amount.Frac(1, 100), "ETH")
	c, err := NewGaslessClient(types.Testnet, srv.URL)
	require.NoError(t, err)
	quote, err := c.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, quote.ExpiresAt.IsZero())
	assert.False(t, quote.Expired(time.Now()))
}

func TestGaslessQuoteRejections(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		raw    string
		want   error
		substr string
	}{
		{name: "relayer declines", claims: jwt.MapClaims{"gaslessFee": "0.1", "willRelay": false}, want: ErrGaslessUnavailable},
		{name: "willRelay missing", claims: jwt.MapClaims{"gaslessFee": "0.1"}, want: ErrGaslessUnavailable},
		{name: "bad fee", claims: jwt.MapClaims{"gaslessFee": "lots", "willRelay": true}, substr: "fee"},
		{name: "not a jwt", raw: "not-a-jwt", substr: "decode jwt"},
		{name: "empty jwt", raw: "", substr: "empty jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.raw
			if tt.claims != nil {
				token = signQuote(t, tt.claims)
			}
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"jwt": token}})
			}))
			defer srv.Close()

			c, err := NewGaslessClient(types.Testnet, srv.URL)
			require.NoError(t, err)
			_, err = c.Quote(context.Background(), quoteRequest())
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
			if tt.substr != "" {
				assert.ErrorContains(t, err, tt.substr)
			}
		})
	}
}

func TestGaslessRelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/gasless-transfer/relay", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "quote-jwt", body["jwt"])
		assert.Equal(t, "0x0102", body["permit2Signature"])
		assert.Equal(t, map[string]any{"signature": "0x0304", "value": "1000000", "deadline": "1800000000"}, body["permit"])
		writeJSON(t, w, http.StatusOK, map[string]any{"data": map[string]any{"hash": "0xabc"}})
	}))
	defer srv.Close()

	c, err := NewGaslessClient(types.Testnet, srv.URL)
	require.NoError(t, err)
	hash, err := c.Relay(context.Background(), RelayRequest{
		JWT:              "quote-jwt",
		Permit2Signature: []byte{1, 2},
		Permit: &PermitPayload{
			Signature: []byte{3, 4},
			Value:     big.NewInt(1_000_000),
			Deadline:  big.NewInt(1_800_000_000),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", hash)
}

func TestGaslessRelayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasPermit := body["permit"]
		assert.False(t, hasPermit)
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{"message": "quote expired"})
	}))
	defer srv.Close()

	c, err := NewGaslessClient(types.Testnet, srv.URL)
	require.NoError(t, err)

	_, err = c.Relay(context.Background(), RelayRequest{JWT: "quote-jwt"})
	assert.ErrorContains(t, err, "missing permit2 signature")

	_, err = c.Relay(context.Background(), RelayRequest{JWT: "quote-jwt", Permit2Signature: []byte{1}})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "quote expired", apiErr.Message)
}
