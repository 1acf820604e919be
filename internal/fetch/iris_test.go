package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/types"
)

const testTxHash = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func completeMessage() map[string]any {
	return map[string]any{
		"message":     "0xdeadbeef",
		"eventNonce":  "42",
		"attestation": "0xcafe",
		"status":      AttestationStatusComplete,
		"cctpVersion": 2,
		"decodedMessage": map[string]any{
			"sourceDomain":      "0",
			"destinationDomain": "3",
			"nonce":             "42",
			"sender":            "0xsender",
			"recipient":         "0xrecipient",
			"destinationCaller": "0xcaller",
		},
	}
}

func newTestIris(t *testing.T, h http.HandlerFunc) *IrisClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewIrisClient(IrisConfig{BaseURL: srv.URL})
}

func TestNewIrisClientDefaults(t *testing.T) {
	assert.Equal(t, IrisMainnetURL, NewIrisClient(IrisConfig{Network: types.Mainnet}).baseURL)
	assert.Equal(t, IrisSandboxURL, NewIrisClient(IrisConfig{Network: types.Testnet}).baseURL)
	assert.Equal(t, "http://local", NewIrisClient(IrisConfig{BaseURL: "http://local"}).baseURL)
}

func TestGetMessages(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/messages/0", r.URL.Path)
			assert.Equal(t, testTxHash, r.URL.Query().Get("transactionHash"))
			writeJSON(t, w, http.StatusOK, map[string]any{"messages": []any{completeMessage()}})
		})
		msgs, err := c.GetMessages(context.Background(), types.Ethereum, testTxHash)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "3", msgs[0].DecodedMessage.DestinationDomain)
	})

	t.Run("404 means not indexed yet", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusNotFound, map[string]any{"message": "Message not found"})
		})
		_, err := c.GetMessages(context.Background(), types.Ethereum, testTxHash)
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("empty list", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{"messages": []any{}})
		})
		_, err := c.GetMessages(context.Background(), types.Ethereum, testTxHash)
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("other 4xx surfaces as APIError", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"code": "BAD_HASH", "message": "invalid hash"})
		})
		_, err := c.GetMessages(context.Background(), types.Ethereum, "nope")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Equal(t, "BAD_HASH", apiErr.Code)
		assert.Contains(t, err.Error(), "invalid hash")
	})

	t.Run("unknown domain", func(t *testing.T) {
		c := NewIrisClient(IrisConfig{BaseURL: "http://unused"})
		_, err := c.GetMessages(context.Background(), types.Domain("Mars"), testTxHash)
		assert.Error(t, err)
	})
}

func TestGetAttestation(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, http.StatusOK, map[string]any{"messages": []any{completeMessage()}})
		})
		att, err := c.GetAttestation(context.Background(), types.Ethereum, testTxHash)
		require.NoError(t, err)
		assert.Equal(t, types.Ethereum, att.SourceDomain)
		assert.Equal(t, types.Arbitrum, att.TargetDomain)
		assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, att.Message)
		assert.Equal(t, []byte{0xca, 0xfe}, att.Attestation)
		assert.Equal(t, 2, att.CctpVersion)
		assert.Equal(t, "0xcaller", att.DestinationCaller)
		assert.Equal(t, testTxHash, att.TransactionHash)
	})

	t.Run("pending", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			m := completeMessage()
			m["status"] = AttestationStatusPending
			writeJSON(t, w, http.StatusOK, map[string]any{"messages": []any{m}})
		})
		_, err := c.GetAttestation(context.Background(), types.Ethereum, testTxHash)
		assert.ErrorIs(t, err, ErrAttestationPending)
	})

	t.Run("unknown destination id", func(t *testing.T) {
		c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
			m := completeMessage()
			m["decodedMessage"].(map[string]any)["destinationDomain"] = "999"
			writeJSON(t, w, http.StatusOK, map[string]any{"messages": []any{m}})
		})
		_, err := c.GetAttestation(context.Background(), types.Ethereum, testTxHash)
		assert.ErrorContains(t, err, "unknown domain id 999")
	})
}

func TestFastBurnFee(t *testing.T) {
	c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/burn/USDC/fees/0/3", r.URL.Path)
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"finalityThreshold": 1000, "minimumFee": 1},
			{"finalityThreshold": 2000, "minimumFee": 0},
		})
	})
	fee, err := c.FastBurnFee(context.Background(), types.Ethereum, types.Arbitrum)
	require.NoError(t, err)
	assert.True(t, fee.Eq(amount.FromInt(amount.Percentage, 1, "bp")), fee.String())
}

func TestFastBurnFeeMissingThreshold(t *testing.T) {
	c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"finalityThreshold": 2000, "minimumFee": 0}})
	})
	_, err := c.FastBurnFee(context.Background(), types.Ethereum, types.Arbitrum)
	assert.ErrorContains(t, err, "no fast transfer fee")
}

func TestFastBurnAllowance(t *testing.T) {
	c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/fastBurn/USDC/allowance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"allowance": 1234567.891234, "lastUpdated": "2025-01-01T00:00:00Z"}`))
	})
	a, err := c.FastBurnAllowance(context.Background())
	require.NoError(t, err)
	assert.True(t, a.Eq(amount.MicroUsdc(1_234_567_891_234)), a.String())
}

func TestIrisBreakerIgnoresRejections(t *testing.T) {
	c := newTestIris(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"message": "not found"})
	})
	for i := 0; i < 10; i++ {
		_, err := c.GetMessages(context.Background(), types.Ethereum, testTxHash)
		require.ErrorIs(t, err, ErrNoMessages)
	}
	assert.Equal(t, "closed", c.BreakerState().String())
}
