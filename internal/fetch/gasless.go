package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/cctpr"
	"github.com/yourorg/cctpr-engine/internal/types"
)

// GaslessTestnetURL is the relayer API on testnet. There is no mainnet
// deployment yet.
const GaslessTestnetURL = "https://api.stg.stableit.com"

// ErrGaslessUnavailable means the relayer will not take the transfer, or
// there is no relayer for the network.
var ErrGaslessUnavailable = errors.New("gasless relay unavailable")

// GaslessURL is the default relayer API for n, or "" if there is none.
func GaslessURL(n types.Network) string {
	if n == types.Testnet {
		return GaslessTestnetURL
	}
	return ""
}

// GaslessQuoteRequest asks the relayer what it charges to submit a transfer
// on the user's behalf.
type GaslessQuoteRequest struct {
	Source            types.Domain
	Destination       types.Domain
	Amount            amount.Amount
	Sender            string
	Recipient         string
	Corridor          cctpr.CorridorParams
	GasDropoff        amount.Amount
	PermitRequired    bool
	MaxRelayFee       amount.Amount
	TakeFeesFromInput bool
}

func (r GaslessQuoteRequest) query() (url.Values, error) {
	src, err := domainID(r.Source)
	if err != nil {
		return nil, err
	}
	dst, err := domainID(r.Destination)
	if err != nil {
		return nil, err
	}
	fastFeeRate := "0"
	if r.Corridor.Type == cctpr.V2Direct && !r.Corridor.FastFeeRate.IsZero() {
		fastFeeRate = r.Corridor.FastFeeRate.In("scalar").Decimal(8).String()
	}
	gasDropoff := "0"
	if !r.GasDropoff.IsZero() {
		gasDropoff = r.GasDropoff.In("human").Decimal(18).String()
	}
	return url.Values{
		"sourceDomain":          {strconv.FormatUint(uint64(src), 10)},
		"targetDomain":          {strconv.FormatUint(uint64(dst), 10)},
		"amount":                {r.Amount.In("human").Decimal(6).String()},
		"sender":                {r.Sender},
		"recipient":             {r.Recipient},
		"corridor":              {string(r.Corridor.Type)},
		"gasDropoff":            {gasDropoff},
		"permit2PermitRequired": {strconv.FormatBool(r.PermitRequired)},
		"maxRelayFee":           {r.MaxRelayFee.In("human").Decimal(6).StringFixed(6)},
		"fastFeeRate":           {fastFeeRate},
		"takeFeesFromInput":     {strconv.FormatBool(r.TakeFeesFromInput)},
	}, nil
}

// GaslessQuote is a decoded relayer quote. JWT is passed back unchanged to
// Relay.
type GaslessQuote struct {
	JWT         string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	GaslessFee  amount.Amount
	Permit2Data json.RawMessage
}

// Expired reports whether the quote can no longer be relayed at now.
func (q *GaslessQuote) Expired(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && !now.Before(q.ExpiresAt)
}

type gaslessClaims struct {
	GaslessFee         string          `json:"gaslessFee"`
	WillRelay          *bool           `json:"willRelay"`
	QuoteRequest       json.RawMessage `json:"quoteRequest,omitempty"`
	Permit2GaslessData json.RawMessage `json:"permit2GaslessData,omitempty"`
	jwt.RegisteredClaims
}

// PermitPayload is the optional EIP-2612 permit that lets Permit2 spend the
// user's USDC.
type PermitPayload struct {
	Signature []byte
	Value     *big.Int
	Deadline  *big.Int
}

// RelayRequest hands a signed gasless transfer to the relayer.
type RelayRequest struct {
	JWT              string
	Permit2Signature []byte
	Permit           *PermitPayload
}

type relayBody struct {
	JWT              string             `json:"jwt"`
	Permit2Signature string             `json:"permit2Signature"`
	Permit           *relayPermitFields `json:"permit,omitempty"`
}

type relayPermitFields struct {
	Signature string `json:"signature"`
	Value     string `json:"value"`
	Deadline  string `json:"deadline"`
}

// GaslessClient talks to the relayer API.
type GaslessClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewGaslessClient returns a client for baseURL, falling back to the default
// relayer of n. It fails with ErrGaslessUnavailable when there is none.
func NewGaslessClient(n types.Network, baseURL string) (*GaslessClient, error) {
	if baseURL == "" {
		baseURL = GaslessURL(n)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w on %s", ErrGaslessUnavailable, n)
	}
	return &GaslessClient{
		baseURL:    baseURL,
		httpClient: StandardClient(newRetryClient()),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "GaslessAPI",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			IsSuccessful: func(err error) bool {
				var apiErr *APIError
				return err == nil || errors.As(err, &apiErr)
			},
		}),
	}, nil
}

func (c *GaslessClient) do(ctx context.Context, method, u string, body, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, doJSON(ctx, c.httpClient, method, u, body, out)
	})
	return err
}

// Quote asks the relayer for a gasless quote. The JWT is decoded without
// verification: only the relayer can check its own signature.
func (c *GaslessClient) Quote(ctx context.Context, req GaslessQuoteRequest) (*GaslessQuote, error) {
	q, err := req.query()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data struct {
			JWT string `json:"jwt"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/gasless-transfer/quote?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("gasless quote: %w", err)
	}
	quote, err := decodeGaslessJWT(resp.Data.JWT)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"source":      req.Source,
		"destination": req.Destination,
		"fee":         quote.GaslessFee.String(),
		"expiresAt":   quote.ExpiresAt,
	}).Debug("Gasless quote received")
	return quote, nil
}

func decodeGaslessJWT(token string) (*GaslessQuote, error) {
	if token == "" {
		return nil, errors.New("gasless quote: empty jwt")
	}
	claims := &gaslessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("gasless quote: decode jwt: %w", err)
	}
	if claims.WillRelay == nil || !*claims.WillRelay {
		return nil, fmt.Errorf("%w: relayer declined the transfer", ErrGaslessUnavailable)
	}
	fee, err := amount.Parse(amount.Usdc, claims.GaslessFee, "USDC")
	if err != nil {
		return nil, fmt.Errorf("gasless quote: fee %q: %w", claims.GaslessFee, err)
	}
	quote := &GaslessQuote{JWT: token, GaslessFee: fee, Permit2Data: claims.Permit2GaslessData}
	if claims.IssuedAt != nil {
		quote.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		quote.ExpiresAt = claims.ExpiresAt.Time
	}
	return quote, nil
}

// Relay submits a signed gasless transfer and returns the relayer's
// transaction hash.
func (c *GaslessClient) Relay(ctx context.Context, req RelayRequest) (string, error) {
	if len(req.Permit2Signature) == 0 {
		return "", errors.New("gasless relay: missing permit2 signature")
	}
	body := relayBody{JWT: req.JWT, Permit2Signature: hexutil.Encode(req.Permit2Signature)}
	if p := req.Permit; p != nil {
		body.Permit = &relayPermitFields{
			Signature: hexutil.Encode(p.Signature),
			Value:     p.Value.String(),
			Deadline:  p.Deadline.String(),
		}
	}
	var resp struct {
		Data struct {
			Hash string `json:"hash"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/gasless-transfer/relay", body, &resp); err != nil {
		return "", fmt.Errorf("gasless relay: %w", err)
	}
	if resp.Data.Hash == "" {
		return "", errors.New("gasless relay: no transaction hash in response")
	}
	return resp.Data.Hash, nil
}
