package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/yourorg/cctpr-engine/internal/amount"
	"github.com/yourorg/cctpr-engine/internal/types"
)

const (
	IrisMainnetURL = "https://iris-api.circle.com"
	IrisSandboxURL = "https://iris-api-sandbox.circle.com"

	// MaxRequestsPerSecond stays under Iris' published limit of 35/s.
	MaxRequestsPerSecond = 35

	AttestationStatusPending  = "pending_confirmations"
	AttestationStatusComplete = "complete"
)

var (
	// ErrNoMessages means Iris has not indexed the burn yet.
	ErrNoMessages = errors.New("no messages found for transaction")
	// ErrAttestationPending means the burn is indexed but not attested yet.
	ErrAttestationPending = errors.New("attestation pending")
)

// IrisConfig configures an IrisClient. BaseURL defaults per network.
type IrisConfig struct {
	BaseURL string
	Network types.Network
	Timeout time.Duration
}

// IrisClient talks to Circle's attestation API behind a rate limiter and a
// circuit breaker.
type IrisClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
}

func NewIrisClient(cfg IrisConfig) *IrisClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = IrisSandboxURL
		if cfg.Network == types.Mainnet {
			cfg.BaseURL = IrisMainnetURL
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	rc := newRetryClient()
	rc.HTTPClient.Timeout = cfg.Timeout

	settings := gobreaker.Settings{
		Name:        "CCTPAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// A 4xx is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			return err == nil || errors.As(err, &apiErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			}).Info("Iris circuit breaker state changed")
		},
	}
	return &IrisClient{
		baseURL:    cfg.BaseURL,
		httpClient: StandardClient(rc),
		breaker:    gobreaker.NewCircuitBreaker(settings),
		limiter:    rate.NewLimiter(rate.Limit(MaxRequestsPerSecond), 1),
	}
}

// BreakerState reports the Iris circuit breaker state.
func (c *IrisClient) BreakerState() gobreaker.State { return c.breaker.State() }

func (c *IrisClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, doJSON(ctx, c.httpClient, http.MethodGet, u, nil, out)
	})
	return err
}

func domainID(d types.Domain) (uint32, error) {
	id, ok := d.ID()
	if !ok {
		return 0, fmt.Errorf("unknown domain %q", d)
	}
	return id, nil
}

// Message is one CCTP message as Iris reports it.
type Message struct {
	Message        string         `json:"message"`
	EventNonce     string         `json:"eventNonce"`
	Attestation    string         `json:"attestation"`
	Status         string         `json:"status"`
	CctpVersion    int            `json:"cctpVersion"`
	DecodedMessage DecodedMessage `json:"decodedMessage"`
}

// DecodedMessage is Iris' decoding of the message header. Domains are
// decimal strings.
type DecodedMessage struct {
	SourceDomain      string `json:"sourceDomain"`
	DestinationDomain string `json:"destinationDomain"`
	Nonce             string `json:"nonce"`
	Sender            string `json:"sender"`
	Recipient         string `json:"recipient"`
	DestinationCaller string `json:"destinationCaller"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

// GetMessages returns the CCTP messages emitted by txHash on src.
func (c *IrisClient) GetMessages(ctx context.Context, src types.Domain, txHash string) ([]Message, error) {
	id, err := domainID(src)
	if err != nil {
		return nil, err
	}
	var resp messagesResponse
	err = c.get(ctx, fmt.Sprintf("/v2/messages/%d", id), url.Values{"transactionHash": {txHash}}, &resp)
	if IsNotFound(err) {
		return nil, ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if len(resp.Messages) == 0 {
		return nil, ErrNoMessages
	}
	return resp.Messages, nil
}

type burnFee struct {
	FinalityThreshold uint32      `json:"finalityThreshold"`
	MinimumFee        json.Number `json:"minimumFee"`
}

// FastBurnFee is the minimum fast transfer fee rate from src to dst.
func (c *IrisClient) FastBurnFee(ctx context.Context, src, dst types.Domain) (amount.Amount, error) {
	srcID, err := domainID(src)
	if err != nil {
		return amount.Amount{}, err
	}
	dstID, err := domainID(dst)
	if err != nil {
		return amount.Amount{}, err
	}
	var fees []burnFee
	if err := c.get(ctx, fmt.Sprintf("/v2/burn/USDC/fees/%d/%d", srcID, dstID), nil, &fees); err != nil {
		return amount.Amount{}, fmt.Errorf("get fast burn fee: %w", err)
	}
	for _, f := range fees {
		if f.FinalityThreshold == types.FinalityConfirmed {
			return amount.Parse(amount.Percentage, f.MinimumFee.String(), "bp")
		}
	}
	return amount.Amount{}, fmt.Errorf("no fast transfer fee from %s to %s", src, dst)
}

// FastBurnAllowance is how much USDC may currently be fast-burned.
func (c *IrisClient) FastBurnAllowance(ctx context.Context) (amount.Amount, error) {
	var resp struct {
		Allowance json.Number `json:"allowance"`
	}
	if err := c.get(ctx, "/v2/fastBurn/USDC/allowance", nil, &resp); err != nil {
		return amount.Amount{}, fmt.Errorf("get fast burn allowance: %w", err)
	}
	return amount.Parse(amount.Usdc, resp.Allowance.String(), "USDC")
}
