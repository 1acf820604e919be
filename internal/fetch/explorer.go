package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/types"
)

const DefaultExplorerURL = "https://api.explorer.stableit.com/api/v1beta"

// ReceivePoll is the default backoff of FindReceive.
var ReceivePoll = PollOptions{BaseDelay: 300 * time.Millisecond, MaxDelay: 1200 * time.Millisecond}

// Receive is the mint of a transfer on its destination.
type Receive struct {
	TransactionHash   string
	DestinationDomain types.Domain
}

// ExplorerClient looks up transfer operations by source transaction.
type ExplorerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewExplorerClient(baseURL string) *ExplorerClient {
	if baseURL == "" {
		baseURL = DefaultExplorerURL
	}
	return &ExplorerClient{baseURL: baseURL, httpClient: StandardClient(newRetryClient())}
}

type operationsResponse struct {
	Data []struct {
		Destination struct {
			TxHash string `json:"tx_hash"`
		} `json:"destination"`
	} `json:"data"`
}

// FindReceive polls until the explorer knows the destination transaction of
// the transfer sent in txHash. Rejections by the explorer count as "not yet".
func (c *ExplorerClient) FindReceive(ctx context.Context, dst types.Domain, txHash string, opts PollOptions) (Receive, error) {
	u := c.baseURL + "/operations?" + url.Values{"tx_hash": {txHash}}.Encode()
	logrus.WithFields(logrus.Fields{"destination": dst, "txHash": txHash}).Debug("Waiting for receive")
	return PollUntil(ctx, opts, func(ctx context.Context) (Receive, bool, error) {
		var resp operationsResponse
		err := doJSON(ctx, c.httpClient, http.MethodGet, u, nil, &resp)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return Receive{}, false, nil
		}
		if err != nil {
			return Receive{}, false, err
		}
		if len(resp.Data) == 0 || resp.Data[0].Destination.TxHash == "" {
			return Receive{}, false, nil
		}
		return Receive{TransactionHash: resp.Data[0].Destination.TxHash, DestinationDomain: dst}, true, nil
	})
}
