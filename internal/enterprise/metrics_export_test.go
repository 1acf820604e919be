package enterprise

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/cctpr-engine/internal/route"
	"github.com/yourorg/cctpr-engine/internal/security"
)

// webhook records the batches it receives.
type webhook struct {
	mu      sync.Mutex
	status  int
	batches []Batch
	headers []http.Header
	bodies  [][]byte
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var b Batch
	_ = json.Unmarshal(body, &b)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, b)
	w.headers = append(w.headers, r.Header.Clone())
	w.bodies = append(w.bodies, body)
	if w.status != 0 {
		rw.WriteHeader(w.status)
	}
}

func (w *webhook) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

func newExporter(t *testing.T, url string, batchSize int) (*EventExporter, *route.Bus) {
	t.Helper()
	bus := route.NewBus(16)
	e := NewEventExporter(ExporterConfig{
		WebhookURL:     url,
		WebhookAPIKey:  "secret",
		BatchSize:      batchSize,
		ExportInterval: time.Hour,
	}, bus)
	e.client.RetryMax = 0
	return e, bus
}

func TestEventExporter_FullBatch(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, bus := newExporter(t, srv.URL, 2)
	e.Start(context.Background())

	bus.Publish(route.Event{Kind: route.EventTransferInitiated, RouteID: "r1"})
	bus.Publish(route.Event{Kind: route.EventTransferSent, RouteID: "r1", TxHash: "0xabc"})

	require.Eventually(t, func() bool { return hook.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Stop())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	b := hook.batches[0]
	assert.Equal(t, 2, b.Count)
	require.Len(t, b.Events, 2)
	assert.Equal(t, route.EventTransferSent, b.Events[1].Kind)
	assert.Equal(t, "0xabc", b.Events[1].TxHash)
	assert.Equal(t, "Bearer secret", hook.headers[0].Get("Authorization"))
	assert.Empty(t, hook.headers[0].Get(SignatureHeader))

	status := e.Status()
	assert.Equal(t, 2, status["exported"])
	assert.Equal(t, 0, status["current_batch"])
	assert.Contains(t, status, "last_export")
}

func TestEventExporter_FlushOnStop(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, bus := newExporter(t, srv.URL, 100)
	e.Start(context.Background())
	bus.Publish(route.Event{Kind: route.EventError, RouteID: "r2"})

	require.Eventually(t, func() bool {
		return e.Status()["current_batch"] == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hook.count())

	require.NoError(t, e.Stop())
	assert.Equal(t, 1, hook.count())
}

func TestEventExporter_WebhookError(t *testing.T) {
	hook := &webhook{status: http.StatusBadGateway}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	e, bus := newExporter(t, srv.URL, 1)
	e.Start(context.Background())
	bus.Publish(route.Event{Kind: route.EventTransferRedeemed})

	require.Eventually(t, func() bool { return e.Status()["failed"] == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Stop())
	assert.Equal(t, 0, e.Status()["exported"])
}

func TestEventExporter_Signed(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	signer, err := security.NewSigner("", time.Minute)
	require.NoError(t, err)
	e, bus := newExporter(t, srv.URL, 1)
	e.WithSigner(signer).Start(context.Background())
	bus.Publish(route.Event{Kind: route.EventHopConfirmed})

	require.Eventually(t, func() bool { return hook.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, e.Stop())

	hook.mu.Lock()
	defer hook.mu.Unlock()
	sig, err := hexutil.Decode(hook.headers[0].Get(SignatureHeader))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	sig[64] -= 27

	body := hook.bodies[0]
	digest := crypto.Keccak256([]byte("\x19Ethereum Signed Message:\n" + strconv.Itoa(len(body)) + string(body)))
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), crypto.PubkeyToAddress(*pub))
	assert.NotEqual(t, common.Address{}, signer.Address())
}

func TestEventExporter_StopWithoutStart(t *testing.T) {
	e, _ := newExporter(t, "http://127.0.0.1:0", 1)
	assert.ErrorIs(t, e.Stop(), ErrNotStarted)
}
