// Package enterprise forwards transfer progress events to an external
// webhook in batches.
package enterprise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/cctpr-engine/internal/route"
	"github.com/yourorg/cctpr-engine/internal/security"
)

// ExporterConfig holds configuration for event exporting
type ExporterConfig struct {
	WebhookURL     string        `json:"webhook_url"`
	WebhookAPIKey  string        `json:"webhook_api_key,omitempty"`
	BatchSize      int           `json:"batch_size"`
	ExportInterval time.Duration `json:"export_interval"`
}

// Enabled reports whether a webhook is configured.
func (c ExporterConfig) Enabled() bool { return c.WebhookURL != "" }

// SignatureHeader carries the signed batch when the exporter has a signer.
const SignatureHeader = "X-Cctpr-Signature"

// EventExporter batches the events of a progress bus and posts them to the
// webhook when the batch is full or the export interval elapses.
type EventExporter struct {
	config ExporterConfig
	client *retryablehttp.Client
	signer *security.Signer
	sub    *route.Subscription

	mutex      sync.RWMutex
	batch      []route.Event
	lastExport time.Time
	exported   int
	failed     int

	cancel context.CancelFunc
	done   chan struct{}
}

// NewEventExporter subscribes to every event of bus. Call Start to begin
// exporting.
func NewEventExporter(config ExporterConfig, bus *route.Bus) *EventExporter {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.ExportInterval <= 0 {
		config.ExportInterval = 30 * time.Second
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &EventExporter{
		config: config,
		client: client,
		sub:    bus.Subscribe(),
		batch:  make([]route.Event, 0, config.BatchSize),
		done:   make(chan struct{}),
	}
}

// WithSigner signs every exported batch.
func (e *EventExporter) WithSigner(s *security.Signer) *EventExporter {
	e.signer = s
	return e
}

// Start runs the export loop until ctx is done or Stop is called.
func (e *EventExporter) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.run(ctx)
	logrus.WithFields(logrus.Fields{
		"batchSize": e.config.BatchSize,
		"interval":  e.config.ExportInterval,
	}).Info("Event exporter started")
}

func (e *EventExporter) run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-e.sub.C:
			if !ok {
				e.export(context.Background())
				return
			}
			if e.add(ev) {
				e.export(ctx)
			}
		case <-ticker.C:
			e.export(ctx)
		case <-ctx.Done():
			e.sub.Close()
			e.drain()
			// The loop context is gone; the final flush gets its own.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			e.export(flushCtx)
			cancel()
			return
		}
	}
}

// add appends ev and reports whether the batch is full.
func (e *EventExporter) add(ev route.Event) bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.batch = append(e.batch, ev)
	return len(e.batch) >= e.config.BatchSize
}

// drain moves the events still buffered in a closed subscription into the
// batch.
func (e *EventExporter) drain() {
	for ev := range e.sub.C {
		e.add(ev)
	}
}

// export posts and resets the current batch. A failed batch is dropped.
func (e *EventExporter) export(ctx context.Context) {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return
	}
	events := e.batch
	e.batch = make([]route.Event, 0, e.config.BatchSize)
	e.lastExport = time.Now()
	e.mutex.Unlock()

	err := e.exportToWebhook(ctx, events)

	e.mutex.Lock()
	if err != nil {
		e.failed += len(events)
	} else {
		e.exported += len(events)
	}
	e.mutex.Unlock()

	if err != nil {
		logrus.WithError(err).WithField("events", len(events)).Error("Failed to export events to webhook")
		return
	}
	logrus.WithField("events", len(events)).Debug("Exported events to webhook")
}

// Batch is the webhook request body.
type Batch struct {
	Events     []route.Event `json:"events"`
	ExportTime string        `json:"export_time"`
	Count      int           `json:"count"`
}

func (e *EventExporter) exportToWebhook(ctx context.Context, events []route.Event) error {
	body := Batch{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, e.config.WebhookURL, jsonData)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}
	if e.signer != nil {
		signed, err := e.signer.SignPayload(json.RawMessage(jsonData))
		if err != nil {
			return err
		}
		req.Header.Set(SignatureHeader, signed.Signature)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

var ErrNotStarted = errors.New("exporter not started")

// Stop ends the export loop after flushing the pending batch.
func (e *EventExporter) Stop() error {
	if e.cancel == nil {
		e.sub.Close()
		return ErrNotStarted
	}
	e.cancel()
	<-e.done
	return nil
}

// Status is what /status reports about the exporter.
func (e *EventExporter) Status() map[string]any {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	status := map[string]any{
		"batch_size":      e.config.BatchSize,
		"export_interval": e.config.ExportInterval.String(),
		"current_batch":   len(e.batch),
		"exported":        e.exported,
		"failed":          e.failed,
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.Format(time.RFC3339)
	}
	return status
}
