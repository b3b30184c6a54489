// Package alert delivers transition webhooks, fire-and-forget.
package alert

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"pulsewatch/internal/logger"
	"pulsewatch/internal/metrics"
	"pulsewatch/pkg/models"
)

// Config configures the dispatcher.
type Config struct {
	QueueSize int
	Timeout   time.Duration
}

type delivery struct {
	url     string
	payload models.AlertPayload
}

// Dispatcher posts alert payloads to tenant webhooks from a background
// worker. Enqueue never blocks the caller; delivery failures are logged
// and counted but never surfaced.
type Dispatcher struct {
	queue   chan delivery
	client  *http.Client
	metrics *metrics.Collector

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(cfg Config, collector *metrics.Collector) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &Dispatcher{
		queue:   make(chan delivery, size),
		client:  &http.Client{Timeout: timeout},
		metrics: collector,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue hands a payload to the background worker. If the queue is
// full the payload is dropped; alerting is best-effort and must never
// delay the request path.
func (d *Dispatcher) Enqueue(url string, payload models.AlertPayload) {
	select {
	case d.queue <- delivery{url: url, payload: payload}:
	default:
		logger.Warnf("Alert queue full, dropping %s -> %s for %s/%s",
			payload.From, payload.To, payload.Tenant, payload.ClientID)
		d.metrics.AlertDelivery("dropped")
	}
}

// Close stops the worker after draining what is already queued.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.queue)
		<-d.done
	})
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for dl := range d.queue {
		d.post(dl)
	}
}

func (d *Dispatcher) post(dl delivery) {
	body, err := json.Marshal(dl.payload)
	if err != nil {
		logger.Warnf("Failed to marshal alert payload: %v", err)
		d.metrics.AlertDelivery("error")
		return
	}

	req, err := http.NewRequest(http.MethodPost, dl.url, bytes.NewReader(body))
	if err != nil {
		logger.Warnf("Failed to build webhook request for %s: %v", dl.payload.Tenant, err)
		d.metrics.AlertDelivery("error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		logger.Warnf("Webhook delivery failed for %s/%s: %v", dl.payload.Tenant, dl.payload.ClientID, err)
		d.metrics.AlertDelivery("error")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warnf("Webhook for %s/%s returned %s", dl.payload.Tenant, dl.payload.ClientID, resp.Status)
		d.metrics.AlertDelivery("rejected")
		return
	}
	d.metrics.AlertDelivery("ok")
}
