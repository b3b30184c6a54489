package alert

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulsewatch/pkg/models"
)

func TestDispatcherDeliversPayload(t *testing.T) {
	received := make(chan models.AlertPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %s", ct)
		}
		var p models.AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		received <- p
	}))
	defer srv.Close()

	d := NewDispatcher(Config{QueueSize: 4, Timeout: 2 * time.Second}, nil)
	defer d.Close()

	want := models.AlertPayload{
		DeliveryID: "d-1",
		Tenant:     "acme",
		ClientID:   "s1",
		From:       models.StateOK,
		To:         models.StateWarn,
		Timestamp:  time.Now().UTC(),
	}
	d.Enqueue(srv.URL, want)

	select {
	case got := <-received:
		if got.Tenant != want.Tenant || got.ClientID != want.ClientID || got.From != want.From || got.To != want.To {
			t.Fatalf("payload mismatch: got %+v want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("webhook was never delivered")
	}
}

func TestDispatcherSwallowsDeliveryFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(Config{QueueSize: 4, Timeout: 2 * time.Second}, nil)
	d.Enqueue(srv.URL, models.AlertPayload{Tenant: "acme", ClientID: "s1"})
	d.Enqueue("http://127.0.0.1:1/unreachable", models.AlertPayload{Tenant: "acme", ClientID: "s2"})

	// Close drains the queue; no panic and no error surfaced.
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatcherEnqueueNeverBlocks(t *testing.T) {
	// No worker progress: a server that stalls long enough for the
	// queue to stay full.
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	d := NewDispatcher(Config{QueueSize: 1, Timeout: 10 * time.Second}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Enqueue(srv.URL, models.AlertPayload{Tenant: "acme", ClientID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Enqueue blocked with a full queue")
	}
}
