package engine

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"pulsewatch/internal/signature"
	"pulsewatch/internal/store"
	"pulsewatch/pkg/models"
)

type captureSink struct {
	mu       sync.Mutex
	urls     []string
	payloads []models.AlertPayload
}

func (s *captureSink) Enqueue(url string, p models.AlertPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	s.payloads = append(s.payloads, p)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *captureSink) last() models.AlertPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[len(s.payloads)-1]
}

// testEngine wires an engine over the in-memory store with a movable
// clock. The signature verifier keeps the real clock, so tests sign
// with wall-clock timestamps.
func testEngine(secret string) (*Engine, *captureSink, *fakeClock) {
	sink := &captureSink{}
	clock := &fakeClock{t: time.Now()}
	e := New(store.NewMemoryStore(), sink, signature.NewVerifier(secret), nil)
	e.now = clock.Now
	return e, sink, clock
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func signedPing(secret, tenant, id string) PingInput {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return PingInput{
		ID:        id,
		Timestamp: ts,
		Signature: signature.Sign(secret, tenant, id, ts),
	}
}

func mustSetPremium(t *testing.T, e *Engine, tenant, webhook string) {
	t.Helper()
	if _, err := e.SetConfig(context.Background(), tenant, "premium", webhook); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
}

func TestPingAlwaysYieldsOK(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()

	st, err := e.IngestPing(ctx, "acme", PingInput{ID: "s1", SourceIP: "10.0.0.1", UserAgent: "curl"})
	if err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	if st.State != models.StateOK || st.AgeMillis != 0 {
		t.Fatalf("expected ok/0 after ping, got %s/%d", st.State, st.AgeMillis)
	}
	if st.Verified {
		t.Fatalf("free ping without signature must be unverified")
	}
}

func TestPingMissingIDRejected(t *testing.T) {
	e, _, _ := testEngine("secret")

	var verr *ValidationError
	if _, err := e.IngestPing(context.Background(), "acme", PingInput{ID: "   "}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestPremiumRequiresSignature(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "https://hooks.example/n")

	var aerr *AuthError
	if _, err := e.IngestPing(ctx, "acme", PingInput{ID: "s1"}); !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if aerr.Reason != "premium requires timestamp and signature" {
		t.Fatalf("unexpected reason: %q", aerr.Reason)
	}
}

func TestPremiumVerifiedPing(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "")

	st, err := e.IngestPing(ctx, "acme", signedPing("secret", "acme", "s1"))
	if err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	if !st.Verified {
		t.Fatalf("expected verified record")
	}
}

func TestFreePartialSignatureRejected(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var verr *ValidationError
	if _, err := e.IngestPing(ctx, "acme", PingInput{ID: "s1", Timestamp: ts}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for partial headers, got %v", err)
	}

	var aerr *AuthError
	in := PingInput{ID: "s1", Timestamp: ts, Signature: "00ff00ff"}
	if _, err := e.IngestPing(ctx, "acme", in); !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError for bad signature, got %v", err)
	}
}

func TestFreeValidSignatureVerifies(t *testing.T) {
	e, _, _ := testEngine("secret")

	st, err := e.IngestPing(context.Background(), "acme", signedPing("secret", "acme", "s1"))
	if err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	if !st.Verified {
		t.Fatalf("expected verified free-tier ping")
	}
}

func TestPingSecretUnsetIsConfigError(t *testing.T) {
	e, _, _ := testEngine("")

	var cerr *ConfigError
	in := signedPing("secret", "acme", "s1")
	if _, err := e.IngestPing(context.Background(), "acme", in); !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestStatusNotFound(t *testing.T) {
	e, _, _ := testEngine("secret")

	var nerr *NotFoundError
	if _, err := e.GetStatus(context.Background(), "acme", "ghost"); !errors.As(err, &nerr) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDecayAlertFiresOnceOnListing(t *testing.T) {
	e, sink, clock := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "https://hooks.example/n")

	if _, err := e.IngestPing(ctx, "acme", signedPing("secret", "acme", "s1")); err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("no alert expected on first ping, got %d", sink.count())
	}

	clock.Advance(70 * time.Second)

	list, err := e.ListClients(ctx, "acme")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(list) != 1 || list[0].State != models.StateWarn {
		t.Fatalf("expected one warn client, got %+v", list)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one alert, got %d", sink.count())
	}
	p := sink.last()
	if p.From != models.StateOK || p.To != models.StateWarn || p.ClientID != "s1" || p.Tenant != "acme" {
		t.Fatalf("unexpected alert payload: %+v", p)
	}
	if sink.urls[0] != "https://hooks.example/n" {
		t.Fatalf("unexpected webhook url: %s", sink.urls[0])
	}

	// Immediate second listing: state unchanged, no further alert.
	list, err = e.ListClients(ctx, "acme")
	if err != nil {
		t.Fatalf("second ListClients: %v", err)
	}
	if list[0].State != models.StateWarn {
		t.Fatalf("expected warn on second listing, got %s", list[0].State)
	}
	if sink.count() != 1 {
		t.Fatalf("expected no further alert, got %d", sink.count())
	}
}

func TestRecoveryAlertOnPing(t *testing.T) {
	e, sink, clock := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "https://hooks.example/n")

	if _, err := e.IngestPing(ctx, "acme", signedPing("secret", "acme", "s1")); err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	clock.Advance(70 * time.Second)
	if _, err := e.ListClients(ctx, "acme"); err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected decay alert first, got %d", sink.count())
	}

	if _, err := e.IngestPing(ctx, "acme", signedPing("secret", "acme", "s1")); err != nil {
		t.Fatalf("recovery IngestPing: %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("expected recovery alert, got %d total", sink.count())
	}
	p := sink.last()
	if p.From != models.StateWarn || p.To != models.StateOK {
		t.Fatalf("unexpected recovery payload: %+v", p)
	}
}

func TestFreeTenantNeverAlerts(t *testing.T) {
	e, sink, clock := testEngine("secret")
	ctx := context.Background()

	if _, err := e.IngestPing(ctx, "acme", PingInput{ID: "s1"}); err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	clock.Advance(10 * time.Minute)
	list, err := e.ListClients(ctx, "acme")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if list[0].State != models.StateDown {
		t.Fatalf("expected down, got %s", list[0].State)
	}
	if sink.count() != 0 {
		t.Fatalf("free tenant must not alert, got %d", sink.count())
	}
}

func TestStatusPathDoesNotAlert(t *testing.T) {
	e, sink, clock := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "https://hooks.example/n")

	if _, err := e.IngestPing(ctx, "acme", signedPing("secret", "acme", "s1")); err != nil {
		t.Fatalf("IngestPing: %v", err)
	}
	clock.Advance(70 * time.Second)

	st, err := e.GetStatus(ctx, "acme", "s1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != models.StateWarn {
		t.Fatalf("expected warn, got %s", st.State)
	}
	if sink.count() != 0 {
		t.Fatalf("status path must not alert, got %d", sink.count())
	}

	// The status read already persisted warn, so the listing sees no
	// transition either.
	if _, err := e.ListClients(ctx, "acme"); err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no alert after status persisted state, got %d", sink.count())
	}
}

func TestListingSeedsStateWithoutAlert(t *testing.T) {
	e, sink, clock := testEngine("secret")
	ctx := context.Background()
	mustSetPremium(t, e, "acme", "https://hooks.example/n")

	// A record with no persisted last-known state: written directly,
	// as if it predates state tracking.
	rec := &models.ClientRecord{ID: "legacy", LastSeen: clock.Now().Add(-2 * time.Minute)}
	if err := e.store.PutRecord(ctx, "acme", rec); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}

	list, err := e.ListClients(ctx, "acme")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if list[0].State != models.StateWarn {
		t.Fatalf("expected warn, got %s", list[0].State)
	}
	if sink.count() != 0 {
		t.Fatalf("seeding must not alert, got %d", sink.count())
	}

	// The seed persisted warn; decaying further now alerts.
	clock.Advance(5 * time.Minute)
	if _, err := e.ListClients(ctx, "acme"); err != nil {
		t.Fatalf("second ListClients: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected one decay alert after seed, got %d", sink.count())
	}
	p := sink.last()
	if p.From != models.StateWarn || p.To != models.StateDown {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestListClientsSortedByAge(t *testing.T) {
	e, _, clock := testEngine("secret")
	ctx := context.Background()

	if _, err := e.IngestPing(ctx, "acme", PingInput{ID: "old"}); err != nil {
		t.Fatalf("ping old: %v", err)
	}
	clock.Advance(30 * time.Second)
	if _, err := e.IngestPing(ctx, "acme", PingInput{ID: "fresh"}); err != nil {
		t.Fatalf("ping fresh: %v", err)
	}

	list, err := e.ListClients(ctx, "acme")
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(list) != 2 || list[0].ID != "fresh" || list[1].ID != "old" {
		t.Fatalf("expected freshest first, got %+v", list)
	}
}

func TestSetConfigUnknownTierDefaultsToFree(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()

	cfg, err := e.SetConfig(ctx, "acme", "platinum", "")
	if err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if cfg.Tier != models.TierFree {
		t.Fatalf("unknown tier must default to free, got %s", cfg.Tier)
	}

	got, err := e.GetConfig(ctx, "acme")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.Tier != models.TierFree {
		t.Fatalf("persisted tier mismatch: %s", got.Tier)
	}
}

func TestSetConfigRejectsBadWebhookURL(t *testing.T) {
	e, _, _ := testEngine("secret")

	var verr *ValidationError
	if _, err := e.SetConfig(context.Background(), "acme", "premium", "ftp://example.com/x"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestGetConfigDefaultsWhenAbsent(t *testing.T) {
	e, _, _ := testEngine("secret")

	cfg, err := e.GetConfig(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Tier != models.TierFree || cfg.AlertWebhookURL != "" {
		t.Fatalf("expected free/no-webhook default, got %+v", cfg)
	}
}

func TestRecordFactValidationAndOrder(t *testing.T) {
	e, _, _ := testEngine("secret")
	ctx := context.Background()

	var verr *ValidationError
	if _, err := e.RecordFact(ctx, "acme", " ", "scan", "host-1", nil); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for blank source, got %v", err)
	}

	first, err := e.RecordFact(ctx, "acme", "scanner", "observation", "host-1", nil)
	if err != nil {
		t.Fatalf("RecordFact: %v", err)
	}
	second, err := e.RecordFact(ctx, "acme", "scanner", "observation", "host-2", nil)
	if err != nil {
		t.Fatalf("RecordFact: %v", err)
	}

	facts, err := e.ListFacts(ctx, "acme")
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 2 || facts[0].ID != second.ID || facts[1].ID != first.ID {
		t.Fatalf("expected newest-first facts, got %+v", facts)
	}
	if facts[0].ID == "" || first.ID == second.ID {
		t.Fatalf("facts must carry unique ids")
	}
}
