// Package engine is the heartbeat state engine: it ingests pings,
// classifies client liveness, detects state transitions and triggers
// webhook alerts. All operations are tenant-scoped.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pulsewatch/internal/logger"
	"pulsewatch/internal/metrics"
	"pulsewatch/internal/signature"
	"pulsewatch/internal/state"
	"pulsewatch/internal/store"
	"pulsewatch/pkg/models"
)

const lockStripes = 64

// AlertSink receives transition alerts for asynchronous delivery.
// Enqueue must not block.
type AlertSink interface {
	Enqueue(url string, payload models.AlertPayload)
}

// Engine orchestrates the heartbeat state machine over a Store. It
// holds no tenant state in memory beyond the scope of one operation.
type Engine struct {
	store    store.Store
	alerts   AlertSink
	verifier *signature.Verifier
	metrics  *metrics.Collector
	now      func() time.Time

	// Striped per-tenant locks: operations on one tenant serialize,
	// different tenants proceed in parallel (modulo stripe collisions).
	locks [lockStripes]sync.Mutex
}

// New creates an engine. The sink may be nil when alerting is disabled.
func New(st store.Store, sink AlertSink, verifier *signature.Verifier, collector *metrics.Collector) *Engine {
	return &Engine{
		store:    st,
		alerts:   sink,
		verifier: verifier,
		metrics:  collector,
		now:      time.Now,
	}
}

// PingInput carries one inbound liveness report.
type PingInput struct {
	ID        string
	Timestamp string
	Signature string
	SourceIP  string
	UserAgent string
	Meta      json.RawMessage
}

// IngestPing records a ping for one client. The post-ping state is
// always ok since the record's age is zero; a recovery alert fires when
// a previous non-ok state was persisted and the tenant is premium with
// a webhook configured.
func (e *Engine) IngestPing(ctx context.Context, tenant string, in PingInput) (*models.ClientStatus, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		e.metrics.PingObserved(tenant, "invalid")
		return nil, &ValidationError{Reason: "client id is required"}
	}

	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := e.loadConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}

	hasTimestamp := strings.TrimSpace(in.Timestamp) != ""
	hasSignature := strings.TrimSpace(in.Signature) != ""
	verified := false

	if cfg.Tier == models.TierPremium {
		if !hasTimestamp || !hasSignature {
			e.metrics.PingObserved(tenant, "unauthorized")
			return nil, &AuthError{Reason: "premium requires timestamp and signature"}
		}
		if err := e.verifier.Verify(tenant, id, in.Timestamp, in.Signature); err != nil {
			e.metrics.PingObserved(tenant, "unauthorized")
			return nil, mapSignatureError(err)
		}
		verified = true
	} else if hasTimestamp || hasSignature {
		// Free tier: signature optional, but partial or invalid
		// headers reject the ping.
		if err := e.verifier.Verify(tenant, id, in.Timestamp, in.Signature); err != nil {
			e.metrics.PingObserved(tenant, "unauthorized")
			return nil, mapSignatureError(err)
		}
		verified = true
	}

	now := e.now()
	rec := &models.ClientRecord{
		ID:        id,
		LastSeen:  now,
		SourceIP:  in.SourceIP,
		UserAgent: in.UserAgent,
		Meta:      in.Meta,
		Verified:  verified,
	}
	if err := e.store.PutRecord(ctx, tenant, rec); err != nil {
		e.metrics.PingObserved(tenant, "error")
		return nil, fmt.Errorf("persist ping for %s/%s: %w", tenant, id, err)
	}

	prev, err := e.store.GetLastState(ctx, tenant, id)
	if err != nil {
		e.metrics.PingObserved(tenant, "error")
		return nil, fmt.Errorf("read last state for %s/%s: %w", tenant, id, err)
	}
	if prev != "" && prev != models.StateOK && cfg.AlertsEnabled() {
		e.fireAlert(tenant, id, prev, models.StateOK, cfg.AlertWebhookURL, now)
	}
	if err := e.store.PutLastState(ctx, tenant, id, models.StateOK); err != nil {
		e.metrics.PingObserved(tenant, "error")
		return nil, fmt.Errorf("persist state for %s/%s: %w", tenant, id, err)
	}

	e.metrics.PingObserved(tenant, "ok")
	return &models.ClientStatus{ClientRecord: *rec, State: models.StateOK, AgeMillis: 0}, nil
}

// GetStatus classifies one client from its record age and persists the
// result. No transition comparison happens on this path.
func (e *Engine) GetStatus(ctx context.Context, tenant, id string) (*models.ClientStatus, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &ValidationError{Reason: "client id is required"}
	}

	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	rec, err := e.store.GetRecord(ctx, tenant, id)
	if err != nil {
		return nil, fmt.Errorf("read record for %s/%s: %w", tenant, id, err)
	}
	if rec == nil {
		return nil, &NotFoundError{ID: id}
	}

	age := e.now().Sub(rec.LastSeen)
	st := state.Classify(age)
	if err := e.store.PutLastState(ctx, tenant, id, st); err != nil {
		return nil, fmt.Errorf("persist state for %s/%s: %w", tenant, id, err)
	}

	return &models.ClientStatus{ClientRecord: *rec, State: st, AgeMillis: age.Milliseconds()}, nil
}

// ListClients classifies every known client, freshest first. This is
// the only path that detects decay transitions: for premium tenants
// with a webhook, any change against the persisted last-known state
// fires an alert; clients without a persisted state are seeded
// silently.
func (e *Engine) ListClients(ctx context.Context, tenant string) ([]models.ClientStatus, error) {
	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	cfg, err := e.loadConfig(ctx, tenant)
	if err != nil {
		return nil, err
	}

	ids, err := e.store.ListIDs(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list client ids for %s: %w", tenant, err)
	}

	now := e.now()
	out := make([]models.ClientStatus, 0, len(ids))
	for _, id := range ids {
		rec, err := e.store.GetRecord(ctx, tenant, id)
		if err != nil {
			return nil, fmt.Errorf("read record for %s/%s: %w", tenant, id, err)
		}
		if rec == nil {
			continue
		}

		age := now.Sub(rec.LastSeen)
		st := state.Classify(age)
		out = append(out, models.ClientStatus{ClientRecord: *rec, State: st, AgeMillis: age.Milliseconds()})

		if !cfg.AlertsEnabled() {
			continue
		}
		prev, err := e.store.GetLastState(ctx, tenant, id)
		if err != nil {
			return nil, fmt.Errorf("read last state for %s/%s: %w", tenant, id, err)
		}
		if prev == st {
			continue
		}
		if err := e.store.PutLastState(ctx, tenant, id, st); err != nil {
			return nil, fmt.Errorf("persist state for %s/%s: %w", tenant, id, err)
		}
		if prev != "" {
			e.fireAlert(tenant, id, prev, st, cfg.AlertWebhookURL, now)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].AgeMillis < out[j].AgeMillis })
	return out, nil
}

// GetConfig returns the tenant config, defaulting to free tier with no
// webhook when none was written.
func (e *Engine) GetConfig(ctx context.Context, tenant string) (*models.TenantConfig, error) {
	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()
	return e.loadConfig(ctx, tenant)
}

// SetConfig overwrites the tenant config. The caller must already have
// authenticated as admin. Unknown tier values decode as free.
func (e *Engine) SetConfig(ctx context.Context, tenant, tierRaw, webhookURL string) (*models.TenantConfig, error) {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL != "" {
		u, err := url.Parse(webhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, &ValidationError{Reason: "alert webhook must be an http(s) URL"}
		}
	}

	cfg := &models.TenantConfig{
		Tier:            models.ParseTier(tierRaw),
		AlertWebhookURL: webhookURL,
		UpdatedAt:       e.now(),
	}

	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	if err := e.store.PutConfig(ctx, tenant, cfg); err != nil {
		return nil, fmt.Errorf("persist config for %s: %w", tenant, err)
	}
	logger.Infof("Tenant %s config updated: tier=%s webhook=%t", tenant, cfg.Tier, cfg.AlertWebhookURL != "")
	return cfg, nil
}

// RecordFact appends an evidence event to the tenant's bounded log.
func (e *Engine) RecordFact(ctx context.Context, tenant, source, factType, entity string, meta json.RawMessage) (*models.Fact, error) {
	source = strings.TrimSpace(source)
	factType = strings.TrimSpace(factType)
	entity = strings.TrimSpace(entity)
	if source == "" || factType == "" || entity == "" {
		return nil, &ValidationError{Reason: "source, type and entity are required"}
	}

	fact := &models.Fact{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		Source:    source,
		Type:      factType,
		Entity:    entity,
		Meta:      meta,
	}

	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	if err := e.store.PushFact(ctx, tenant, fact); err != nil {
		return nil, fmt.Errorf("append fact for %s: %w", tenant, err)
	}
	e.metrics.FactRecorded(tenant)
	return fact, nil
}

// ListFacts returns the tenant's facts, newest first.
func (e *Engine) ListFacts(ctx context.Context, tenant string) ([]*models.Fact, error) {
	mu := e.tenantLock(tenant)
	mu.Lock()
	defer mu.Unlock()

	facts, err := e.store.ListFacts(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list facts for %s: %w", tenant, err)
	}
	return facts, nil
}

func (e *Engine) loadConfig(ctx context.Context, tenant string) (*models.TenantConfig, error) {
	cfg, err := e.store.GetConfig(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("read config for %s: %w", tenant, err)
	}
	if cfg == nil {
		return models.DefaultTenantConfig(), nil
	}
	return cfg, nil
}

// fireAlert hands a transition to the sink. Enqueue is non-blocking, so
// holding the tenant lock here does not stall on delivery.
func (e *Engine) fireAlert(tenant, id string, from, to models.State, webhookURL string, ts time.Time) {
	if e.alerts == nil {
		return
	}
	e.alerts.Enqueue(webhookURL, models.AlertPayload{
		DeliveryID: uuid.NewString(),
		Tenant:     tenant,
		ClientID:   id,
		From:       from,
		To:         to,
		Timestamp:  ts,
	})
	e.metrics.AlertFired(tenant)
	logger.Debugf("Alert enqueued for %s/%s: %s -> %s", tenant, id, from, to)
}

func (e *Engine) tenantLock(tenant string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(tenant))
	return &e.locks[h.Sum32()%lockStripes]
}

func mapSignatureError(err error) error {
	switch {
	case errors.Is(err, signature.ErrSecretUnset):
		return &ConfigError{Reason: err.Error()}
	case errors.Is(err, signature.ErrMissingField), errors.Is(err, signature.ErrBadTimestamp):
		return &ValidationError{Reason: err.Error()}
	default:
		return &AuthError{Reason: err.Error()}
	}
}
