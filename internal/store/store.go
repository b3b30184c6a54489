// Package store persists per-tenant client records, tenant config,
// last-known states and the facts log. All operations are scoped to a
// single tenant; no cross-tenant reads ever occur.
package store

import (
	"context"

	"pulsewatch/pkg/models"
)

// Store is the durable per-tenant key-value surface the engine runs
// against. Implementations must provide read-your-writes consistency
// within a tenant.
type Store interface {
	// PutRecord overwrites the record for rec.ID and appends the id to
	// the tenant's index if it has not been seen before. The record is
	// written before the index append so the index never references an
	// id without a record.
	PutRecord(ctx context.Context, tenant string, rec *models.ClientRecord) error

	// GetRecord returns the record for id, or nil if none exists.
	GetRecord(ctx context.Context, tenant, id string) (*models.ClientRecord, error)

	// ListIDs returns every client id ever seen, in first-seen order.
	ListIDs(ctx context.Context, tenant string) ([]string, error)

	// GetConfig returns the tenant config, or nil if none was written.
	GetConfig(ctx context.Context, tenant string) (*models.TenantConfig, error)

	// PutConfig overwrites the tenant config.
	PutConfig(ctx context.Context, tenant string, cfg *models.TenantConfig) error

	// GetLastState returns the most recently persisted classifier
	// output for id, or "" if none was ever persisted.
	GetLastState(ctx context.Context, tenant, id string) (models.State, error)

	// PutLastState persists the classifier output for id.
	PutLastState(ctx context.Context, tenant, id string, st models.State) error

	// PushFact prepends a fact to the tenant's log, truncating it to
	// the models.MaxFacts newest entries.
	PushFact(ctx context.Context, tenant string, fact *models.Fact) error

	// ListFacts returns the tenant's facts, newest first.
	ListFacts(ctx context.Context, tenant string) ([]*models.Fact, error)

	// Close releases store resources.
	Close() error
}
