package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pulsewatch/pkg/models"
)

// RedisConfig configures Redis access for tenant state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore is the production Store backed by Redis. Tenant isolation
// is enforced through key namespacing: every key carries the tenant.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "pulsewatch"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis tenant store: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// PutRecord writes the record and then appends the id to the index if
// it is new. Record first: a crash between the two writes leaves an id
// with a record rather than an index entry with nothing behind it.
func (s *RedisStore) PutRecord(ctx context.Context, tenant string, rec *models.ClientRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal client record: %w", err)
	}
	if err := s.client.Set(ctx, s.recordKey(tenant, rec.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("write client record: %w", err)
	}

	added, err := s.client.SAdd(ctx, s.seenKey(tenant), rec.ID).Result()
	if err != nil {
		return fmt.Errorf("mark client id seen: %w", err)
	}
	if added > 0 {
		if err := s.client.RPush(ctx, s.indexKey(tenant), rec.ID).Err(); err != nil {
			return fmt.Errorf("append client index: %w", err)
		}
	}
	return nil
}

// GetRecord reads one record, returning nil when absent.
func (s *RedisStore) GetRecord(ctx context.Context, tenant, id string) (*models.ClientRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(tenant, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client record: %w", err)
	}
	var rec models.ClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode client record: %w", err)
	}
	return &rec, nil
}

// ListIDs returns the append-only client index in insertion order.
func (s *RedisStore) ListIDs(ctx context.Context, tenant string) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.indexKey(tenant), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read client index: %w", err)
	}
	return ids, nil
}

// GetConfig reads the tenant config, returning nil when absent.
func (s *RedisStore) GetConfig(ctx context.Context, tenant string) (*models.TenantConfig, error) {
	data, err := s.client.Get(ctx, s.configKey(tenant)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tenant config: %w", err)
	}
	var cfg models.TenantConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode tenant config: %w", err)
	}
	return &cfg, nil
}

// PutConfig overwrites the tenant config.
func (s *RedisStore) PutConfig(ctx context.Context, tenant string, cfg *models.TenantConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tenant config: %w", err)
	}
	if err := s.client.Set(ctx, s.configKey(tenant), data, 0).Err(); err != nil {
		return fmt.Errorf("write tenant config: %w", err)
	}
	return nil
}

// GetLastState reads the persisted classifier output for id, "" when
// none was ever persisted.
func (s *RedisStore) GetLastState(ctx context.Context, tenant, id string) (models.State, error) {
	val, err := s.client.HGet(ctx, s.stateKey(tenant), id).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read last known state: %w", err)
	}
	return models.State(val), nil
}

// PutLastState persists the classifier output for id.
func (s *RedisStore) PutLastState(ctx context.Context, tenant, id string, st models.State) error {
	if err := s.client.HSet(ctx, s.stateKey(tenant), id, string(st)).Err(); err != nil {
		return fmt.Errorf("write last known state: %w", err)
	}
	return nil
}

// PushFact prepends a fact and trims the log to models.MaxFacts.
func (s *RedisStore) PushFact(ctx context.Context, tenant string, fact *models.Fact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.factsKey(tenant), data)
	pipe.LTrim(ctx, s.factsKey(tenant), 0, models.MaxFacts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append fact: %w", err)
	}
	return nil
}

// ListFacts returns the tenant's facts, newest first.
func (s *RedisStore) ListFacts(ctx context.Context, tenant string) ([]*models.Fact, error) {
	rows, err := s.client.LRange(ctx, s.factsKey(tenant), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	facts := make([]*models.Fact, 0, len(rows))
	for _, row := range rows {
		var f models.Fact
		if err := json.Unmarshal([]byte(row), &f); err != nil {
			continue
		}
		facts = append(facts, &f)
	}
	return facts, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) recordKey(tenant, id string) string {
	return s.prefix + ":t:" + tenant + ":client:" + id
}

func (s *RedisStore) indexKey(tenant string) string {
	return s.prefix + ":t:" + tenant + ":index"
}

func (s *RedisStore) seenKey(tenant string) string {
	return s.prefix + ":t:" + tenant + ":seen"
}

func (s *RedisStore) stateKey(tenant string) string {
	return s.prefix + ":t:" + tenant + ":state"
}

func (s *RedisStore) configKey(tenant string) string {
	return s.prefix + ":t:" + tenant + ":config"
}

func (s *RedisStore) factsKey(tenant string) string {
	return s.prefix + ":t:" + tenant + ":facts"
}
