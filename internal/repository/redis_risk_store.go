package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"SpectreGate/internal/domain/models"
	"SpectreGate/internal/domain/repository"
)

// snapshotTTL keeps stale entries from outliving their usefulness; a
// snapshot only matters within the same trading day.
const snapshotTTL = 48 * time.Hour

// RedisRiskStore persists risk tracker snapshots so a same-day restart
// keeps the session trade cap and cooldown intact.
type RedisRiskStore struct {
	cli    *redis.Client
	prefix string
}

// RedisRiskStoreConfig holds connection settings.
type RedisRiskStoreConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisRiskStore creates a Redis-backed risk store.
func NewRedisRiskStore(cfg RedisRiskStoreConfig) repository.RiskStore {
	cli := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "spectregate:risk"
	}
	return &RedisRiskStore{cli: cli, prefix: prefix}
}

func (s *RedisRiskStore) key(symbol string) string {
	return fmt.Sprintf("%s:%s", s.prefix, symbol)
}

func (s *RedisRiskStore) Load(ctx context.Context, symbol string) (*models.RiskSnapshot, error) {
	b, err := s.cli.Get(ctx, s.key(symbol)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var snap models.RiskSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode risk snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisRiskStore) Save(ctx context.Context, symbol string, snap *models.RiskSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode risk snapshot: %w", err)
	}
	return s.cli.Set(ctx, s.key(symbol), b, snapshotTTL).Err()
}

func (s *RedisRiskStore) Close() error {
	return s.cli.Close()
}
