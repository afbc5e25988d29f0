package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotConfig configures the Redis snapshot backend, used when
// a fleet of machines reports diagnostics to a central store.
type RedisSnapshotConfig struct {
	// Address is the Redis server address (e.g. "localhost:6379").
	Address string

	// Password for Redis authentication (optional).
	Password string

	// Database number to use (default 0).
	Database int

	// Prefix is prepended to all snapshot keys.
	Prefix string

	// TTL is the time-to-live for snapshot keys (0 = no expiration).
	TTL time.Duration

	// Timeout for Redis operations.
	Timeout time.Duration
}

// DefaultRedisSnapshotConfig returns sensible defaults.
func DefaultRedisSnapshotConfig(address string) RedisSnapshotConfig {
	return RedisSnapshotConfig{
		Address: address,
		Prefix:  "bootlens:snapshots:",
		TTL:     30 * 24 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// RedisSnapshotBackend stores snapshots in Redis, with a sorted-set
// index by save time for retention.
type RedisSnapshotBackend struct {
	cfg    RedisSnapshotConfig
	client *redis.Client
}

// NewRedisSnapshotBackend connects to Redis and verifies reachability.
func NewRedisSnapshotBackend(cfg RedisSnapshotConfig) (*RedisSnapshotBackend, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "bootlens:snapshots:"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisSnapshotBackend{cfg: cfg, client: client}, nil
}

// Name returns the backend name.
func (b *RedisSnapshotBackend) Name() string { return "redis" }

// Close closes the client.
func (b *RedisSnapshotBackend) Close() error { return b.client.Close() }

func (b *RedisSnapshotBackend) key(sessionID string) string {
	return b.cfg.Prefix + sessionID
}

func (b *RedisSnapshotBackend) indexKey() string {
	return b.cfg.Prefix + "index"
}

// Save stores the snapshot and indexes it by save time.
func (b *RedisSnapshotBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, b.key(snap.SessionID), data, b.cfg.TTL)
	pipe.ZAdd(ctx, b.indexKey(), redis.Z{Score: snap.SavedTimestamp, Member: snap.SessionID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the snapshot for a session.
func (b *RedisSnapshotBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Cleanup removes all but the retain most-recently-saved snapshots.
func (b *RedisSnapshotBackend) Cleanup(ctx context.Context, retain int) (int, error) {
	// Oldest first, excluding the newest retain entries.
	old, err := b.client.ZRange(ctx, b.indexKey(), 0, int64(-retain-1)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(old) == 0 {
		return 0, nil
	}

	pipe := b.client.TxPipeline()
	for _, sessionID := range old {
		pipe.Del(ctx, b.key(sessionID))
		pipe.ZRem(ctx, b.indexKey(), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to remove old snapshots: %w", err)
	}
	return len(old), nil
}
