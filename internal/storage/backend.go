package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pocusai/internal/config"
	"pocusai/internal/redis"
)

// Logical keys of the durable store.
const (
	KeyUsers         = "users"
	KeyCurrentUser   = "currentUser"
	KeySavedUsername = "savedUsername"
	KeyStayLoggedIn  = "stayLoggedIn"
	KeyChatSessions  = "chatSessions"
	KeyUsageCounters = "usageCounters"
)

// ErrNotFound is returned by backends when a key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a durable key/value store. Values are opaque bytes.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewBackend opens the backend selected by cfg.Storage.Driver.
func NewBackend(cfg *config.Config) (Backend, error) {
	driver := strings.ToLower(cfg.Storage.Driver)
	switch driver {
	case "memory":
		return NewMemoryBackend(), nil
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		return NewRedisBackend(client, ""), nil
	case "sqlite", "sqlite3", "mysql":
		db, err := Open(driver, cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(db, driver); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLBackend(db, driver), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}

// SQLBackend keeps values in the kv_store table.
type SQLBackend struct {
	db     *sql.DB
	driver string
}

func NewSQLBackend(db *sql.DB, driver string) *SQLBackend {
	return &SQLBackend{db: db, driver: strings.ToLower(driver)}
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, b.query(`SELECT value FROM kv_store WHERE key = ?`), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	stmt := `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if b.driver == "mysql" {
		stmt = "INSERT INTO kv_store (`key`, value, updated_at) VALUES (?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)"
	}
	if _, err := b.db.ExecContext(ctx, stmt, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, b.query(`DELETE FROM kv_store WHERE key = ?`), key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

// query quotes the key column for mysql, where KEY is reserved.
func (b *SQLBackend) query(q string) string {
	if b.driver == "mysql" {
		return strings.Replace(q, "WHERE key", "WHERE `key`", 1)
	}
	return q
}

// RedisBackend stores each logical key under a prefixed redis key without expiry.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "pocusai:"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, b.prefix+key)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(val), nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.prefix+key, value, 0); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.prefix+key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// MemoryBackend is a process-local backend used by tests and ephemeral runs.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	b.mu.Lock()
	b.data[key] = v
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Close() error { return nil }
