package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	log "github.com/sirupsen/logrus"
)

// SchemaVersion is written into every record envelope.
const SchemaVersion = 1

// Migration upgrades a version 0 value (an unversioned blob written by the
// browser client) into the current schema.
type Migration func(raw []byte) (json.RawMessage, error)

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Records stores typed values as versioned JSON on top of a Backend.
type Records struct {
	backend Backend

	mu         sync.RWMutex
	migrations map[string]Migration
}

func NewRecords(backend Backend) *Records {
	return &Records{backend: backend, migrations: make(map[string]Migration)}
}

// Backend returns the underlying key/value store.
func (r *Records) Backend() Backend {
	return r.backend
}

// RegisterMigration installs the version 0 upgrade for key.
func (r *Records) RegisterMigration(key string, m Migration) {
	r.mu.Lock()
	r.migrations[key] = m
	r.mu.Unlock()
}

// Load decodes the value under key into dst. It reports false when the key is
// absent or the stored value is unreadable; corrupt values are logged and
// treated as absent rather than failing the caller.
func (r *Records) Load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	data, err := r.upgrade(key, raw)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("storage: discarding unreadable record")
		return false, nil
	}
	// decode into a fresh value so a partial decode never reaches dst
	target := reflect.TypeOf(dst)
	if target == nil || target.Kind() != reflect.Pointer || reflect.ValueOf(dst).IsNil() {
		return false, fmt.Errorf("load %s: destination must be a non-nil pointer", key)
	}
	fresh := reflect.New(target.Elem())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		log.WithError(err).WithField("key", key).Warn("storage: discarding undecodable record")
		return false, nil
	}
	reflect.ValueOf(dst).Elem().Set(fresh.Elem())
	return true, nil
}

// Save encodes v into a current-version envelope under key.
func (r *Records) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	buf, err := json.Marshal(envelope{Version: SchemaVersion, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.backend.Set(ctx, key, buf); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *Records) Delete(ctx context.Context, key string) error {
	if err := r.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *Records) upgrade(key string, raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty value")
	}
	if trimmed[0] == '{' {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err == nil && env.Version > 0 && len(env.Data) > 0 {
			if env.Version > SchemaVersion {
				return nil, fmt.Errorf("unsupported schema version %d", env.Version)
			}
			return env.Data, nil
		}
	}

	r.mu.RLock()
	migrate := r.migrations[key]
	r.mu.RUnlock()
	if migrate == nil {
		if !json.Valid(trimmed) {
			return nil, errors.New("invalid json")
		}
		return trimmed, nil
	}
	return migrate(trimmed)
}
