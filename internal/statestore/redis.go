package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kilnforge/distill/internal/taskstate"
)

// RedisStore is the alternate Store backend for multi-process
// deployments where TaskState must be visible across processes sharing
// no filesystem. It is only used when the state_store backend is
// "redis", though the statestore package always compiles it in; the
// Task Controller only ever depends on the Store interface.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures the connection. Addr is the only required
// field; the rest mirror the common Redis client knobs.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	// KeyPrefix namespaces every task key, e.g. "distill:task:".
	KeyPrefix string
}

// NewRedisStore dials addr and verifies connectivity with a PING before
// returning, so construction failures surface immediately rather than on
// first use.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "distill:task:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("statestore: connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(taskID string) string {
	return s.prefix + taskID
}

func (s *RedisStore) Get(ctx context.Context, taskID string) (*taskstate.TaskState, error) {
	data, err := s.client.Get(ctx, s.key(taskID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("statestore: redis get %s: %w", taskID, err)
	}
	var ts taskstate.TaskState
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("statestore: parsing %s: %w", taskID, err)
	}
	return &ts, nil
}

func (s *RedisStore) Put(ctx context.Context, state *taskstate.TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.TaskID), data, 0).Err(); err != nil {
		return fmt.Errorf("statestore: redis set %s: %w", state.TaskID, err)
	}
	return nil
}

// Update uses Redis's optimistic-locking transaction (WATCH/MULTI/EXEC)
// so a concurrent writer from another process can never observe or
// produce a lost update, satisfying the per-key atomicity the contract
// requires without a distributed lock.
func (s *RedisStore) Update(ctx context.Context, taskID string, fn func(*taskstate.TaskState) error) error {
	key := s.key(taskID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}

		var ts taskstate.TaskState
		if err := json.Unmarshal(data, &ts); err != nil {
			return fmt.Errorf("statestore: parsing %s: %w", taskID, err)
		}
		if err := fn(&ts); err != nil {
			return err
		}

		updated, err := json.Marshal(&ts)
		if err != nil {
			return fmt.Errorf("statestore: marshal: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return fmt.Errorf("statestore: redis update %s: %w", taskID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, status taskstate.Status) ([]*taskstate.TaskState, error) {
	keys, err := s.client.Keys(ctx, s.prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("statestore: redis keys: %w", err)
	}

	var out []*taskstate.TaskState
	for _, k := range keys {
		data, err := s.client.Get(ctx, k).Bytes()
		if err != nil {
			continue
		}
		var ts taskstate.TaskState
		if err := json.Unmarshal(data, &ts); err != nil {
			continue
		}
		if status == "" || ts.Status == status {
			out = append(out, &ts)
		}
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
