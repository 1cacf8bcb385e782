package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps checkpoints in Redis: one sorted set per thread
// (score = seq), a hash per thread for metadata, and a global sorted
// set indexing threads by last update. Suited to deployments where the
// executor and the API server run on separate hosts.
type RedisStore struct {
	client *redis.Client
	ns     string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithNamespace sets the key namespace. Defaults to "default".
func WithNamespace(ns string) RedisOption {
	return func(s *RedisStore) {
		s.ns = ns
	}
}

// WithClient supplies a pre-built client, overriding the address.
func WithClient(client *redis.Client) RedisOption {
	return func(s *RedisStore) {
		s.client = client
	}
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(addr string, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{ns: "default"}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{Addr: addr})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return s, nil
}

func (s *RedisStore) threadKey(threadID string) string {
	return fmt.Sprintf("careflow:%s:thread:%s", s.ns, threadID)
}

func (s *RedisStore) checkpointsKey(threadID string) string {
	return fmt.Sprintf("careflow:%s:checkpoints:%s", s.ns, threadID)
}

func (s *RedisStore) indexKey() string {
	return fmt.Sprintf("careflow:%s:threads", s.ns)
}

// CreateThread implements Store.
func (s *RedisStore) CreateThread(ctx context.Context, meta ThreadMeta) error {
	key := s.threadKey(meta.ThreadID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check thread: %w", err)
	}
	if exists > 0 {
		return ErrThreadExists
	}

	now := time.Now().UTC()
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"thread_id":      meta.ThreadID,
		"user_intent":    meta.UserIntent,
		"mode":           meta.Mode,
		"status":         meta.Status,
		"final_artifact": "",
		"created_at":     createdAt.Format(time.RFC3339Nano),
		"updated_at":     createdAt.Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(createdAt.UnixMilli()),
		Member: meta.ThreadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// Save implements Store. Seq derives from ZCARD; the executor runs one
// writer per thread, which keeps the sequence gapless.
func (s *RedisStore) Save(ctx context.Context, threadID string, snapshot json.RawMessage, status string) (int64, error) {
	exists, err := s.client.Exists(ctx, s.threadKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	count, err := s.client.ZCard(ctx, s.checkpointsKey(threadID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	seq := count + 1

	now := time.Now().UTC()
	data, err := json.Marshal(Checkpoint{
		ThreadID:  threadID,
		Seq:       seq,
		Snapshot:  snapshot,
		WrittenAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal checkpoint: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.checkpointsKey(threadID), redis.Z{
		Score:  float64(seq),
		Member: string(data),
	})
	pipe.HSet(ctx, s.threadKey(threadID),
		"status", status,
		"updated_at", now.Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: threadID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	return seq, nil
}

// LoadLatest implements Store.
func (s *RedisStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	members, err := s.client.ZRevRange(ctx, s.checkpointsKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("load latest: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrNotFound
	}

	var cp Checkpoint
	if err := json.Unmarshal([]byte(members[0]), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, threadID string, limit int) ([]Checkpoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	members, err := s.client.ZRange(ctx, s.checkpointsKey(threadID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	if len(members) == 0 {
		if _, err := s.Thread(ctx, threadID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	out := make([]Checkpoint, 0, len(members))
	for _, m := range members {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(m), &cp); err != nil {
			return nil, fmt.Errorf("decode checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}

// Thread implements Store.
func (s *RedisStore) Thread(ctx context.Context, threadID string) (*ThreadMeta, error) {
	fields, err := s.client.HGetAll(ctx, s.threadKey(threadID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return threadMetaFromHash(fields)
}

// Threads implements Store.
func (s *RedisStore) Threads(ctx context.Context, limit int) ([]ThreadMeta, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}

	out := make([]ThreadMeta, 0, len(ids))
	for _, id := range ids {
		meta, err := s.Thread(ctx, id)
		if err == ErrNotFound {
			continue // index entry outlived the thread hash
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}

// SetFinalArtifact implements Store.
func (s *RedisStore) SetFinalArtifact(ctx context.Context, threadID, artifact string) error {
	key := s.threadKey(threadID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if err := s.client.HSet(ctx, key, "final_artifact", artifact).Err(); err != nil {
		return fmt.Errorf("set final artifact: %w", err)
	}
	return nil
}

// StaleThreads implements Store.
func (s *RedisStore) StaleThreads(ctx context.Context, status string, before time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query stale threads: %w", err)
	}

	var out []string
	for _, id := range ids {
		got, err := s.client.HGet(ctx, s.threadKey(id), "status").Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check thread status: %w", err)
		}
		if got == status {
			out = append(out, id)
		}
	}
	return out, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func threadMetaFromHash(fields map[string]string) (*ThreadMeta, error) {
	meta := &ThreadMeta{
		ThreadID:      fields["thread_id"],
		UserIntent:    fields["user_intent"],
		Mode:          fields["mode"],
		Status:        fields["status"],
		FinalArtifact: fields["final_artifact"],
	}

	var err error
	if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if meta.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return meta, nil
}
