package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const (
	snapshotKeyPrefix = "task:snapshot:"
	cancelChannel     = "task:cancel"
)

// publishScript stores ARGV[2] at KEYS[1] only when ARGV[1] (seq) is newer than the stored one.
var publishScript = goredis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "seq")
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("HSET", KEYS[1], "seq", ARGV[1], "data", ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func RedisConfigFromEnv() RedisConfig {
	return RedisConfig{
		Addr:     envutil.String("REDIS_ADDR", ""),
		Password: envutil.String("REDIS_PASSWORD", ""),
		DB:       envutil.Int("REDIS_DB", 0),
		TTL:      envutil.Seconds("TASK_SNAPSHOT_TTL_SECONDS", time.Hour),
	}
}

type RedisStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRedisStore(cfg RedisConfig, log *logger.Logger) (*RedisStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{
		log: log.With("service", "RedisProgressStore"),
		rdb: rdb,
		ttl: cfg.TTL,
	}, nil
}

func (s *RedisStore) Publish(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	ttlSeconds := int64(s.ttl / time.Second)
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}
	return publishScript.Run(ctx, s.rdb, []string{snapshotKeyPrefix + snap.TaskID.String()},
		snap.Seq, string(raw), ttlSeconds).Err()
}

func (s *RedisStore) Get(ctx context.Context, taskID uuid.UUID) (*Snapshot, error) {
	raw, err := s.rdb.HGet(ctx, snapshotKeyPrefix+taskID.String(), "data").Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) PublishCancel(ctx context.Context, taskID uuid.UUID) error {
	return s.rdb.Publish(ctx, cancelChannel, taskID.String()).Err()
}

func (s *RedisStore) SubscribeCancel(ctx context.Context) (<-chan uuid.UUID, error) {
	sub := s.rdb.Subscribe(ctx, cancelChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	out := make(chan uuid.UUID, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				id, err := uuid.Parse(m.Payload)
				if err != nil {
					s.log.Warn("bad cancel payload", "payload", m.Payload)
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
