package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ChainScope-Agent/internal/agent"
	xerrors "ChainScope-Agent/internal/errors"
)

const defaultRedisRetention = 24 * time.Hour

// RedisStore 把任务以 JSON 形式保存在 Redis 中，便于多个实例共享任务状态。
// 任务索引保存在以更新时间为分值的有序集合里。
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore 基于已有客户端创建存储，prefix 为空时使用默认前缀。
// 存储可以与 RedisQueue 共用同一个客户端。
func NewRedisStore(client redis.UniversalClient, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "chainscope:jobs"
	}
	if retention <= 0 {
		retention = defaultRedisRetention
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention, now: time.Now}
}

func (s *RedisStore) key(id string) string { return s.prefix + ":" + id }

func (s *RedisStore) indexKey() string { return s.prefix + ":index" }

// Create 实现 Store 接口。
func (s *RedisStore) Create(ctx context.Context, j *Job) error {
	if err := validateNew(j); err != nil {
		return err
	}
	stampNew(j, s.now().Unix())
	payload, err := json.Marshal(j)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	created, err := s.client.SetNX(ctx, s.key(j.ID), payload, s.retention).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	if !created {
		return ErrJobConflict
	}
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(j.UpdatedAt), Member: j.ID}).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务索引失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	return s.load(ctx, s.client, id)
}

// stringGetter 同时由客户端与事务实现。
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, cmd stringGetter, id string) (*Job, error) {
	raw, err := cmd.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
	}
	var j Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务失败")
	}
	return &j, nil
}

// update 在 WATCH 事务中读取、修改并写回任务，键被并发修改时整体重试。
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	var (
		current   *Job
		mutateErr error
	)
	key := s.key(id)
	txf := func(tx *redis.Tx) error {
		j, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		current = j
		if mutateErr = mutate(j); mutateErr != nil {
			return nil
		}
		payload, err := json.Marshal(j)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.retention)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(j.UpdatedAt), Member: j.ID})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if _, ok := xerrors.From(err); ok {
				return nil, err
			}
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务失败")
		}
		return current, mutateErr
	}
	return nil, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("任务 %s 并发更新冲突", id))
}

// Claim 实现 Store 接口。
func (s *RedisStore) Claim(ctx context.Context, id string) (*Job, error) {
	now := s.now().Unix()
	return s.update(ctx, id, func(j *Job) error { return claim(j, now) })
}

// MarkSucceeded 实现 Store 接口。
func (s *RedisStore) MarkSucceeded(ctx context.Context, id string, result agent.AnalysisResult) error {
	now := s.now().Unix()
	_, err := s.update(ctx, id, func(j *Job) error {
		markSucceeded(j, result, now)
		return nil
	})
	return err
}

// MarkFailed 实现 Store 接口。
func (s *RedisStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	now := s.now().Unix()
	_, err := s.update(ctx, id, func(j *Job) error {
		markFailed(j, code, lastError, terminal, now)
		return nil
	})
	return err
}

// List 实现 Store 接口，已过期的任务会顺带从索引中移除。
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()
	jobs, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		if opts.matches(j) {
			results = append(results, j)
		}
	}
	return opts.sortAndLimit(results), nil
}

// Stats 实现 Store 接口。
func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	jobs, err := s.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, j := range jobs {
		stats.add(j.Status)
	}
	return stats, nil
}

func (s *RedisStore) scan(ctx context.Context) ([]*Job, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务索引失败")
	}
	jobs := make([]*Job, 0, len(ids))
	var stale []any
	for _, id := range ids {
		j, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return jobs, nil
}

// Close 不关闭客户端，客户端由创建方负责释放。
func (s *RedisStore) Close() error { return nil }
