package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couponhub/internal/apperr"
	"github.com/couponhub/internal/constants"
	"github.com/couponhub/internal/logger"
	"github.com/couponhub/internal/metrics"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Cache 缓存读写能力，未命中时 hit 为 false 且 err 为 nil
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Backend 实体的持久化实现，所有查询只针对未软删除的行
type Backend[T any, K comparable] interface {
	// FindAlive 按业务键查询，未找到返回 nil, nil
	FindAlive(ctx context.Context, key K) (*T, error)
	// UpdateAlive 按业务键条件更新，返回影响行数
	UpdateAlive(ctx context.Context, entity *T) (int64, error)
	// SoftDelete 软删除，返回影响行数
	SoftDelete(ctx context.Context, entity *T) (int64, error)
	// Insert 插入，返回影响行数
	Insert(ctx context.Context, entity *T) (int64, error)
	// KeyOf 实体的业务键，用于写入前读取旧行
	KeyOf(entity *T) K
	// KeysOf 实体关联的全部缓存 key
	KeysOf(entity *T) []string
	// CacheKey 读路径使用的缓存 key
	CacheKey(key K) string
	// WithTx 绑定事务
	WithTx(tx *gorm.DB) Backend[T, K]
}

// Result 查询结果，Value 为 nil 表示未找到
type Result[T any] struct {
	Value  *T
	Origin string
}

// Found 是否找到
func (r Result[T]) Found() bool {
	return r.Value != nil
}

// Options 存储参数
type Options struct {
	Name    string                                  // 用于日志与指标
	TTL     time.Duration                           // 默认缓存时长
	TTLFunc func(ctx context.Context) time.Duration // 运行时缓存时长，返回 <= 0 时使用 TTL
}

// CacheAsideStore 旁路缓存存储
// 读：缓存 -> 数据库 -> 回填缓存；写：单事务且仅影响一行，提交后删除缓存
type CacheAsideStore[T any, K comparable] struct {
	db      *gorm.DB
	backend Backend[T, K]
	cache   Cache
	name    string
	ttl     time.Duration
	ttlFunc func(ctx context.Context) time.Duration
}

// New 创建旁路缓存存储
func New[T any, K comparable](db *gorm.DB, backend Backend[T, K], cache Cache, opts Options) *CacheAsideStore[T, K] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTLSeconds * time.Second
	}
	name := opts.Name
	if name == "" {
		name = "entity"
	}
	return &CacheAsideStore[T, K]{
		db:      db,
		backend: backend,
		cache:   cache,
		name:    name,
		ttl:     ttl,
		ttlFunc: opts.TTLFunc,
	}
}

// Get 读取实体，缓存异常时降级到数据库
func (s *CacheAsideStore[T, K]) Get(ctx context.Context, key K) (Result[T], error) {
	cacheKey := s.backend.CacheKey(key)
	if s.cache != nil {
		var cached T
		hit, err := s.cache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			logger.Warnw("cache_aside_read_failed", "store", s.name, "key", cacheKey, "error", err)
		} else if hit {
			metrics.ObserveCacheLookup(s.name, constants.OriginCache)
			logger.Debugw("cache_aside_hit", "store", s.name, "key", cacheKey)
			return Result[T]{Value: &cached, Origin: constants.OriginCache}, nil
		}
	}

	entity, err := s.backend.FindAlive(ctx, key)
	if err != nil {
		return Result[T]{}, fmt.Errorf("%w: %s query failed: %v", apperr.ErrPersistence, s.name, err)
	}
	if entity == nil {
		metrics.ObserveCacheLookup(s.name, "miss")
		logger.Debugw("cache_aside_miss", "store", s.name, "key", cacheKey)
		return Result[T]{}, nil
	}
	metrics.ObserveCacheLookup(s.name, constants.OriginStore)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, cacheKey, entity, s.resolveTTL(ctx)); err != nil {
			logger.Warnw("cache_aside_fill_failed", "store", s.name, "key", cacheKey, "error", err)
		}
	}
	return Result[T]{Value: entity, Origin: constants.OriginStore}, nil
}

// Write 条件更新，必须恰好影响一行
// 提交后同时删除旧行与新值的缓存 key，二级 key（如券码）变更时旧 key 不会残留
func (s *CacheAsideStore[T, K]) Write(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: %s entity is nil", apperr.ErrValidation, s.name)
	}
	var previous *T
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		backend := s.backend.WithTx(tx)
		prev, err := backend.FindAlive(ctx, backend.KeyOf(entity))
		if err != nil {
			return err
		}
		affected, err := backend.UpdateAlive(ctx, entity)
		if err != nil {
			return err
		}
		if err := expectOneRow(affected); err != nil {
			return err
		}
		previous = prev
		return nil
	})
	if err != nil {
		return s.persistenceError("update", err)
	}
	keys := s.backend.KeysOf(entity)
	if previous != nil {
		keys = append(keys, s.backend.KeysOf(previous)...)
	}
	s.invalidate(ctx, Distinct(keys))
	return nil
}

// Insert 插入实体，必须恰好影响一行
func (s *CacheAsideStore[T, K]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: %s entity is nil", apperr.ErrValidation, s.name)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected, err := s.backend.WithTx(tx).Insert(ctx, entity)
		if err != nil {
			return err
		}
		return expectOneRow(affected)
	})
	if err != nil {
		return s.persistenceError("insert", err)
	}
	s.invalidate(ctx, s.backend.KeysOf(entity))
	return nil
}

// Delete 软删除实体并删除其全部缓存 key
func (s *CacheAsideStore[T, K]) Delete(ctx context.Context, key K) error {
	var deleted *T
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		backend := s.backend.WithTx(tx)
		entity, err := backend.FindAlive(ctx, key)
		if err != nil {
			return err
		}
		if entity == nil {
			return errNotFound
		}
		affected, err := backend.SoftDelete(ctx, entity)
		if err != nil {
			return err
		}
		if err := expectOneRow(affected); err != nil {
			return err
		}
		deleted = entity
		return nil
	})
	if errors.Is(err, errNotFound) {
		return fmt.Errorf("%w: %s not found", apperr.ErrNotFound, s.name)
	}
	if err != nil {
		return s.persistenceError("delete", err)
	}
	s.invalidate(ctx, s.backend.KeysOf(deleted))
	return nil
}

// BatchGet 去重后并发读取，结果顺序与去重后的输入一致
// filter 为 nil 时不过滤；任一读取出错时返回第一个错误
func (s *CacheAsideStore[T, K]) BatchGet(ctx context.Context, keys []K, filter func(*T) bool) ([]Result[T], error) {
	distinct := Distinct(keys)
	if len(distinct) == 0 {
		return []Result[T]{}, nil
	}
	results := make([]Result[T], len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range distinct {
		g.Go(func() error {
			res, err := s.Get(gctx, key)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]Result[T], 0, len(results))
	for _, res := range results {
		if !res.Found() {
			continue
		}
		if filter != nil && !filter(res.Value) {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Invalidate 删除实体关联的缓存
func (s *CacheAsideStore[T, K]) Invalidate(ctx context.Context, entity *T) {
	if entity == nil {
		return
	}
	s.invalidate(ctx, s.backend.KeysOf(entity))
}

func (s *CacheAsideStore[T, K]) invalidate(ctx context.Context, keys []string) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	// 已提交的写入不因缓存失败回滚，旧值最多保留一个 TTL
	if err := s.cache.Del(ctx, keys...); err != nil {
		logger.Warnw("cache_aside_invalidate_failed", "store", s.name, "keys", keys, "error", err)
	}
}

func (s *CacheAsideStore[T, K]) resolveTTL(ctx context.Context) time.Duration {
	if s.ttlFunc != nil {
		if ttl := s.ttlFunc(ctx); ttl > 0 {
			return ttl
		}
	}
	return s.ttl
}

func (s *CacheAsideStore[T, K]) persistenceError(op string, err error) error {
	logger.Warnw("cache_aside_write_failed", "store", s.name, "op", op, "error", err)
	return fmt.Errorf("%w: %s %s failed: %v", apperr.ErrPersistence, s.name, op, err)
}

var (
	errNotFound         = errors.New("row not found")
	errRowCountMismatch = errors.New("affected row count mismatch")
)

func expectOneRow(affected int64) error {
	if affected != 1 {
		return fmt.Errorf("%w: want 1, got %d", errRowCountMismatch, affected)
	}
	return nil
}

// Distinct 按首次出现顺序去重
func Distinct[K comparable](keys []K) []K {
	seen := make(map[K]struct{}, len(keys))
	out := make([]K, 0, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
