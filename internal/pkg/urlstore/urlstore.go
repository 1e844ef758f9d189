package urlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	seenKeyPrefix = "founderhunter:frontier:seen:"
	overflowKey   = "founderhunter:frontier:overflow"
)

// ErrEmpty 表示 overflow 列表为空。
var ErrEmpty = errors.New("urlstore: overflow list is empty")

// Store 提供跨运行的 URL 去重与 overflow 暂存（基于 Redis）。
//
// Store 为 nil 时所有方法都是安全的空操作，调用方无需判空。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// New 创建一个新的 Store。ttl 控制 seen 标记的保留时间，<=0 时默认 7 天。
func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// MarkSeen 标记一个 URL 已被处理过，返回是否首次出现。
func (s *Store) MarkSeen(ctx context.Context, url string) (bool, error) {
	if s == nil || s.rdb == nil || url == "" {
		return true, nil
	}
	key := seenKeyPrefix + hashURL(url)
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("urlstore setnx: %w", err)
	}
	return ok, nil
}

// PushOverflow 将超出本次 target 的 URL 暂存，供下次运行优先消费。
func (s *Store) PushOverflow(ctx context.Context, urls []string) error {
	if s == nil || s.rdb == nil || len(urls) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(urls))
	for _, u := range urls {
		values = append(values, u)
	}
	if err := s.rdb.RPush(ctx, overflowKey, values...).Err(); err != nil {
		return fmt.Errorf("urlstore rpush: %w", err)
	}
	return nil
}

// PopOverflow 取出一个暂存的 URL，列表为空时返回 ErrEmpty。
func (s *Store) PopOverflow(ctx context.Context) (string, error) {
	if s == nil || s.rdb == nil {
		return "", ErrEmpty
	}
	val, err := s.rdb.LPop(ctx, overflowKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrEmpty
	}
	if err != nil {
		return "", fmt.Errorf("urlstore lpop: %w", err)
	}
	return val, nil
}

// OverflowLen 返回当前暂存的 URL 数量。
func (s *Store) OverflowLen(ctx context.Context) (int64, error) {
	if s == nil || s.rdb == nil {
		return 0, nil
	}
	n, err := s.rdb.LLen(ctx, overflowKey).Result()
	if err != nil {
		return 0, fmt.Errorf("urlstore llen: %w", err)
	}
	return n, nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
