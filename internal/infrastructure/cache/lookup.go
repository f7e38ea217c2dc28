package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LookupCache 进程内只读查询缓存
//
// 容量满时淘汰最久未用的条目，条目超过 TTL 自动失效。
// 每个实例只归一个组件所有，写操作后由该组件调用 Invalidate。
type LookupCache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

func NewLookupCache[K comparable, V any](size int, ttl time.Duration) *LookupCache[K, V] {
	if size <= 0 {
		size = 128
	}
	return &LookupCache[K, V]{
		lru: expirable.NewLRU[K, V](size, nil, ttl),
	}
}

// GetOrLoad 命中直接返回，否则调用 load 并缓存结果（load 出错不缓存）
func (c *LookupCache[K, V]) GetOrLoad(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}
	c.lru.Add(key, v)
	return v, nil
}

func (c *LookupCache[K, V]) Invalidate(key K) {
	c.lru.Remove(key)
}

func (c *LookupCache[K, V]) InvalidateAll() {
	c.lru.Purge()
}

func (c *LookupCache[K, V]) Len() int {
	return c.lru.Len()
}
