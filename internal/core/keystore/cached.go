package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/keystore"
)

var _ keystore.Resolver = (*CachedResolver)(nil)

// CachedResolver 在任意解析器前加一层 bigcache
//
// 缓存的是 65 字节未压缩公钥，命中时同样重新校验地址。未找到的结果不缓存。
type CachedResolver struct {
	next  keystore.Resolver
	cache *bigcache.BigCache
}

// NewCachedResolver 创建带缓存的解析器
func NewCachedResolver(next keystore.Resolver, ttl time.Duration) (*CachedResolver, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 128
	cfg.CleanWindow = ttl
	cfg.Verbose = false
	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("创建公钥缓存失败: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

// PublicKey 实现 keystore.Resolver
func (r *CachedResolver) PublicKey(ctx context.Context, addr common.Address) (*ecdsa.PublicKey, error) {
	field := fieldFor(addr)
	if raw, err := r.cache.Get(field); err == nil {
		if pub, err := crypto.UnmarshalPubkey(raw); err == nil && crypto.PubkeyToAddress(*pub) == addr {
			return pub, nil
		}
		_ = r.cache.Delete(field)
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, fmt.Errorf("读取公钥缓存失败: %w", err)
	}

	pub, err := r.next.PublicKey(ctx, addr)
	if err != nil {
		return nil, err
	}
	if crypto.PubkeyToAddress(*pub) != addr {
		return nil, fmt.Errorf("%w: %s", ErrKeyMismatch, addr.Hex())
	}
	_ = r.cache.Set(field, crypto.FromECDSAPub(pub))
	return pub, nil
}

// Invalidate 清除单个地址的缓存
func (r *CachedResolver) Invalidate(addr common.Address) {
	_ = r.cache.Delete(fieldFor(addr))
}

// Stats 缓存命中统计
func (r *CachedResolver) Stats() bigcache.Stats {
	return r.cache.Stats()
}

// Close 关闭缓存
func (r *CachedResolver) Close() error {
	return r.cache.Close()
}
