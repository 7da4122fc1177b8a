package keystore

import (
	"context"
	"fmt"
	"io"

	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/keystore"
)

// Resolver 带关闭能力的解析器
type Resolver interface {
	keystore.Resolver
	io.Closer
}

type nopCloser struct{ keystore.Resolver }

func (nopCloser) Close() error { return nil }

type chainedCloser struct {
	*CachedResolver
	inner io.Closer
}

func (c chainedCloser) Close() error {
	err := c.CachedResolver.Close()
	if cerr := c.inner.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open 按配置创建解析器，cache_enabled 时套一层缓存
func Open(ctx context.Context, opts *keystoreconfig.KeystoreOptions) (Resolver, error) {
	var base Resolver
	switch opts.Backend {
	case keystoreconfig.BackendFile:
		base = nopCloser{NewFileResolver(opts.Path)}
	case keystoreconfig.BackendRedis:
		r, err := NewRedisResolver(ctx, opts)
		if err != nil {
			return nil, err
		}
		base = r
	default:
		return nil, fmt.Errorf("未知公钥解析后端: %q", opts.Backend)
	}

	if !opts.CacheEnabled {
		return base, nil
	}
	cached, err := NewCachedResolver(base, opts.CacheTTL())
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	return chainedCloser{CachedResolver: cached, inner: base}, nil
}
