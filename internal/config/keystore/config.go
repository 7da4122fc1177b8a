package keystore

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// KeystoreOptions 接收方公钥解析配置选项
type KeystoreOptions struct {
	Backend       string `json:"backend"`
	Path          string `json:"path"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	RedisKey      string `json:"redis_key"`
	CacheEnabled  bool   `json:"cache_enabled"`
	CacheTTLSec   int    `json:"cache_ttl_s"`
}

// Config 公钥解析配置实现
type Config struct {
	options *KeystoreOptions
}

// New 创建公钥解析配置，path 未设置时使用 {dataDir}/recipient_pubkeys.json
func New(dataDir string, userConfig *types.UserKeystoreConfig) *Config {
	options := &KeystoreOptions{
		Backend:      defaultBackend,
		Path:         filepath.Join(dataDir, defaultFileName),
		RedisAddr:    defaultRedisAddr,
		RedisDB:      defaultRedisDB,
		RedisKey:     defaultRedisKey,
		CacheEnabled: defaultCacheEnabled,
		CacheTTLSec:  defaultCacheTTLSec,
	}
	if u := userConfig; u != nil {
		if u.Backend != nil {
			options.Backend = *u.Backend
		}
		if u.Path != nil {
			options.Path = *u.Path
		}
		if u.RedisAddr != nil {
			options.RedisAddr = *u.RedisAddr
		}
		if u.RedisPassword != nil {
			options.RedisPassword = *u.RedisPassword
		}
		if u.RedisDB != nil {
			options.RedisDB = *u.RedisDB
		}
		if u.RedisKey != nil {
			options.RedisKey = *u.RedisKey
		}
		if u.CacheEnabled != nil {
			options.CacheEnabled = *u.CacheEnabled
		}
		if u.CacheTTLSec != nil {
			options.CacheTTLSec = *u.CacheTTLSec
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *KeystoreOptions {
	return c.options
}

// CacheTTL 缓存有效期
func (o *KeystoreOptions) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLSec) * time.Second
}

// Validate 校验公钥解析配置
func (o *KeystoreOptions) Validate() error {
	switch o.Backend {
	case BackendFile:
		if o.Path == "" {
			return fmt.Errorf("file 后端需要 path")
		}
	case BackendRedis:
		if o.RedisAddr == "" || o.RedisKey == "" {
			return fmt.Errorf("redis 后端需要 redis_addr 与 redis_key")
		}
	default:
		return fmt.Errorf("未知公钥解析后端: %q", o.Backend)
	}
	if o.CacheEnabled && o.CacheTTLSec <= 0 {
		return fmt.Errorf("cache_ttl_s 必须大于0: %d", o.CacheTTLSec)
	}
	return nil
}
