package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"

	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/keystore"
)

var _ keystore.Resolver = (*RedisResolver)(nil)

// hashClient RedisResolver 用到的哈希表操作
type hashClient interface {
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	Close() error
}

// errFieldMissing hashClient 在字段不存在时返回
var errFieldMissing = errors.New("field missing")

// goRedisHash 基于 go-redis 的 hashClient
type goRedisHash struct {
	client *redis.Client
}

func (c *goRedisHash) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", errFieldMissing
	}
	return v, err
}

func (c *goRedisHash) HSet(ctx context.Context, key, field, value string) error {
	return c.client.HSet(ctx, key, field, value).Err()
}

func (c *goRedisHash) Close() error {
	return c.client.Close()
}

// RedisResolver 通过 HGET <key> <address> 解析公钥
type RedisResolver struct {
	client hashClient
	key    string
}

// NewRedisResolver 连接 Redis 并校验可用性
func NewRedisResolver(ctx context.Context, opts *keystoreconfig.KeystoreOptions) (*RedisResolver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", opts.RedisAddr, err)
	}
	return newRedisResolver(&goRedisHash{client: client}, opts.RedisKey), nil
}

func newRedisResolver(client hashClient, key string) *RedisResolver {
	return &RedisResolver{client: client, key: key}
}

// PublicKey 实现 keystore.Resolver
func (r *RedisResolver) PublicKey(ctx context.Context, addr common.Address) (*ecdsa.PublicKey, error) {
	hexKey, err := r.client.HGet(ctx, r.key, fieldFor(addr))
	if errors.Is(err, errFieldMissing) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, addr.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("查询 Redis 公钥失败: %w", err)
	}
	return decodeKey(addr, hexKey)
}

// Register 登记公钥
func (r *RedisResolver) Register(ctx context.Context, pub *ecdsa.PublicKey) (common.Address, error) {
	addr := addressOf(pub)
	if err := r.client.HSet(ctx, r.key, fieldFor(addr), EncodeKey(pub)); err != nil {
		return common.Address{}, fmt.Errorf("写入 Redis 公钥失败: %w", err)
	}
	return addr, nil
}

// Close 关闭连接
func (r *RedisResolver) Close() error {
	return r.client.Close()
}

func addressOf(pub *ecdsa.PublicKey) common.Address {
	return crypto.PubkeyToAddress(*pub)
}
