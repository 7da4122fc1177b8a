// Package blob 提供本地内容寻址的密文存储
//
// 数据以 CIDv1（raw + sha2-256，base32）命名，写入后不可修改。
// 作为 IPFS 的本地替身，供信封发布与徽章校验使用。
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/cidnorm"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/file"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

var (
	// ErrNotFound CID 对应的数据不存在
	ErrNotFound = errors.New("数据不存在")
	// ErrImmutable 同一 CID 下已存在不同内容
	ErrImmutable = errors.New("已存在的数据不可修改")
)

// Store 内容寻址存储
type Store struct {
	files  *file.Store
	logger log.Logger
}

// Open 在 dir 下打开存储，目录不存在时创建
func Open(dir string, logger log.Logger) (*Store, error) {
	fs, err := file.New(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("打开密文存储失败: %w", err)
	}
	return &Store{files: fs, logger: logger}, nil
}

// Put 写入数据并返回其 CID，重复写入相同内容是幂等的
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	id := cidnorm.ForBytes(data)
	err := s.files.WriteExclusive(ctx, id, data)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, file.ErrExist) {
		return "", err
	}

	existing, err := s.files.Load(ctx, id)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(existing, data) {
		return "", fmt.Errorf("%w: %s", ErrImmutable, id)
	}
	return id, nil
}

// Get 按 CID 读取数据，接受任何可规范化的 CID 写法
func (s *Store) Get(ctx context.Context, rawCID string) ([]byte, error) {
	id, ok := cidnorm.Normalize(rawCID)
	if !ok {
		return nil, fmt.Errorf("%w: 空CID", ErrNotFound)
	}
	data, err := s.files.Load(ctx, id)
	if err != nil {
		if errors.Is(err, file.ErrNotExist) || errors.Is(err, file.ErrInvalidPath) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return data, nil
}

// Has 判断 CID 是否存在
func (s *Store) Has(ctx context.Context, rawCID string) (bool, error) {
	id, ok := cidnorm.Normalize(rawCID)
	if !ok {
		return false, nil
	}
	exists, err := s.files.Exists(ctx, id)
	if errors.Is(err, file.ErrInvalidPath) {
		return false, nil
	}
	return exists, err
}

// Close 关闭存储
func (s *Store) Close() error {
	return s.files.Close()
}
