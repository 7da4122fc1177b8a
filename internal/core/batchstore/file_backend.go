package batchstore

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/file"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

const recordSuffix = ".json"

var _ Locker = (*FileBackend)(nil)

// FileBackend 每个案件一个 JSON 文件：<dir>/<hex(caseId)>.json
//
// 文件名使用 caseId 的十六进制编码，任意 caseId 都不会越出目录。
type FileBackend struct {
	files *file.Store
}

// NewFileBackend 创建文件后端
func NewFileBackend(dir string, logger log.Logger) (*FileBackend, error) {
	files, err := file.New(dir, logger)
	if err != nil {
		return nil, err
	}
	return &FileBackend{files: files}, nil
}

func recordName(caseID string) string {
	return hex.EncodeToString([]byte(caseID)) + recordSuffix
}

// Load 实现 Backend
func (b *FileBackend) Load(ctx context.Context, caseID string) ([]*types.MerkleBatch, error) {
	data, err := b.files.Load(ctx, recordName(caseID))
	if err != nil {
		if errors.Is(err, file.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return decodeRecord(caseID, data)
}

// Save 实现 Backend
func (b *FileBackend) Save(ctx context.Context, caseID string, batches []*types.MerkleBatch) error {
	data, err := encodeRecord(batches)
	if err != nil {
		return err
	}
	return b.files.WriteAtomic(ctx, recordName(caseID), data)
}

// Lock 实现 Locker，锁文件与记录文件同目录
func (b *FileBackend) Lock(ctx context.Context, caseID string) (func(), error) {
	return b.files.Lock(ctx, recordName(caseID))
}

// List 实现 Backend，忽略无法解码的文件名
func (b *FileBackend) List(ctx context.Context) ([]string, error) {
	names, err := b.files.ListFiles(ctx, "", recordSuffix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		raw, err := hex.DecodeString(strings.TrimSuffix(name, recordSuffix))
		if err != nil {
			continue
		}
		ids = append(ids, string(raw))
	}
	return ids, nil
}

// Close 实现 Backend
func (b *FileBackend) Close() error {
	return b.files.Close()
}
