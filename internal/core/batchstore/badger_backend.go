package batchstore

import (
	"bytes"
	"context"

	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

var keyPrefix = []byte("batches/")

// BadgerBackend 键 batches/<caseId> → 批次数组 JSON，单事务整条替换
type BadgerBackend struct {
	db *badger.Store
}

// NewBadgerBackend 打开 BadgerDB 后端
func NewBadgerBackend(opts badger.Options, logger log.Logger) (*BadgerBackend, error) {
	db, err := badger.Open(opts, logger)
	if err != nil {
		return nil, err
	}
	return &BadgerBackend{db: db}, nil
}

func recordKey(caseID string) []byte {
	return append(append([]byte(nil), keyPrefix...), caseID...)
}

// Load 实现 Backend
func (b *BadgerBackend) Load(ctx context.Context, caseID string) ([]*types.MerkleBatch, error) {
	data, err := b.db.Get(ctx, recordKey(caseID))
	if err != nil || data == nil {
		return nil, err
	}
	return decodeRecord(caseID, data)
}

// Save 实现 Backend
func (b *BadgerBackend) Save(ctx context.Context, caseID string, batches []*types.MerkleBatch) error {
	data, err := encodeRecord(batches)
	if err != nil {
		return err
	}
	return b.db.Set(ctx, recordKey(caseID), data)
}

// List 实现 Backend
func (b *BadgerBackend) List(ctx context.Context) ([]string, error) {
	keys, err := b.db.PrefixKeys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, string(bytes.TrimPrefix(k, keyPrefix)))
	}
	return ids, nil
}

// Close 实现 Backend
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
