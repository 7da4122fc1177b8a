package batchstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// Backend 批次记录的持久化后端
//
// 每个案件对应一条记录（批次数组），Save 整条替换。
// 同一 Store 内后端只被 actor 协程访问；跨进程互斥由 Locker 提供。
type Backend interface {
	// Load 读取案件记录，不存在时返回 nil, nil
	Load(ctx context.Context, caseID string) ([]*types.MerkleBatch, error)

	// Save 整条替换案件记录，返回前数据已落盘
	Save(ctx context.Context, caseID string, batches []*types.MerkleBatch) error

	// List 列出全部案件ID
	List(ctx context.Context) ([]string, error)

	// Close 释放底层资源
	Close() error
}

// Locker 可选接口：后端支持跨进程的案件级排他锁
type Locker interface {
	// Lock 阻塞直到获得锁或 ctx 取消，返回的函数释放锁
	Lock(ctx context.Context, caseID string) (func(), error)
}

func encodeRecord(batches []*types.MerkleBatch) ([]byte, error) {
	if batches == nil {
		batches = []*types.MerkleBatch{}
	}
	data, err := json.MarshalIndent(batches, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("编码批次记录失败: %w", err)
	}
	return data, nil
}

func decodeRecord(caseID string, data []byte) ([]*types.MerkleBatch, error) {
	var batches []*types.MerkleBatch
	if err := json.Unmarshal(data, &batches); err != nil {
		return nil, fmt.Errorf("解析案件 %s 的批次记录失败: %w", caseID, err)
	}
	return batches, nil
}
