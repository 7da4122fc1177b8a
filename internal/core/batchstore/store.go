// Package batchstore 提供批次记录的持久化存储
//
// 单个 actor 协程独占后端，所有读写都以消息形式串行执行，
// 锚定重试工作器与 HTTP 查询共享同一条写入路径。
// 每次操作都从后端重新读取记录；后端支持 Locker 时，
// 读改写期间持有案件锁，CLI 与守护进程可共用同一目录。
package batchstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	clockimpl "github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

var (
	// ErrAlreadyFinalized 磁盘上的批次已是 onchain_submitted，拒绝覆盖
	ErrAlreadyFinalized = errors.New("批次已上链，不可修改")
	// ErrBatchNotFound 案件下不存在该批次
	ErrBatchNotFound = errors.New("批次不存在")
	// ErrStoreClosed 存储已关闭
	ErrStoreClosed = errors.New("批次存储已关闭")
	// ErrInvalidBatch 批次缺少必需字段
	ErrInvalidBatch = errors.New("无效批次")
)

var _ anchoring.BatchStore = (*Store)(nil)

// Option 存储选项
type Option func(*Store)

// WithClock 注入时钟（updatedAt 使用）
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger 注入日志记录器
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store 基于 actor 的批次存储
type Store struct {
	backend Backend
	clock   clock.Clock
	logger  log.Logger

	reqs      chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New 创建存储并启动 actor 协程
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		reqs:    make(chan func()),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = clockimpl.NewSystemClock()
	}
	s.logger = logpkg.OrNop(s.logger)

	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.reqs:
			fn()
		case <-s.quit:
			return
		}
	}
}

// call 把 fn 交给 actor 执行并等待结果
//
// 调用方 ctx 取消时立即返回 ctx.Err()；已被 actor 接收的操作仍会执行完毕。
func call[T any](ctx context.Context, s *Store, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		val T
		err error
	}
	reply := make(chan result, 1)
	op := func() {
		v, err := fn()
		reply <- result{v, err}
	}

	select {
	case s.reqs <- op:
	case <-s.quit:
		return zero, ErrStoreClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// load 从后端读取案件记录（actor 内调用）
func (s *Store) load(ctx context.Context, caseID string) ([]*types.MerkleBatch, error) {
	return s.backend.Load(ctx, caseID)
}

// save 整条写回案件记录（actor 内调用）
func (s *Store) save(ctx context.Context, caseID string, batches []*types.MerkleBatch) error {
	if err := s.backend.Save(ctx, caseID, batches); err != nil {
		return fmt.Errorf("写入案件 %s 失败: %w", caseID, err)
	}
	return nil
}

// lock 获取案件锁（actor 内调用），后端不支持时返回空操作
func (s *Store) lock(ctx context.Context, caseID string) (func(), error) {
	l, ok := s.backend.(Locker)
	if !ok {
		return func() {}, nil
	}
	unlock, err := l.Lock(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("锁定案件 %s 失败: %w", caseID, err)
	}
	return unlock, nil
}

// Create 追加新封存的批次
//
// 同一案件内 batchId 冲突时递增直到唯一；状态重置为 pending、attempts 为 0。
func (s *Store) Create(ctx context.Context, batch *types.MerkleBatch) (*types.MerkleBatch, error) {
	if batch == nil || batch.CaseID == "" {
		return nil, fmt.Errorf("%w: 缺少案件ID", ErrInvalidBatch)
	}
	record := batch.Clone()

	return call(ctx, s, func() (*types.MerkleBatch, error) {
		unlock, err := s.lock(ctx, record.CaseID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		existing, err := s.load(ctx, record.CaseID)
		if err != nil {
			return nil, err
		}

		used := make(map[int64]struct{}, len(existing))
		for _, b := range existing {
			used[b.BatchID] = struct{}{}
		}
		for {
			if _, taken := used[record.BatchID]; !taken {
				break
			}
			record.BatchID++
		}

		now := s.clock.UnixMilli()
		record.Status = types.BatchPending
		record.Attempts = 0
		record.LastError = nil
		record.TxHash = nil
		record.NextAttemptAt = 0
		if record.CreatedAt == 0 {
			record.CreatedAt = now
		}
		record.UpdatedAt = now

		next := append(append([]*types.MerkleBatch(nil), existing...), record)
		if err := s.save(ctx, record.CaseID, next); err != nil {
			return nil, err
		}
		s.logger.Infof("批次已创建: case=%s batchId=%d leaves=%d root=%s",
			record.CaseID, record.BatchID, len(record.EvidenceItems), record.MerkleRoot.Hex())
		return record.Clone(), nil
	})
}

// Get 读取案件下全部批次的副本，案件不存在时返回空切片
func (s *Store) Get(ctx context.Context, caseID string) ([]*types.MerkleBatch, error) {
	return call(ctx, s, func() ([]*types.MerkleBatch, error) {
		batches, err := s.load(ctx, caseID)
		if err != nil {
			return nil, err
		}
		out := make([]*types.MerkleBatch, len(batches))
		for i, b := range batches {
			out[i] = b.Clone()
		}
		return out, nil
	})
}

// Update 整条替换指定批次
//
// 磁盘上的批次为 onchain_submitted 时返回 ErrAlreadyFinalized，
// 找不到批次时返回 ErrBatchNotFound。
func (s *Store) Update(ctx context.Context, batch *types.MerkleBatch) error {
	if batch == nil || batch.CaseID == "" {
		return fmt.Errorf("%w: 缺少案件ID", ErrInvalidBatch)
	}
	if !batch.Status.Valid() {
		return fmt.Errorf("%w: 未知状态 %q", ErrInvalidBatch, batch.Status)
	}
	record := batch.Clone()

	_, err := call(ctx, s, func() (struct{}, error) {
		unlock, err := s.lock(ctx, record.CaseID)
		if err != nil {
			return struct{}{}, err
		}
		defer unlock()

		existing, err := s.load(ctx, record.CaseID)
		if err != nil {
			return struct{}{}, err
		}

		idx := -1
		for i, b := range existing {
			if b.BatchID == record.BatchID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return struct{}{}, fmt.Errorf("%w: case=%s batchId=%d", ErrBatchNotFound, record.CaseID, record.BatchID)
		}
		if existing[idx].Status == types.BatchOnchainSubmitted {
			return struct{}{}, fmt.Errorf("%w: case=%s batchId=%d", ErrAlreadyFinalized, record.CaseID, record.BatchID)
		}

		record.UpdatedAt = s.clock.UnixMilli()
		next := append([]*types.MerkleBatch(nil), existing...)
		next[idx] = record
		return struct{}{}, s.save(ctx, record.CaseID, next)
	})
	return err
}

// CaseIDs 列出全部案件ID（排序）
func (s *Store) CaseIDs(ctx context.Context) ([]string, error) {
	return call(ctx, s, func() ([]string, error) {
		ids, err := s.backend.List(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(ids)
		return ids, nil
	})
}

// Close 停止 actor 并关闭后端，重复调用返回首次结果
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
		s.closeErr = s.backend.Close()
	})
	return s.closeErr
}

// FindBatch 在批次列表中按 batchId 查找
func FindBatch(batches []*types.MerkleBatch, batchID int64) *types.MerkleBatch {
	for _, b := range batches {
		if b.BatchID == batchID {
			return b
		}
	}
	return nil
}
