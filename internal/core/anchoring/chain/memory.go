// Package chain 提供链上锚定合约的协作方实现
//
// EVMAnchor 通过 JSON-RPC 调用部署好的锚定合约，MemoryAnchor 为开发模式与测试
// 提供进程内注册表。两者都实现 anchoring.RootAnchor。
package chain

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
)

var _ anchoring.RootAnchor = (*MemoryAnchor)(nil)

// MemoryAnchor 进程内锚定注册表
//
// 每个新根分配自增的链上批次ID，重复提交同一根返回已有的交易哈希。
type MemoryAnchor struct {
	mu       sync.Mutex
	roots    map[common.Hash]*big.Int
	txs      map[common.Hash]common.Hash
	nextID   int64
	failN    int
	failErr  error
	onSubmit func(ctx context.Context, root common.Hash)

	submitCalls int
	queryCalls  int
}

// NewMemoryAnchor 创建空注册表
func NewMemoryAnchor() *MemoryAnchor {
	return &MemoryAnchor{
		roots:  make(map[common.Hash]*big.Int),
		txs:    make(map[common.Hash]common.Hash),
		nextID: 1,
	}
}

// FailNext 让接下来 n 次 SubmitRoot 返回 err
func (m *MemoryAnchor) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

// OnSubmit 设置提交前回调，回调在锁外执行，可用于模拟慢链
func (m *MemoryAnchor) OnSubmit(fn func(ctx context.Context, root common.Hash)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSubmit = fn
}

// Preanchor 直接登记一个根，模拟其他进程已完成锚定
func (m *MemoryAnchor) Preanchor(root common.Hash) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(root)
}

// SubmitRoot 登记默克尔根
func (m *MemoryAnchor) SubmitRoot(ctx context.Context, root common.Hash) (common.Hash, error) {
	m.mu.Lock()
	m.submitCalls++
	hook := m.onSubmit
	m.mu.Unlock()

	if hook != nil {
		hook(ctx, root)
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN > 0 {
		m.failN--
		return common.Hash{}, m.failErr
	}
	if tx, ok := m.txs[root]; ok {
		return tx, nil
	}
	m.register(root)
	return m.txs[root], nil
}

// RootToBatchID 查询根对应的批次ID，未登记返回 0
func (m *MemoryAnchor) RootToBatchID(ctx context.Context, root common.Hash) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	if id, ok := m.roots[root]; ok {
		return new(big.Int).Set(id), nil
	}
	return new(big.Int), nil
}

// SubmitCalls SubmitRoot 被调用的次数（含失败）
func (m *MemoryAnchor) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// QueryCalls RootToBatchID 被调用的次数
func (m *MemoryAnchor) QueryCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryCalls
}

// Anchored 已登记根的数量
func (m *MemoryAnchor) Anchored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.roots)
}

// register 需持有锁
func (m *MemoryAnchor) register(root common.Hash) *big.Int {
	if id, ok := m.roots[root]; ok {
		return new(big.Int).Set(id)
	}
	id := big.NewInt(m.nextID)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(m.nextID))
	m.nextID++
	m.roots[root] = id
	m.txs[root] = crypto.Keccak256Hash(root.Bytes(), seq[:])
	return new(big.Int).Set(id)
}
