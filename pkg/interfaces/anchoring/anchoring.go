// Package anchoring 定义批次锚定流水线对外依赖的接口
package anchoring

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// RootAnchor 链上锚定合约协作方
//
// 只关心调用/返回形状，ABI 与 gas 细节由实现负责。
type RootAnchor interface {
	// SubmitRoot 提交默克尔根，返回交易哈希
	SubmitRoot(ctx context.Context, merkleRoot common.Hash) (common.Hash, error)

	// RootToBatchID 查询根对应的链上批次ID，0 表示尚未锚定
	RootToBatchID(ctx context.Context, merkleRoot common.Hash) (*big.Int, error)
}

// BatchStore 批次持久化存储
//
// 以 caseId 为键，每次写入都是整条记录替换。
type BatchStore interface {
	// Create 追加一个新封存的批次，返回分配了 batchId 的副本
	Create(ctx context.Context, batch *types.MerkleBatch) (*types.MerkleBatch, error)

	// Get 读取案件下全部批次（副本）
	Get(ctx context.Context, caseID string) ([]*types.MerkleBatch, error)

	// Update 整条替换指定批次；磁盘上已为 onchain_submitted 时拒绝
	Update(ctx context.Context, batch *types.MerkleBatch) error

	// CaseIDs 列出全部案件ID
	CaseIDs(ctx context.Context) ([]string, error)

	// Close 关闭存储
	Close() error
}
