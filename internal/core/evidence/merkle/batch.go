package merkle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	clockiface "github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// Builder 批次封存器
type Builder struct {
	clock clockiface.Clock
}

// NewBuilder 创建批次封存器，clk 为 nil 时使用系统时钟
func NewBuilder(clk clockiface.Clock) *Builder {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Builder{clock: clk}
}

// Seal 把案件的证据封存为默克尔批次
//
// 参数：
//   - caseID: 案件ID，所有证据必须属于该案件
//   - items: 有序证据列表，顺序决定叶子位置
//
// 返回：状态为 pending 的批次，包含根与每个叶子的证明
func (b *Builder) Seal(caseID string, items []types.EvidenceItem) (*types.MerkleBatch, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	hashes := make([]common.Hash, len(items))
	for i, item := range items {
		if item.CaseID != caseID {
			return nil, fmt.Errorf("%w: 第 %d 条属于 %q", ErrCaseMismatch, i, item.CaseID)
		}
		if item.Timestamp < 0 {
			return nil, fmt.Errorf("%w: 第 %d 条时间戳为负", ErrInvalidItem, i)
		}
		hashes[i] = LeafHash(item)
	}

	tree, err := Build(hashes)
	if err != nil {
		return nil, err
	}

	proofs := make(map[int][]types.ProofStep, len(items))
	for i := range items {
		p, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		proofs[i] = p
	}

	now := b.clock.UnixMilli()
	return &types.MerkleBatch{
		CaseID:        caseID,
		BatchID:       now,
		MerkleRoot:    tree.Root(),
		EvidenceItems: append([]types.EvidenceItem(nil), items...),
		Proofs:        proofs,
		Status:        types.BatchPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// VerifyItem 校验批次中第 i 条证据的证明
func VerifyItem(batch *types.MerkleBatch, i int) bool {
	if batch == nil || i < 0 || i >= len(batch.EvidenceItems) {
		return false
	}
	return Verify(LeafHash(batch.EvidenceItems[i]), batch.Proofs[i], batch.MerkleRoot)
}
