package merkle

import (
	"crypto/subtle"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// Verify 沿证明路径重新计算根并与 root 比较
//
// 纯函数；未知的 side 标签直接判定失败。
func Verify(leaf common.Hash, proof []types.ProofStep, root common.Hash) bool {
	current := leaf
	for _, step := range proof {
		switch step.Side {
		case types.SideLeft:
			current = combineHashes(step.Hash, current)
		case types.SideRight:
			current = combineHashes(current, step.Hash)
		default:
			return false
		}
	}
	// 常量时间比较
	return subtle.ConstantTimeCompare(current.Bytes(), root.Bytes()) == 1
}
