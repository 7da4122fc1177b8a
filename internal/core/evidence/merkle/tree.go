// Package merkle 把证据摘要组织为二叉默克尔树，生成根与逐叶证明
//
// 叶子与内部节点使用不同的域分隔前缀，防止叶子/节点混淆的第二原像攻击。
// 某一层节点数为奇数时，最后一个节点原样提升到上一层（不复制），构建与验证使用同一规则。
package merkle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// 域分隔前缀
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// 错误定义
var (
	ErrEmptyBatch   = errors.New("批次不能为空")
	ErrIndexRange   = errors.New("叶子索引越界")
	ErrInvalidItem  = errors.New("无效的证据条目")
	ErrCaseMismatch = errors.New("证据不属于该案件")
)

// LeafHash 计算证据叶子哈希
//
// keccak256(0x00 ‖ contentDigest ‖ cidHash ‖ uploader ‖ uint256(timestamp))，
// cidHash 为空时以32个零字节占位。
func LeafHash(item types.EvidenceItem) common.Hash {
	var cidHash common.Hash
	if item.CIDHash != nil {
		cidHash = *item.CIDHash
	}
	var ts [32]byte
	binary.BigEndian.PutUint64(ts[24:], uint64(item.Timestamp))

	return canonical.Keccak256(
		[]byte{leafPrefix},
		item.ContentDigest.Bytes(),
		cidHash.Bytes(),
		item.Uploader.Bytes(),
		ts[:],
	)
}

// combineHashes 计算内部节点哈希 keccak256(0x01 ‖ left ‖ right)
func combineHashes(left, right common.Hash) common.Hash {
	return canonical.Keccak256([]byte{nodePrefix}, left.Bytes(), right.Bytes())
}

// Tree 默克尔树，保存每一层便于生成证明
type Tree struct {
	levels [][]common.Hash // levels[0] 为叶子层，最后一层只有根
}

// Build 自底向上构建默克尔树
func Build(leaves []common.Hash) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyBatch
	}

	level := append([]common.Hash(nil), leaves...)
	levels := [][]common.Hash{level}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, combineHashes(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			// 奇数节点原样提升
			next = append(next, level[len(level)-1])
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{levels: levels}, nil
}

// Root 返回根哈希
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafCount 返回叶子数
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Leaf 返回第 i 个叶子
func (t *Tree) Leaf(i int) common.Hash {
	return t.levels[0][i]
}

// Proof 生成第 i 个叶子到根的兄弟节点路径
//
// 节点在某层被原样提升时该层没有兄弟，不产生证明步骤。
func (t *Tree) Proof(i int) ([]types.ProofStep, error) {
	if i < 0 || i >= t.LeafCount() {
		return nil, fmt.Errorf("%w: %d", ErrIndexRange, i)
	}

	var proof []types.ProofStep
	idx := i
	for _, level := range t.levels[:len(t.levels)-1] {
		switch {
		case idx%2 == 1:
			proof = append(proof, types.ProofStep{Hash: level[idx-1], Side: types.SideLeft})
		case idx+1 < len(level):
			proof = append(proof, types.ProofStep{Hash: level[idx+1], Side: types.SideRight})
		}
		idx /= 2
	}
	return proof, nil
}
