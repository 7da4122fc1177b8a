// Package types 定义证据锚定系统共享的数据模型
package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// EvidenceItem 单条证据记录
//
// 创建后不可变，身份由 ContentDigest 决定（内容寻址）。
// CIDHash 为空表示证据未关联任何密文存储位置。
type EvidenceItem struct {
	CaseID        string         `json:"caseId"`        // 案件ID
	ContentDigest common.Hash    `json:"contentDigest"` // keccak256(canonicalize(content))
	CIDHash       *common.Hash   `json:"cidHash"`       // keccak256(normalizeCid(cid))，可为 null
	Uploader      common.Address `json:"uploader"`      // 上传者地址
	Timestamp     int64          `json:"timestamp"`     // 毫秒时间戳
}

// SameAs 判断两条证据的全部字段是否一致
func (e EvidenceItem) SameAs(o EvidenceItem) bool {
	if e.CaseID != o.CaseID || e.ContentDigest != o.ContentDigest ||
		e.Uploader != o.Uploader || e.Timestamp != o.Timestamp {
		return false
	}
	switch {
	case e.CIDHash == nil && o.CIDHash == nil:
		return true
	case e.CIDHash == nil || o.CIDHash == nil:
		return false
	default:
		return *e.CIDHash == *o.CIDHash
	}
}

// BatchStatus 批次锚定状态
type BatchStatus string

const (
	BatchPending          BatchStatus = "pending"           // 等待提交
	BatchSubmitting       BatchStatus = "submitting"        // 提交中
	BatchOnchainSubmitted BatchStatus = "onchain_submitted" // 已上链（终态）
	BatchFailedPermanent  BatchStatus = "failed_permanent"  // 永久失败（终态，需人工处理）
)

// IsTerminal 是否为终态
func (s BatchStatus) IsTerminal() bool {
	return s == BatchOnchainSubmitted || s == BatchFailedPermanent
}

// Valid 是否为已知状态
func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchSubmitting, BatchOnchainSubmitted, BatchFailedPermanent:
		return true
	}
	return false
}

// ProofSide 证明路径中兄弟节点所在的一侧
type ProofSide string

const (
	SideLeft  ProofSide = "left"
	SideRight ProofSide = "right"
)

// ProofStep 默克尔证明路径中的一步
type ProofStep struct {
	Hash common.Hash `json:"hash"`
	Side ProofSide   `json:"side"`
}

// MerkleBatch 已封存的证据批次
//
// 由批次存储独占持有，只有锚定重试工作器会修改其状态字段。
type MerkleBatch struct {
	CaseID        string              `json:"caseId"`
	BatchID       int64               `json:"batchId"` // 毫秒时间戳，案件内唯一
	MerkleRoot    common.Hash         `json:"merkleRoot"`
	EvidenceItems []EvidenceItem      `json:"evidenceItems"`
	Proofs        map[int][]ProofStep `json:"proofs"`
	Status        BatchStatus         `json:"status"`
	Attempts      uint                `json:"attempts"`
	LastError     *string             `json:"lastError"`
	TxHash        *common.Hash        `json:"txHash"`

	NextAttemptAt int64 `json:"nextAttemptAt,omitempty"` // 下一次允许提交的毫秒时间戳
	CreatedAt     int64 `json:"createdAt,omitempty"`
	UpdatedAt     int64 `json:"updatedAt,omitempty"`
}

// Clone 深拷贝批次，避免调用方持有存储内部状态
func (b *MerkleBatch) Clone() *MerkleBatch {
	if b == nil {
		return nil
	}
	c := *b
	if b.EvidenceItems != nil {
		c.EvidenceItems = make([]EvidenceItem, len(b.EvidenceItems))
		for i, item := range b.EvidenceItems {
			c.EvidenceItems[i] = item
			if item.CIDHash != nil {
				h := *item.CIDHash
				c.EvidenceItems[i].CIDHash = &h
			}
		}
	}
	if b.Proofs != nil {
		c.Proofs = make(map[int][]ProofStep, len(b.Proofs))
		for k, v := range b.Proofs {
			c.Proofs[k] = append([]ProofStep(nil), v...)
		}
	}
	if b.LastError != nil {
		s := *b.LastError
		c.LastError = &s
	}
	if b.TxHash != nil {
		h := *b.TxHash
		c.TxHash = &h
	}
	return &c
}

// SetError 记录最近一次错误，nil 清空
func (b *MerkleBatch) SetError(err error) {
	if err == nil {
		b.LastError = nil
		return
	}
	msg := err.Error()
	b.LastError = &msg
}
