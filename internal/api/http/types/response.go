package types

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// SuccessResponse 统一成功响应格式
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	RequestID string      `json:"requestId,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *SuccessResponse {
	return &SuccessResponse{Data: data}
}

// WithRequestID 添加请求ID
func (r *SuccessResponse) WithRequestID(requestID string) *SuccessResponse {
	r.RequestID = requestID
	return r
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string            `json:"status"` // healthy, unhealthy
	Version    string            `json:"version"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components"`
}

// BatchSummary 批次摘要（不含证明）
type BatchSummary struct {
	CaseID        string            `json:"caseId"`
	BatchID       int64             `json:"batchId"`
	MerkleRoot    common.Hash       `json:"merkleRoot"`
	ItemCount     int               `json:"itemCount"`
	Status        types.BatchStatus `json:"status"`
	Attempts      uint              `json:"attempts"`
	LastError     *string           `json:"lastError"`
	TxHash        *common.Hash      `json:"txHash"`
	NextAttemptAt int64             `json:"nextAttemptAt,omitempty"`
	UpdatedAt     int64             `json:"updatedAt,omitempty"`
}

// NewBatchSummary 从批次构造摘要
func NewBatchSummary(b *types.MerkleBatch) BatchSummary {
	return BatchSummary{
		CaseID:        b.CaseID,
		BatchID:       b.BatchID,
		MerkleRoot:    b.MerkleRoot,
		ItemCount:     len(b.EvidenceItems),
		Status:        b.Status,
		Attempts:      b.Attempts,
		LastError:     b.LastError,
		TxHash:        b.TxHash,
		NextAttemptAt: b.NextAttemptAt,
		UpdatedAt:     b.UpdatedAt,
	}
}

// ProofResponse 单条证据的默克尔证明
type ProofResponse struct {
	CaseID   string             `json:"caseId"`
	BatchID  int64              `json:"batchId"`
	Index    int                `json:"index"`
	Item     types.EvidenceItem `json:"item"`
	LeafHash common.Hash        `json:"leafHash"`
	Proof    []types.ProofStep  `json:"proof"`
	Root     common.Hash        `json:"merkleRoot"`
	Valid    bool               `json:"valid"` // 本地重新计算的验证结果
	Status   types.BatchStatus  `json:"status"`
	TxHash   *common.Hash       `json:"txHash"`
}
