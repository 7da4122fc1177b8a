// Package handlers 批次状态查询接口
//
// 只读：所有数据经批次存储的 actor 读取，可能略落后于工作器的最新写入。
package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weisyn/evidence-anchor/internal/api/http/middleware"
	apitypes "github.com/weisyn/evidence-anchor/internal/api/http/types"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/merkle"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// BatchReader 批次只读视图
type BatchReader interface {
	Get(ctx context.Context, caseID string) ([]*types.MerkleBatch, error)
	CaseIDs(ctx context.Context) ([]string, error)
}

// BatchHandler 批次查询处理器
type BatchHandler struct {
	store  BatchReader
	logger log.Logger
}

// NewBatchHandler 创建批次查询处理器
func NewBatchHandler(store BatchReader, logger log.Logger) *BatchHandler {
	return &BatchHandler{store: store, logger: logger}
}

// RegisterRoutes 注册路由
func (h *BatchHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/cases/:caseId/batches", h.ListCaseBatches)
	r.GET("/cases/:caseId/batches/:batchId", h.GetBatch)
	r.GET("/cases/:caseId/batches/:batchId/proofs/:index", h.GetProof)
	r.GET("/batches", h.ListBatches)
}

// ListCaseBatches GET /cases/:caseId/batches
func (h *BatchHandler) ListCaseBatches(c *gin.Context) {
	caseID := c.Param("caseId")
	batches, err := h.store.Get(c.Request.Context(), caseID)
	if err != nil {
		h.internalError(c, err)
		return
	}
	if len(batches) == 0 {
		writeError(c, http.StatusNotFound, apitypes.ErrCaseNotFound, "案件不存在或没有批次", gin.H{"caseId": caseID})
		return
	}
	out := make([]apitypes.BatchSummary, len(batches))
	for i, b := range batches {
		out[i] = apitypes.NewBatchSummary(b)
	}
	writeOK(c, out)
}

// GetBatch GET /cases/:caseId/batches/:batchId
func (h *BatchHandler) GetBatch(c *gin.Context) {
	b, ok := h.lookup(c)
	if !ok {
		return
	}
	writeOK(c, b)
}

// GetProof GET /cases/:caseId/batches/:batchId/proofs/:index
func (h *BatchHandler) GetProof(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		writeError(c, http.StatusBadRequest, apitypes.ErrInvalidArgument, "index 必须是非负整数", nil)
		return
	}
	b, ok := h.lookup(c)
	if !ok {
		return
	}
	proof, exists := b.Proofs[index]
	if !exists || index >= len(b.EvidenceItems) {
		writeError(c, http.StatusNotFound, apitypes.ErrProofNotFound, "证明不存在",
			gin.H{"index": index, "itemCount": len(b.EvidenceItems)})
		return
	}
	item := b.EvidenceItems[index]
	leaf := merkle.LeafHash(item)
	writeOK(c, apitypes.ProofResponse{
		CaseID:   b.CaseID,
		BatchID:  b.BatchID,
		Index:    index,
		Item:     item,
		LeafHash: leaf,
		Proof:    proof,
		Root:     b.MerkleRoot,
		Valid:    merkle.Verify(leaf, proof, b.MerkleRoot),
		Status:   b.Status,
		TxHash:   b.TxHash,
	})
}

// ListBatches GET /batches?status=&page=&pageSize=
func (h *BatchHandler) ListBatches(c *gin.Context) {
	var status types.BatchStatus
	if s := c.Query("status"); s != "" {
		status = types.BatchStatus(s)
		if !status.Valid() {
			writeError(c, http.StatusBadRequest, apitypes.ErrInvalidArgument, "未知批次状态", gin.H{"status": s})
			return
		}
	}
	var page apitypes.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		writeError(c, http.StatusBadRequest, apitypes.ErrInvalidArgument, "分页参数无效", err.Error())
		return
	}
	page.Normalize()

	ctx := c.Request.Context()
	caseIDs, err := h.store.CaseIDs(ctx)
	if err != nil {
		h.internalError(c, err)
		return
	}
	var all []apitypes.BatchSummary
	for _, id := range caseIDs {
		batches, err := h.store.Get(ctx, id)
		if err != nil {
			h.internalError(c, err)
			return
		}
		for _, b := range batches {
			if status == "" || b.Status == status {
				all = append(all, apitypes.NewBatchSummary(b))
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CaseID != all[j].CaseID {
			return all[i].CaseID < all[j].CaseID
		}
		return all[i].BatchID < all[j].BatchID
	})

	start, end := page.Window(len(all))
	resp := apitypes.NewPaginationResponse(all[start:end], page.Page, page.PageSize, int64(len(all)))
	c.JSON(http.StatusOK, resp)
}

func (h *BatchHandler) lookup(c *gin.Context) (*types.MerkleBatch, bool) {
	caseID := c.Param("caseId")
	batchID, err := strconv.ParseInt(c.Param("batchId"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, apitypes.ErrInvalidArgument, "batchId 必须是整数", nil)
		return nil, false
	}
	batches, err := h.store.Get(c.Request.Context(), caseID)
	if err != nil {
		h.internalError(c, err)
		return nil, false
	}
	b := batchstore.FindBatch(batches, batchID)
	if b == nil {
		writeError(c, http.StatusNotFound, apitypes.ErrBatchNotFound, "批次不存在",
			gin.H{"caseId": caseID, "batchId": batchID})
		return nil, false
	}
	return b, true
}

func (h *BatchHandler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	if errors.Is(err, batchstore.ErrStoreClosed) {
		writeError(c, http.StatusServiceUnavailable, apitypes.ErrServiceUnavailable, "批次存储不可用", nil)
		return
	}
	if h.logger != nil {
		h.logger.Errorf("查询批次失败: %v", err)
	}
	writeError(c, http.StatusInternalServerError, apitypes.ErrInternal, "服务器内部错误", nil)
}

func writeOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, apitypes.NewSuccessResponse(data).WithRequestID(middleware.GetRequestID(c)))
}

func writeError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status,
		apitypes.NewErrorResponse(code, message, details).WithRequestID(middleware.GetRequestID(c)))
}
