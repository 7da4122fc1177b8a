package worker

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// TopicBatchStatus 批次状态迁移事件主题，处理函数签名为 func(StatusEvent)
const TopicBatchStatus event.EventType = "anchoring:batch_status"

// StatusEvent 批次状态迁移
type StatusEvent struct {
	CaseID    string
	BatchID   int64
	Root      common.Hash
	From      types.BatchStatus
	To        types.BatchStatus
	Attempts  uint
	TxHash    *common.Hash
	LastError *string
	At        int64 // 毫秒
}

func (w *Worker) publish(from types.BatchStatus, b *types.MerkleBatch) {
	if w.bus == nil || from == b.Status {
		return
	}
	w.bus.Publish(TopicBatchStatus, StatusEvent{
		CaseID:    b.CaseID,
		BatchID:   b.BatchID,
		Root:      b.MerkleRoot,
		From:      from,
		To:        b.Status,
		Attempts:  b.Attempts,
		TxHash:    b.TxHash,
		LastError: b.LastError,
		At:        w.clock.UnixMilli(),
	})
}
