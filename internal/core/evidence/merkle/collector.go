package merkle

import (
	"context"
	"fmt"
	"sync"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// DefaultMaxBatchSize 开放证据集达到该数量时自动封存
const DefaultMaxBatchSize = 256

// Sink 接收封存后的批次（通常是批次存储的 Create）
type Sink func(ctx context.Context, batch *types.MerkleBatch) (*types.MerkleBatch, error)

// Collector 按案件收集开放证据集
//
// 完全相同的证据重复提交会被忽略。封存结果交给 Sink 持久化失败时，
// 证据保留在开放集中，下次封存时重试。
type Collector struct {
	mu           sync.Mutex
	builder      *Builder
	sink         Sink
	maxBatchSize int
	open         map[string][]types.EvidenceItem
	logger       log.Logger
}

// NewCollector 创建证据收集器，maxBatchSize <= 0 时使用默认值
func NewCollector(builder *Builder, sink Sink, maxBatchSize int, logger log.Logger) *Collector {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Collector{
		builder:      builder,
		sink:         sink,
		maxBatchSize: maxBatchSize,
		open:         make(map[string][]types.EvidenceItem),
		logger:       logger,
	}
}

// Add 把证据加入案件的开放集
//
// 返回值：开放集达到上限触发自动封存时返回封存后的批次，否则为 nil
func (c *Collector) Add(ctx context.Context, item types.EvidenceItem) (*types.MerkleBatch, error) {
	if item.CaseID == "" {
		return nil, fmt.Errorf("%w: 缺少案件ID", ErrInvalidItem)
	}
	if item.Timestamp < 0 {
		return nil, fmt.Errorf("%w: 时间戳为负", ErrInvalidItem)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.open[item.CaseID] {
		if existing.SameAs(item) {
			return nil, nil
		}
	}
	c.open[item.CaseID] = append(c.open[item.CaseID], item)

	if len(c.open[item.CaseID]) < c.maxBatchSize {
		return nil, nil
	}
	if c.logger != nil {
		c.logger.Infof("案件 %s 开放证据集达到上限 %d，自动封存", item.CaseID, c.maxBatchSize)
	}
	return c.sealLocked(ctx, item.CaseID)
}

// Pending 返回案件开放集的副本
func (c *Collector) Pending(caseID string) []types.EvidenceItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.EvidenceItem(nil), c.open[caseID]...)
}

// Seal 封存案件当前开放集
func (c *Collector) Seal(ctx context.Context, caseID string) (*types.MerkleBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealLocked(ctx, caseID)
}

func (c *Collector) sealLocked(ctx context.Context, caseID string) (*types.MerkleBatch, error) {
	items := c.open[caseID]
	batch, err := c.builder.Seal(caseID, items)
	if err != nil {
		return nil, err
	}
	if c.sink != nil {
		stored, err := c.sink(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("持久化批次失败: %w", err)
		}
		batch = stored
	}
	delete(c.open, caseID)
	return batch, nil
}
