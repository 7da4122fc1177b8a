// Package worker 实现批次锚定重试工作器
//
// 单个协程按固定间隔扫描批次存储，把 pending 且到期的批次提交到链上锚定合约，
// 失败时指数退避，超过最大重试次数后转为 failed_permanent 等待人工处理。
// 提交前先查询 rootToBatchId，已锚定的根不会重复发送交易。
package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	clockimpl "github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

var (
	// ErrAlreadyRunning 工作器已启动
	ErrAlreadyRunning = errors.New("锚定工作器已在运行")
	// ErrTickInProgress 上一轮调度尚未结束
	ErrTickInProgress = errors.New("上一轮锚定调度尚未结束")
	// ErrNotRequeueable 只有 failed_permanent 批次可以重新入队
	ErrNotRequeueable = errors.New("批次状态不允许重新入队")
)

// TickReport 单轮调度结果
type TickReport struct {
	Scanned         int // 扫描到的批次总数
	Attempted       int // 本轮尝试提交的批次数
	Anchored        int
	AlreadyAnchored int
	Retrying        int
	FailedPermanent int
	Pending         int // 本轮结束时仍为 pending 的批次数
	Errors          []error
}

// Option 工作器选项
type Option func(*Worker)

// WithLogger 注入日志记录器
func WithLogger(l log.Logger) Option { return func(w *Worker) { w.logger = l } }

// WithClock 注入时钟
func WithClock(c clock.Clock) Option { return func(w *Worker) { w.clock = c } }

// WithMetrics 在指定 Registerer 上注册指标
func WithMetrics(reg prometheus.Registerer) Option {
	return func(w *Worker) { w.metrics = NewMetrics(reg) }
}

// WithEventBus 状态迁移时发布 TopicBatchStatus 事件
func WithEventBus(bus event.EventBus) Option { return func(w *Worker) { w.bus = bus } }

// WithRand 注入退避抖动使用的随机源
func WithRand(r *rand.Rand) Option { return func(w *Worker) { w.rnd = r } }

// Worker 锚定重试工作器
type Worker struct {
	store  anchoring.BatchStore
	anchor anchoring.RootAnchor
	cfg    Config

	logger  log.Logger
	clock   clock.Clock
	metrics *Metrics
	bus     event.EventBus
	rnd     *rand.Rand
	backoff *Backoff

	tickMu sync.Mutex

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建工作器，不会自动启动
func New(store anchoring.BatchStore, anchor anchoring.RootAnchor, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		store:  store,
		anchor: anchor,
		cfg:    cfg.normalize(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logpkg.OrNop(w.logger)
	if w.clock == nil {
		w.clock = clockimpl.NewSystemClock()
	}
	if w.metrics == nil {
		w.metrics = NewMetrics(nil)
	}
	w.backoff = NewBackoff(w.cfg.BaseBackoff, w.cfg.MaxBackoff, w.cfg.JitterPct, w.rnd)

	w.done = make(chan struct{})
	close(w.done)
	return w
}

// Backoff 工作器使用的退避计算器
func (w *Worker) Backoff() *Backoff {
	return w.backoff
}

// Start 启动调度协程，立即执行第一轮
//
// ctx 取消或调用 Stop 都会让协程在当前批次完成后退出。
func (w *Worker) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	if w.cfg.RecoverOnStart {
		if n, err := w.Recover(ctx); err != nil {
			return fmt.Errorf("恢复提交中批次失败: %w", err)
		} else if n > 0 {
			w.logger.Warnf("启动时恢复了 %d 个提交中批次", n)
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(loopCtx, w.done)
	w.logger.Infof("锚定工作器已启动: interval=%s maxRetries=%d", w.cfg.Interval, w.cfg.MaxRetries)
	return nil
}

// Stop 请求停止并等待在途批次完成
//
// ctx 到期时不再等待，返回 ctx.Err()，协程仍会在在途批次完成后退出。
func (w *Worker) Stop(ctx context.Context) error {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return nil
	}
	w.cancel()
	done := w.done
	w.runMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.runMu.Lock()
	w.running = false
	w.runMu.Unlock()
	w.logger.Info("锚定工作器已停止")
	return nil
}

// Done 调度协程退出时关闭，未启动时返回已关闭的通道
func (w *Worker) Done() <-chan struct{} {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.done
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		w.runMu.Lock()
		w.running = false
		w.runMu.Unlock()
	}()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.scheduledTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scheduledTick(ctx)
			// 长时间调度期间堆积的 tick 直接丢弃
			select {
			case <-ticker.C:
				w.metrics.ticks.WithLabelValues("skipped").Inc()
			default:
			}
		}
	}
}

func (w *Worker) scheduledTick(ctx context.Context) {
	report, err := w.RunOnce(ctx)
	if err != nil {
		if !errors.Is(err, ErrTickInProgress) && ctx.Err() == nil {
			w.logger.Errorf("锚定调度失败: %v", err)
		}
		return
	}
	if report.Attempted > 0 {
		w.logger.Infof("锚定调度完成: attempted=%d anchored=%d already=%d retry=%d failed=%d pending=%d",
			report.Attempted, report.Anchored, report.AlreadyAnchored, report.Retrying,
			report.FailedPermanent, report.Pending)
	}
}

// RunOnce 执行一轮调度
//
// 与其他调度重叠时立即返回 ErrTickInProgress。ctx 取消后不再开始新的批次，
// 已开始的批次仍会完成链上调用与状态写入。
func (w *Worker) RunOnce(ctx context.Context) (TickReport, error) {
	if !w.tickMu.TryLock() {
		w.metrics.ticks.WithLabelValues("skipped").Inc()
		return TickReport{}, ErrTickInProgress
	}
	defer w.tickMu.Unlock()

	w.metrics.ticks.WithLabelValues("ran").Inc()
	start := w.clock.Now()
	defer func() {
		w.metrics.tickDuration.Observe(w.clock.Since(start).Seconds())
	}()

	var report TickReport
	caseIDs, err := w.store.CaseIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("列出案件失败: %w", err)
	}

	for _, caseID := range caseIDs {
		if ctx.Err() != nil {
			break
		}
		batches, err := w.store.Get(ctx, caseID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			report.Errors = append(report.Errors, fmt.Errorf("读取案件 %s 失败: %w", caseID, err))
			continue
		}
		for _, b := range batches {
			report.Scanned++
			if b.Status != types.BatchPending || b.NextAttemptAt > w.clock.UnixMilli() {
				if b.Status == types.BatchPending {
					report.Pending++
				}
				continue
			}
			if ctx.Err() != nil {
				report.Pending++
				continue
			}
			report.Attempted++
			result, err := w.process(ctx, b)
			if err != nil {
				report.Errors = append(report.Errors, err)
			}
			switch result {
			case resultAnchored:
				report.Anchored++
			case resultAlreadyAnchored:
				report.AlreadyAnchored++
			case resultRetry:
				report.Retrying++
				report.Pending++
			case resultFailedPermanent:
				report.FailedPermanent++
			}
		}
	}

	w.metrics.pending.Set(float64(report.Pending))
	return report, nil
}

// process 处理单个到期批次，返回结果标签；store 写入失败时结果为空
func (w *Worker) process(ctx context.Context, b *types.MerkleBatch) (string, error) {
	// 在途批次不受调用方取消影响
	base := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s/%d", b.CaseID, b.BatchID)

	b.Status = types.BatchSubmitting
	if err := w.update(base, b); err != nil {
		return "", fmt.Errorf("标记批次 %s 为提交中失败: %w", key, err)
	}
	w.publish(types.BatchPending, b)

	chainErr := w.anchorRoot(base, b)
	if chainErr == nil {
		result := resultAnchored
		if b.TxHash == nil {
			result = resultAlreadyAnchored
		}
		b.Status = types.BatchOnchainSubmitted
		b.LastError = nil
		b.NextAttemptAt = 0
		if err := w.update(base, b); err != nil {
			return "", fmt.Errorf("写入批次 %s 上链结果失败: %w", key, err)
		}
		w.metrics.submissions.WithLabelValues(result).Inc()
		w.publish(types.BatchSubmitting, b)
		w.logger.Infof("批次已锚定: %s root=%s result=%s", key, b.MerkleRoot.Hex(), result)
		return result, nil
	}

	b.Attempts++
	b.SetError(chainErr)
	result := resultRetry
	if b.Attempts > w.cfg.MaxRetries {
		b.Status = types.BatchFailedPermanent
		b.NextAttemptAt = 0
		result = resultFailedPermanent
	} else {
		b.Status = types.BatchPending
		b.NextAttemptAt = w.clock.UnixMilli() + w.backoff.Delay(b.Attempts).Milliseconds()
	}
	if err := w.update(base, b); err != nil {
		return "", fmt.Errorf("写入批次 %s 失败结果失败: %w", key, err)
	}
	w.metrics.submissions.WithLabelValues(result).Inc()
	w.publish(types.BatchSubmitting, b)

	if result == resultFailedPermanent {
		w.logger.Errorf("批次永久失败: %s attempts=%d err=%v", key, b.Attempts, chainErr)
	} else {
		w.logger.Warnf("批次锚定失败，稍后重试: %s attempts=%d next=%d err=%v",
			key, b.Attempts, b.NextAttemptAt, chainErr)
	}
	return result, nil
}

// anchorRoot 先查询再提交；已锚定时 b.TxHash 保持不变
func (w *Worker) anchorRoot(ctx context.Context, b *types.MerkleBatch) error {
	qctx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	id, err := w.anchor.RootToBatchID(qctx, b.MerkleRoot)
	cancel()
	if err != nil {
		return fmt.Errorf("查询根锚定状态失败: %w", err)
	}
	if id != nil && id.Sign() > 0 {
		w.logger.Infof("根已在链上锚定，跳过提交: case=%s batchId=%d chainBatchId=%s",
			b.CaseID, b.BatchID, id.String())
		b.TxHash = nil
		return nil
	}

	sctx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	tx, err := w.anchor.SubmitRoot(sctx, b.MerkleRoot)
	if err != nil {
		return fmt.Errorf("提交根失败: %w", err)
	}
	b.TxHash = &tx
	return nil
}

func (w *Worker) update(ctx context.Context, b *types.MerkleBatch) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.SubmitTimeout)
	defer cancel()
	return w.store.Update(ctx, b)
}

// Recover 把遗留的 submitting 批次改回 pending，返回恢复数量
//
// 进程在提交过程中退出会留下 submitting 批次；链上查询会避免重复锚定。
func (w *Worker) Recover(ctx context.Context) (int, error) {
	caseIDs, err := w.store.CaseIDs(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, caseID := range caseIDs {
		batches, err := w.store.Get(ctx, caseID)
		if err != nil {
			return recovered, err
		}
		for _, b := range batches {
			if b.Status != types.BatchSubmitting {
				continue
			}
			b.Status = types.BatchPending
			b.NextAttemptAt = 0
			if err := w.store.Update(ctx, b); err != nil {
				return recovered, err
			}
			w.publish(types.BatchSubmitting, b)
			recovered++
		}
	}
	return recovered, nil
}

// Requeue 把 failed_permanent 批次重新置为 pending 并清零尝试次数
func (w *Worker) Requeue(ctx context.Context, caseID string, batchID int64) error {
	batches, err := w.store.Get(ctx, caseID)
	if err != nil {
		return err
	}
	b := batchstore.FindBatch(batches, batchID)
	if b == nil {
		return fmt.Errorf("%w: case=%s batchId=%d", batchstore.ErrBatchNotFound, caseID, batchID)
	}
	if b.Status != types.BatchFailedPermanent {
		return fmt.Errorf("%w: %s", ErrNotRequeueable, b.Status)
	}
	b.Status = types.BatchPending
	b.Attempts = 0
	b.NextAttemptAt = 0
	if err := w.store.Update(ctx, b); err != nil {
		return err
	}
	w.publish(types.BatchFailedPermanent, b)
	w.logger.Infof("批次已重新入队: case=%s batchId=%d", caseID, batchID)
	return nil
}
