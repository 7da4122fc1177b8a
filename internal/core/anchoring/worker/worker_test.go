package worker

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/internal/core/anchoring/chain"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/merkle"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	eventimpl "github.com/weisyn/evidence-anchor/internal/core/infrastructure/event"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

var testNow = time.UnixMilli(1_700_000_000_000)

var errRPC = errors.New("rpc unavailable")

type fixture struct {
	clock  *clock.MockClock
	store  *batchstore.Store
	anchor *chain.MemoryAnchor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMockClock(testNow)
	backend, err := batchstore.NewFileBackend(filepath.Join(t.TempDir(), "batches"), nil)
	require.NoError(t, err)
	store := batchstore.New(backend, batchstore.WithClock(clk))
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{clock: clk, store: store, anchor: chain.NewMemoryAnchor()}
}

func (f *fixture) seal(t *testing.T, caseID string, contents ...interface{}) *types.MerkleBatch {
	t.Helper()
	items := make([]types.EvidenceItem, len(contents))
	for i, c := range contents {
		digest, err := canonical.Digest(c)
		require.NoError(t, err)
		items[i] = types.EvidenceItem{
			CaseID:        caseID,
			ContentDigest: digest,
			Uploader:      common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			Timestamp:     f.clock.UnixMilli(),
		}
	}
	batch, err := merkle.NewBuilder(f.clock).Seal(caseID, items)
	require.NoError(t, err)
	created, err := f.store.Create(context.Background(), batch)
	require.NoError(t, err)
	return created
}

func (f *fixture) batch(t *testing.T, caseID string, batchID int64) *types.MerkleBatch {
	t.Helper()
	batches, err := f.store.Get(context.Background(), caseID)
	require.NoError(t, err)
	b := batchstore.FindBatch(batches, batchID)
	require.NotNil(t, b)
	return b
}

func testConfig() Config {
	return Config{
		Interval:      10 * time.Millisecond,
		MaxRetries:    2,
		BaseBackoff:   time.Second,
		MaxBackoff:    time.Minute,
		JitterPct:     0.1,
		SubmitTimeout: 5 * time.Second,
	}
}

func (f *fixture) worker(cfg Config, opts ...Option) *Worker {
	opts = append([]Option{WithClock(f.clock), WithRand(rand.New(rand.NewSource(1)))}, opts...)
	return New(f.store, f.anchor, cfg, opts...)
}

func TestRunOnceAnchors(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-1", map[string]interface{}{"x": 1}, map[string]interface{}{"x": 2})
	reg := prometheus.NewRegistry()
	w := f.worker(testConfig(), WithMetrics(reg))

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Anchored)
	assert.Zero(t, report.Pending)

	got := f.batch(t, "case-1", b.BatchID)
	assert.Equal(t, types.BatchOnchainSubmitted, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Nil(t, got.LastError)
	assert.Equal(t, 1, f.anchor.SubmitCalls())
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.submissions.WithLabelValues(resultAnchored)))

	// 终态批次不再处理
	report, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Equal(t, 1, f.anchor.SubmitCalls())
}

func TestAlreadyAnchoredRootIsNotResubmitted(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-2", map[string]interface{}{"doc": "contract.pdf"})
	f.anchor.Preanchor(b.MerkleRoot)
	w := f.worker(testConfig())

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyAnchored)

	got := f.batch(t, "case-2", b.BatchID)
	assert.Equal(t, types.BatchOnchainSubmitted, got.Status)
	assert.Nil(t, got.TxHash)
	assert.Zero(t, f.anchor.SubmitCalls())
	assert.Equal(t, 1, f.anchor.QueryCalls())
}

func TestCaseSevenEndsFailedPermanent(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-7", map[string]interface{}{"a": 1, "b": 2})
	require.Len(t, b.EvidenceItems, 1)
	assert.Equal(t, merkle.LeafHash(b.EvidenceItems[0]), b.MerkleRoot)

	f.anchor.FailNext(100, errRPC)
	w := f.worker(testConfig())
	ctx := context.Background()

	expected := []struct {
		attempts uint
		status   types.BatchStatus
	}{
		{1, types.BatchPending},
		{2, types.BatchPending},
		{3, types.BatchFailedPermanent},
	}
	for _, step := range expected {
		report, err := w.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Attempted)

		got := f.batch(t, "case-7", b.BatchID)
		assert.Equal(t, step.attempts, got.Attempts)
		assert.Equal(t, step.status, got.Status)
		require.NotNil(t, got.LastError)
		assert.Contains(t, *got.LastError, errRPC.Error())

		if got.Status == types.BatchPending {
			assert.Greater(t, got.NextAttemptAt, f.clock.UnixMilli())
			// 未到期的批次不会被提交
			report, err = w.RunOnce(ctx)
			require.NoError(t, err)
			assert.Zero(t, report.Attempted)
			assert.Equal(t, 1, report.Pending)
			f.clock.Set(time.UnixMilli(got.NextAttemptAt))
		}
	}
	assert.Equal(t, 3, f.anchor.SubmitCalls())

	// 永久失败后不再重试
	f.clock.Advance(time.Hour)
	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted)
	assert.Equal(t, 3, f.anchor.SubmitCalls())
}

func TestRetryThenSucceed(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-3", "plain")
	f.anchor.FailNext(1, errRPC)
	w := f.worker(testConfig())
	ctx := context.Background()

	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retrying)

	got := f.batch(t, "case-3", b.BatchID)
	f.clock.Set(time.UnixMilli(got.NextAttemptAt))
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Anchored)

	got = f.batch(t, "case-3", b.BatchID)
	assert.Equal(t, types.BatchOnchainSubmitted, got.Status)
	assert.Equal(t, uint(1), got.Attempts)
	assert.Nil(t, got.LastError)
}

func TestBackoff(t *testing.T) {
	t.Run("基础时长单调不减且封顶", func(t *testing.T) {
		b := NewBackoff(time.Second, time.Minute, 0.2, nil)
		prev := time.Duration(0)
		for n := uint(0); n < 100; n++ {
			d := b.BaseDelay(n)
			assert.GreaterOrEqual(t, d, prev)
			assert.LessOrEqual(t, d, time.Minute)
			prev = d
		}
		assert.Equal(t, time.Second, b.BaseDelay(0))
		assert.Equal(t, 4*time.Second, b.BaseDelay(2))
		assert.Equal(t, time.Minute, b.BaseDelay(63))
	})

	t.Run("抖动位于区间内", func(t *testing.T) {
		b := NewBackoff(time.Second, time.Minute, 0.25, rand.New(rand.NewSource(7)))
		for n := uint(0); n < 10; n++ {
			base := b.BaseDelay(n)
			for i := 0; i < 50; i++ {
				d := b.Delay(n)
				assert.GreaterOrEqual(t, float64(d), float64(base)*0.75-1)
				assert.LessOrEqual(t, float64(d), float64(base)*1.25+1)
			}
		}
	})

	t.Run("无抖动时等于基础时长", func(t *testing.T) {
		b := NewBackoff(time.Second, time.Minute, 0, nil)
		assert.Equal(t, 8*time.Second, b.Delay(3))
	})
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.seal(t, "case-4", "slow")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.anchor.OnSubmit(func(ctx context.Context, root common.Hash) {
		once.Do(func() { close(entered) })
		<-release
	})

	reg := prometheus.NewRegistry()
	w := f.worker(testConfig(), WithMetrics(reg))

	errCh := make(chan error, 1)
	go func() {
		_, err := w.RunOnce(context.Background())
		errCh <- err
	}()
	<-entered

	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrTickInProgress)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.ticks.WithLabelValues("skipped")))

	close(release)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, f.anchor.SubmitCalls())
}

func TestStopDrainsInFlightBatch(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-5", "drain")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.anchor.OnSubmit(func(ctx context.Context, root common.Hash) {
		once.Do(func() { close(entered) })
		<-release
	})

	w := f.worker(testConfig())
	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), ErrAlreadyRunning)
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("在途批次完成前 Stop 不应返回")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	<-w.Done()

	got := f.batch(t, "case-5", b.BatchID)
	assert.Equal(t, types.BatchOnchainSubmitted, got.Status)
	require.NotNil(t, got.TxHash)

	// 停止后可以再次启动
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop(context.Background()))
}

func TestStopTimeout(t *testing.T) {
	f := newFixture(t)
	f.seal(t, "case-6", "stuck")

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.anchor.OnSubmit(func(ctx context.Context, root common.Hash) {
		once.Do(func() { close(entered) })
		<-release
	})

	w := f.worker(testConfig())
	require.NoError(t, w.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Stop(ctx), context.DeadlineExceeded)

	close(release)
	<-w.Done()
}

func TestDoneBeforeStart(t *testing.T) {
	f := newFixture(t)
	w := f.worker(testConfig())
	select {
	case <-w.Done():
	default:
		t.Fatal("未启动的工作器 Done 应已关闭")
	}
	assert.NoError(t, w.Stop(context.Background()))
}

func TestRecover(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-8", "crash")
	ctx := context.Background()

	b.Status = types.BatchSubmitting
	require.NoError(t, f.store.Update(ctx, b))

	w := f.worker(testConfig())
	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Attempted, "submitting 批次不会被自动处理")

	n, err := w.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, types.BatchPending, f.batch(t, "case-8", b.BatchID).Status)

	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Anchored)
}

func TestRecoverOnStart(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-9", "crash")
	b.Status = types.BatchSubmitting
	require.NoError(t, f.store.Update(context.Background(), b))

	cfg := testConfig()
	cfg.RecoverOnStart = true
	bus := eventimpl.New()
	anchored := make(chan StatusEvent, 4)
	require.NoError(t, bus.Subscribe(TopicBatchStatus, func(ev StatusEvent) {
		if ev.To == types.BatchOnchainSubmitted {
			anchored <- ev
		}
	}))

	w := f.worker(cfg, WithEventBus(bus))
	require.NoError(t, w.Start(context.Background()))
	select {
	case ev := <-anchored:
		assert.Equal(t, b.BatchID, ev.BatchID)
	case <-time.After(5 * time.Second):
		t.Fatal("批次未被锚定")
	}
	require.NoError(t, w.Stop(context.Background()))
}

func TestRequeue(t *testing.T) {
	f := newFixture(t)
	b := f.seal(t, "case-10", "requeue")
	ctx := context.Background()
	cfg := testConfig()
	cfg.MaxRetries = 0
	f.anchor.FailNext(1, errRPC)
	w := f.worker(cfg)

	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedPermanent)

	require.NoError(t, w.Requeue(ctx, "case-10", b.BatchID))
	got := f.batch(t, "case-10", b.BatchID)
	assert.Equal(t, types.BatchPending, got.Status)
	assert.Zero(t, got.Attempts)

	assert.ErrorIs(t, w.Requeue(ctx, "case-10", b.BatchID), ErrNotRequeueable)
	assert.ErrorIs(t, w.Requeue(ctx, "case-10", 1), batchstore.ErrBatchNotFound)

	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Anchored)
}

func TestStatusEvents(t *testing.T) {
	f := newFixture(t)
	f.seal(t, "case-11", "events")
	bus := eventimpl.New()
	var got []StatusEvent
	require.NoError(t, bus.Subscribe(TopicBatchStatus, func(ev StatusEvent) { got = append(got, ev) }))

	w := f.worker(testConfig(), WithEventBus(bus))
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, types.BatchPending, got[0].From)
	assert.Equal(t, types.BatchSubmitting, got[0].To)
	assert.Equal(t, types.BatchSubmitting, got[1].From)
	assert.Equal(t, types.BatchOnchainSubmitted, got[1].To)
	assert.NotNil(t, got[1].TxHash)
}

func TestCanceledContextStartsNoBatch(t *testing.T) {
	f := newFixture(t)
	f.seal(t, "case-12", "cancel")
	w := f.worker(testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.anchor.SubmitCalls())
}
