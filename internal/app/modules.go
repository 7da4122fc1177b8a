package app

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	apihttp "github.com/weisyn/evidence-anchor/internal/api/http"
	anchoringconfig "github.com/weisyn/evidence-anchor/internal/config/anchoring"
	apiconfig "github.com/weisyn/evidence-anchor/internal/config/api"
	batchstoreconfig "github.com/weisyn/evidence-anchor/internal/config/batchstore"
	blobconfig "github.com/weisyn/evidence-anchor/internal/config/blob"
	chainconfig "github.com/weisyn/evidence-anchor/internal/config/chain"
	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/internal/core/anchoring/chain"
	"github.com/weisyn/evidence-anchor/internal/core/anchoring/worker"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	clockimpl "github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/blob"
	"github.com/weisyn/evidence-anchor/internal/core/keystore"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// provideRegistry 进程级指标注册表，附带 Go 运行时与进程指标
func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideClock() clock.Clock {
	return clockimpl.NewSystemClock()
}

// provideBatchStore 打开批次存储，停止时最后关闭
func provideBatchStore(lc fx.Lifecycle, opts *batchstoreconfig.BatchStoreOptions, clk clock.Clock, logger log.Logger) (*batchstore.Store, anchoring.BatchStore, error) {
	store, err := batchstore.Open(opts, clk, logpkg.NewModuleLogger(logger, "batchstore"))
	if err != nil {
		return nil, nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, store, nil
}

// provideAnchor 按配置连接锚定合约
func provideAnchor(lc fx.Lifecycle, opts *chainconfig.ChainOptions, logger log.Logger) (anchoring.RootAnchor, error) {
	anchor, err := chain.Open(context.Background(), opts, logpkg.NewModuleLogger(logger, "chain"))
	if err != nil {
		return nil, err
	}
	if closer, ok := anchor.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return closer.Close() },
		})
	}
	return anchor, nil
}

// workerParams 工作器依赖
type workerParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *anchoringconfig.AnchoringOptions
	Store     anchoring.BatchStore
	Anchor    anchoring.RootAnchor
	Clock     clock.Clock
	Logger    log.Logger
	Bus       event.EventBus
	Registry  *prometheus.Registry
}

// provideWorker 创建锚定重试工作器，enabled=false 时返回 nil
func provideWorker(p workerParams) *worker.Worker {
	if !p.Options.Enabled {
		p.Logger.Warn("锚定工作器未启用，批次将保持 pending")
		return nil
	}
	w := worker.New(p.Store, p.Anchor, worker.FromOptions(p.Options),
		worker.WithLogger(logpkg.NewModuleLogger(p.Logger, "anchoring")),
		worker.WithClock(p.Clock),
		worker.WithMetrics(p.Registry),
		worker.WithEventBus(p.Bus),
	)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(context.WithoutCancel(ctx))
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
	return w
}

// provideKeystore 接收方公钥解析器
func provideKeystore(lc fx.Lifecycle, opts *keystoreconfig.KeystoreOptions) (keystore.Resolver, error) {
	resolver, err := keystore.Open(context.Background(), opts)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return resolver.Close() },
	})
	return resolver, nil
}

// provideBlobStore 密文存储
func provideBlobStore(lc fx.Lifecycle, opts *blobconfig.BlobOptions, logger log.Logger) (*blob.Store, error) {
	store, err := blob.Open(opts.Path, logpkg.NewModuleLogger(logger, "blob"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

// provideServer 状态查询API，enabled=false 时返回 nil
func provideServer(lc fx.Lifecycle, opts *apiconfig.APIOptions, store *batchstore.Store, reg *prometheus.Registry, logger log.Logger) *apihttp.Server {
	if !opts.Enabled {
		return nil
	}
	server := apihttp.NewServer(opts, apihttp.Deps{
		Store:    store,
		Logger:   logpkg.NewModuleLogger(logger, "api"),
		Registry: reg,
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return server.Start() },
		OnStop:  server.Stop,
	})
	return server
}

// logStatusEvents 把批次状态迁移写入日志
func logStatusEvents(bus event.EventBus, logger log.Logger) error {
	l := logpkg.NewModuleLogger(logger, "events")
	return bus.SubscribeAsync(worker.TopicBatchStatus, func(ev worker.StatusEvent) {
		switch ev.To {
		case types.BatchFailedPermanent:
			l.Errorf("批次永久失败: case=%s batchId=%d attempts=%d", ev.CaseID, ev.BatchID, ev.Attempts)
		default:
			l.Debugf("批次状态变更: case=%s batchId=%d %s -> %s", ev.CaseID, ev.BatchID, ev.From, ev.To)
		}
	}, false)
}
