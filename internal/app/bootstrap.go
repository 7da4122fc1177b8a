package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	apihttp "github.com/weisyn/evidence-anchor/internal/api/http"
	config "github.com/weisyn/evidence-anchor/internal/config"
	"github.com/weisyn/evidence-anchor/internal/core/anchoring/worker"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/event"
	logmod "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/blob"
	"github.com/weisyn/evidence-anchor/internal/core/keystore"
	pkgconfig "github.com/weisyn/evidence-anchor/pkg/interfaces/config"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// startTimeout 启动阶段（连接链节点、打开存储）的上限
const startTimeout = 2 * time.Minute

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App

	store  *batchstore.Store
	worker *worker.Worker
	server *apihttp.Server
	logger log.Logger
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// SetupInfrastructureLayer 配置、日志、事件、存储
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(func() pkgconfig.AppOptions { return b.opts }),
		config.Module(), // 1. 配置(不依赖其他)
		logmod.Module(), // 2. 日志(依赖配置)
		event.Module(),  // 3. 事件总线
		fx.Provide(
			provideClock,
			provideRegistry,
			provideBatchStore,
			provideBlobStore,
			provideKeystore,
		),
	}
}

// SetupBusinessLayer 链上锚定与重试工作器
func (b *Bootstrap) SetupBusinessLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(
			provideAnchor,
			provideWorker,
		),
		fx.Invoke(logStatusEvents),
	}
}

// SetupApplicationLayer 对外服务
func (b *Bootstrap) SetupApplicationLayer() []fx.Option {
	return []fx.Option{
		fx.Provide(provideServer),
	}
}

// SetupModules 按依赖顺序组装全部模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var all []fx.Option
	all = append(all, b.SetupInfrastructureLayer()...)
	all = append(all, b.SetupBusinessLayer()...)
	all = append(all, b.SetupApplicationLayer()...)
	return all
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	appOptions := []fx.Option{
		fx.Options(b.SetupModules()...),

		// 强制实例化生命周期组件并保留引用
		fx.Populate(&b.store, &b.logger),
		fx.Invoke(func(w *worker.Worker, s *apihttp.Server, _ keystore.Resolver, _ *blob.Store) {
			b.worker = w
			b.server = s
		}),
	}

	if b.opts.fxEvents {
		appOptions = append(appOptions, fx.WithLogger(func(z *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: z.With(zap.String("module", "fx"))}
		}))
	} else {
		appOptions = append(appOptions, fx.NopLogger)
	}

	b.fxApp = fx.New(appOptions...)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("装配应用失败: %w", err)
	}
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	b.logger.Infof("证据锚定服务已启动: worker=%t api=%t", b.worker != nil, b.server != nil)
	return nil
}

// StopApp 停止应用程序
//
// fx 按注册逆序执行 OnStop：API、工作器先停，批次存储最后关闭。
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回应用实例
func BootstrapApp(opts *options) (App, error) {
	bootstrap := NewBootstrap(opts)
	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := bootstrap.StartApp(ctx); err != nil {
		return nil, err
	}

	return &internalApp{
		bootstrap: bootstrap,
		store:     bootstrap.store,
		worker:    bootstrap.worker,
		logger:    bootstrap.logger,
	}, nil
}
