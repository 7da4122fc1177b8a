// Package app 装配证据锚定守护进程
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/weisyn/evidence-anchor/internal/config"
	"github.com/weisyn/evidence-anchor/internal/core/anchoring/worker"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// stopTimeout 停止时等待在途提交和数据落盘的上限
const stopTimeout = 60 * time.Second

// App 是守护进程的对外接口
type App interface {
	// Stop 停止应用
	Stop() error

	// Wait 阻塞直到收到退出信号，然后停止应用
	Wait()

	// Store 批次存储
	Store() *batchstore.Store

	// Worker 锚定重试工作器，未启用时为 nil
	Worker() *worker.Worker

	// APIAddr 状态查询API实际监听地址，未启用时为空
	APIAddr() string
}

// internalApp 应用的内部实现
type internalApp struct {
	bootstrap *Bootstrap
	store     *batchstore.Store
	worker    *worker.Worker
	logger    log.Logger
}

// Stop 停止应用
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 等待退出信号
func (a *internalApp) Wait() {
	sig := WaitForSignal()
	a.logger.Infof("收到信号 %v，正在退出", sig)
	if err := a.Stop(); err != nil {
		a.logger.Errorf("停止应用时出错: %v", err)
	}
}

func (a *internalApp) Store() *batchstore.Store { return a.store }

func (a *internalApp) Worker() *worker.Worker { return a.worker }

func (a *internalApp) APIAddr() string {
	if a.bootstrap.server == nil {
		return ""
	}
	return a.bootstrap.server.Addr()
}

// Start 加载配置并启动守护进程
//
// 配置来源优先级：WithAppConfig > WithEmbeddedConfig > WithConfigFile > 环境变量 EVIDENCE_ANCHOR_CONFIG。
// 都未提供时使用默认值。
func Start(appOptions ...Option) (App, error) {
	opts := newOptions(appOptions...)
	if err := resolveAppConfig(opts); err != nil {
		return nil, err
	}
	opts.applyOverrides()
	return BootstrapApp(opts)
}

// ConfigPathEnv 配置文件路径环境变量
const ConfigPathEnv = "EVIDENCE_ANCHOR_CONFIG"

func resolveAppConfig(opts *options) error {
	if opts.appConfig != nil {
		return nil
	}

	var (
		cfg *types.AppConfig
		err error
	)
	switch {
	case len(opts.embeddedConfig) > 0:
		cfg, err = config.ParseAppConfig(opts.embeddedConfig)
	case opts.configFilePath != "":
		cfg, err = config.LoadAppConfig(opts.configFilePath)
	case os.Getenv(ConfigPathEnv) != "":
		cfg, err = config.LoadAppConfig(os.Getenv(ConfigPathEnv))
	default:
		cfg = &types.AppConfig{}
	}
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	opts.appConfig = cfg
	return nil
}

// WaitForSignal 等待退出信号
func WaitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
