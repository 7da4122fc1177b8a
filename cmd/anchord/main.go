// anchord 证据锚定守护进程
//
// 周期性扫描批次存储，把待提交批次的默克尔根写入链上锚定合约，
// 并对外提供只读状态查询API。
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/weisyn/evidence-anchor/configs"
	apihttp "github.com/weisyn/evidence-anchor/internal/api/http"
	"github.com/weisyn/evidence-anchor/internal/app"
	"github.com/weisyn/evidence-anchor/internal/app/version"
	config "github.com/weisyn/evidence-anchor/internal/config"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "❌ [PANIC] 程序发生严重错误: %v\n", r)
			os.Exit(1)
		}
	}()

	var (
		configPath  string // 配置文件路径
		dataDir     string // 数据目录覆盖
		dev         bool   // 使用内嵌开发配置
		noAPI       bool   // 不启动状态查询API
		noWorker    bool   // 不启动锚定工作器
		fxEvents    bool   // 输出依赖注入事件
		showVersion bool   // 显示版本
	)

	flag.StringVar(&configPath, "config", "", "配置文件路径（默认读取环境变量 "+app.ConfigPathEnv+"，都未提供时使用内嵌默认配置）")
	flag.StringVar(&dataDir, "data-dir", "", "数据目录（覆盖配置中的 data_dir）")
	flag.BoolVar(&dev, "dev", false, "使用内嵌开发环境配置（内存链，调试日志）")
	flag.BoolVar(&noAPI, "no-api", false, "不启动状态查询API")
	flag.BoolVar(&noWorker, "no-worker", false, "不启动锚定工作器（只读节点）")
	flag.BoolVar(&fxEvents, "fx-events", false, "输出依赖注入事件日志")
	flag.BoolVar(&showVersion, "version", false, "显示版本信息")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetFullVersion("anchord"))
		return
	}
	apihttp.Version = version.Version

	appConfig, source, err := loadConfig(configPath, dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if dataDir != "" {
		appConfig.DataDir = &dataDir
	}

	startOptions := []app.Option{app.WithAppConfig(appConfig)}
	if noAPI {
		startOptions = append(startOptions, app.WithoutAPI())
	}
	if noWorker {
		startOptions = append(startOptions, app.WithoutWorker())
	}
	if fxEvents {
		startOptions = append(startOptions, app.WithFxEvents())
	}

	fmt.Printf("🚀 正在启动 anchord %s\n", version.Version)
	fmt.Printf("   配置来源: %s\n", source)

	daemon, err := app.Start(startOptions...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ 启动失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ 守护进程已启动")
	if addr := daemon.APIAddr(); addr != "" {
		fmt.Printf("   状态查询API: http://%s/api/v1\n", addr)
	}
	if daemon.Worker() == nil {
		fmt.Println("   ⚠️  锚定工作器未启用，批次不会被提交")
	}

	daemon.Wait()
}

// loadConfig 按 --config > 环境变量 > --dev > 内嵌默认配置 的顺序加载
func loadConfig(configPath string, dev bool) (*types.AppConfig, string, error) {
	if configPath == "" {
		configPath = os.Getenv(app.ConfigPathEnv)
	}
	switch {
	case configPath != "":
		cfg, err := config.LoadAppConfig(configPath)
		return cfg, configPath, err
	case dev:
		cfg, err := config.ParseAppConfig(configs.GetDevelopmentConfig())
		return cfg, "内嵌开发配置", err
	default:
		cfg, err := config.ParseAppConfig(configs.GetDefaultConfig())
		return cfg, "内嵌默认配置", err
	}
}
