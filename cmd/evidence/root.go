package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weisyn/evidence-anchor/internal/app"
	"github.com/weisyn/evidence-anchor/internal/app/version"
	"github.com/weisyn/evidence-anchor/internal/cli/ui"
	config "github.com/weisyn/evidence-anchor/internal/config"
	logconfig "github.com/weisyn/evidence-anchor/internal/config/log"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	pkgconfig "github.com/weisyn/evidence-anchor/pkg/interfaces/config"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath   string // 配置文件
	DataDir      string // 覆盖 data_dir
	OutputFormat string // 输出格式
	Silent       bool   // 静默模式
	Verbose      bool   // 详细日志
}

// cliEnv 单次命令执行的上下文
type cliEnv struct {
	flags     GlobalFlags
	stdout    io.Writer
	stdin     io.Reader
	formatter *ui.Formatter
	provider  pkgconfig.Provider
	logger    log.Logger
}

// newRootCmd 构建命令树
func newRootCmd(stdout io.Writer, stdin io.Reader) *cobra.Command {
	env := &cliEnv{stdout: stdout, stdin: stdin}

	root := &cobra.Command{
		Use:   "evidence",
		Short: "证据完整性与锚定命令行工具",
		Long: `evidence - 证据摘要、加密信封、默克尔批次与链上锚定

常用流程:
  evidence digest report.json                       # 计算内容摘要
  evidence seal report.json --to 0xabc... --store   # 加密并写入密文存储
  evidence batch item --case c1 --file report.json  # 生成证据条目
  evidence batch seal --case c1 --items items.json  # 封存批次
  evidence anchor once                              # 执行一轮锚定
  evidence verify --cid bafy... --digest 0x...      # 校验并给出徽章`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.init()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&env.flags.ConfigPath, "config", "c", "", "配置文件路径 (默认读取环境变量 "+app.ConfigPathEnv+")")
	pf.StringVar(&env.flags.DataDir, "data-dir", "", "覆盖配置中的数据目录")
	pf.StringVarP(&env.flags.OutputFormat, "output", "o", "json", "输出格式: json|pretty|table")
	pf.BoolVar(&env.flags.Silent, "silent", false, "静默模式 (仅输出结果)")
	pf.BoolVarP(&env.flags.Verbose, "verbose", "v", false, "输出调试日志")

	root.AddCommand(
		newDigestCmd(env),
		newCIDCmd(env),
		newKeygenCmd(env),
		newKeystoreCmd(env),
		newSealCmd(env),
		newOpenCmd(env),
		newReshareCmd(env),
		newSignCmd(env),
		newBatchCmd(env),
		newAnchorCmd(env),
		newVerifyCmd(env),
	)
	root.SetOut(stdout)
	return root
}

// init 加载配置并创建输出器与日志
func (e *cliEnv) init() error {
	format, err := ui.ParseFormat(e.flags.OutputFormat)
	if err != nil {
		return err
	}
	e.formatter = ui.NewFormatter(format, e.stdout)
	e.formatter.SetSilent(e.flags.Silent)

	appConfig := &types.AppConfig{}
	path := e.flags.ConfigPath
	if path == "" {
		path = os.Getenv(app.ConfigPathEnv)
	}
	if path != "" {
		if appConfig, err = config.LoadAppConfig(path); err != nil {
			return err
		}
	}
	if e.flags.DataDir != "" {
		appConfig.DataDir = &e.flags.DataDir
	}
	e.provider = config.NewProvider(appConfig)

	// 命令行日志统一写 stderr，数据输出保持干净
	level, target := "warn", "stderr"
	if e.flags.Verbose {
		level = "debug"
	}
	logger, err := logpkg.New(logconfig.New(&types.UserLogConfig{Level: &level, FilePath: &target}))
	if err != nil {
		return fmt.Errorf("创建日志记录器失败: %w", err)
	}
	e.logger = logger
	return nil
}

// Execute 执行根命令
func Execute() {
	if err := newRootCmd(os.Stdout, os.Stdin).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
