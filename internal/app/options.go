package app

import (
	"github.com/weisyn/evidence-anchor/pkg/interfaces/config"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 配置文件路径
	configFilePath string

	// 嵌入的配置内容（优先级高于configFilePath）
	embeddedConfig []byte

	// 用户配置
	appConfig *types.AppConfig

	// 覆盖配置文件中的开关，nil 表示沿用配置
	enableAPI    *bool
	enableWorker *bool

	// 输出 fx 依赖注入事件
	fxEvents bool
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithEmbeddedConfig 设置嵌入的配置内容（优先级高于WithConfigFile）
func WithEmbeddedConfig(configBytes []byte) Option {
	return func(o *options) {
		o.embeddedConfig = configBytes
	}
}

// WithAppConfig 直接注入已解析的配置，优先级最高
func WithAppConfig(cfg *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = cfg
	}
}

// WithAPI 启用状态查询API
func WithAPI() Option {
	return func(o *options) {
		enabled := true
		o.enableAPI = &enabled
	}
}

// WithoutAPI 禁用状态查询API
func WithoutAPI() Option {
	return func(o *options) {
		enabled := false
		o.enableAPI = &enabled
	}
}

// WithoutWorker 不启动锚定重试工作器（只读部署）
func WithoutWorker() Option {
	return func(o *options) {
		enabled := false
		o.enableWorker = &enabled
	}
}

// WithFxEvents 把 fx 装配事件写入日志
func WithFxEvents() Option {
	return func(o *options) {
		o.fxEvents = true
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetAppConfig 返回应用程序配置
// 实现config.AppOptions接口
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}

// applyOverrides 把命令行开关写回用户配置
func (o *options) applyOverrides() {
	if o.appConfig == nil {
		o.appConfig = &types.AppConfig{}
	}
	if o.enableAPI != nil {
		if o.appConfig.API == nil {
			o.appConfig.API = &types.UserAPIConfig{}
		}
		o.appConfig.API.Enabled = o.enableAPI
	}
	if o.enableWorker != nil {
		if o.appConfig.Anchoring == nil {
			o.appConfig.Anchoring = &types.UserAnchoringConfig{}
		}
		o.appConfig.Anchoring.Enabled = o.enableWorker
	}
}
