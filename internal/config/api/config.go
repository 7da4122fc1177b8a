package api

import (
	"fmt"
	"net"
	"time"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// APIOptions 状态查询 HTTP API 配置选项
type APIOptions struct {
	Enabled         bool          `json:"enabled"`
	ListenAddr      string        `json:"listen_addr"`
	EnableMetrics   bool          `json:"enable_metrics"` // 是否暴露 /metrics
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Config API配置实现
type Config struct {
	options *APIOptions
}

// New 创建API配置
func New(userConfig *types.UserAPIConfig) *Config {
	options := &APIOptions{
		Enabled:         defaultEnabled,
		ListenAddr:      defaultListenAddr,
		EnableMetrics:   defaultEnableMetrics,
		ReadTimeout:     defaultReadTimeout,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
	}
	if u := userConfig; u != nil {
		if u.Enabled != nil {
			options.Enabled = *u.Enabled
		}
		if u.ListenAddr != nil {
			options.ListenAddr = *u.ListenAddr
		}
		if u.EnableMetrics != nil {
			options.EnableMetrics = *u.EnableMetrics
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *APIOptions {
	return c.options
}

// Validate 校验监听地址
func (o *APIOptions) Validate() error {
	if !o.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(o.ListenAddr); err != nil {
		return fmt.Errorf("监听地址无效 %q: %w", o.ListenAddr, err)
	}
	return nil
}
