package anchoring

import (
	"fmt"
	"time"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// AnchoringOptions 锚定重试工作器配置选项
type AnchoringOptions struct {
	IntervalMs      int64   `json:"interval_ms"`
	MaxRetries      uint    `json:"max_retries"`
	BaseBackoffMs   int64   `json:"base_backoff_ms"`
	MaxBackoffMs    int64   `json:"max_backoff_ms"`
	JitterPct       float64 `json:"jitter_pct"`
	SubmitTimeoutMs int64   `json:"submit_timeout_ms"`
	RecoverOnStart  bool    `json:"recover_on_start"`
	Enabled         bool    `json:"enabled"`
}

// Config 锚定配置实现
type Config struct {
	options *AnchoringOptions
}

// New 创建锚定配置，用户未设置的字段保持默认值
func New(userConfig *types.UserAnchoringConfig) *Config {
	options := createDefaultAnchoringOptions()
	if userConfig != nil {
		applyUserConfig(options, userConfig)
	}
	return &Config{options: options}
}

func createDefaultAnchoringOptions() *AnchoringOptions {
	return &AnchoringOptions{
		IntervalMs:      defaultIntervalMs,
		MaxRetries:      defaultMaxRetries,
		BaseBackoffMs:   defaultBaseBackoffMs,
		MaxBackoffMs:    defaultMaxBackoffMs,
		JitterPct:       defaultJitterPct,
		SubmitTimeoutMs: defaultSubmitTimeoutMs,
		RecoverOnStart:  defaultRecoverOnStart,
		Enabled:         defaultEnabled,
	}
}

func applyUserConfig(o *AnchoringOptions, u *types.UserAnchoringConfig) {
	if u.IntervalMs != nil {
		o.IntervalMs = *u.IntervalMs
	}
	if u.MaxRetries != nil {
		o.MaxRetries = *u.MaxRetries
	}
	if u.BaseBackoffMs != nil {
		o.BaseBackoffMs = *u.BaseBackoffMs
	}
	if u.MaxBackoffMs != nil {
		o.MaxBackoffMs = *u.MaxBackoffMs
	}
	if u.JitterPct != nil {
		o.JitterPct = *u.JitterPct
	}
	if u.SubmitTimeoutMs != nil {
		o.SubmitTimeoutMs = *u.SubmitTimeoutMs
	}
	if u.RecoverOnStart != nil {
		o.RecoverOnStart = *u.RecoverOnStart
	}
	if u.Enabled != nil {
		o.Enabled = *u.Enabled
	}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *AnchoringOptions {
	return c.options
}

// Validate 校验锚定配置
func (o *AnchoringOptions) Validate() error {
	if o.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms 必须大于0: %d", o.IntervalMs)
	}
	if o.BaseBackoffMs <= 0 || o.MaxBackoffMs <= 0 {
		return fmt.Errorf("退避参数必须大于0: base=%d max=%d", o.BaseBackoffMs, o.MaxBackoffMs)
	}
	if o.BaseBackoffMs > o.MaxBackoffMs {
		return fmt.Errorf("base_backoff_ms(%d) 不能大于 max_backoff_ms(%d)", o.BaseBackoffMs, o.MaxBackoffMs)
	}
	if o.JitterPct < 0 || o.JitterPct > 1 {
		return fmt.Errorf("jitter_pct 必须位于 [0,1]: %v", o.JitterPct)
	}
	if o.SubmitTimeoutMs <= 0 {
		return fmt.Errorf("submit_timeout_ms 必须大于0: %d", o.SubmitTimeoutMs)
	}
	return nil
}

// Interval 调度间隔
func (o *AnchoringOptions) Interval() time.Duration {
	return time.Duration(o.IntervalMs) * time.Millisecond
}

// BaseBackoff 基础退避
func (o *AnchoringOptions) BaseBackoff() time.Duration {
	return time.Duration(o.BaseBackoffMs) * time.Millisecond
}

// MaxBackoff 最大退避
func (o *AnchoringOptions) MaxBackoff() time.Duration {
	return time.Duration(o.MaxBackoffMs) * time.Millisecond
}

// SubmitTimeout 单次提交超时
func (o *AnchoringOptions) SubmitTimeout() time.Duration {
	return time.Duration(o.SubmitTimeoutMs) * time.Millisecond
}
