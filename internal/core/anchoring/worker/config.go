package worker

import (
	"time"

	anchoringconfig "github.com/weisyn/evidence-anchor/internal/config/anchoring"
)

// Config 工作器运行参数
type Config struct {
	Interval       time.Duration // 调度间隔
	MaxRetries     uint          // attempts 超过该值即永久失败
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	JitterPct      float64 // [0,1]
	SubmitTimeout  time.Duration
	RecoverOnStart bool
}

// DefaultConfig 与配置文件默认值一致
func DefaultConfig() Config {
	return FromOptions(anchoringconfig.New(nil).GetOptions())
}

// FromOptions 从锚定配置选项构造
func FromOptions(o *anchoringconfig.AnchoringOptions) Config {
	return Config{
		Interval:       o.Interval(),
		MaxRetries:     o.MaxRetries,
		BaseBackoff:    o.BaseBackoff(),
		MaxBackoff:     o.MaxBackoff(),
		JitterPct:      o.JitterPct,
		SubmitTimeout:  o.SubmitTimeout(),
		RecoverOnStart: o.RecoverOnStart,
	}
}

// normalize 补齐非法值
func (c Config) normalize() Config {
	def := anchoringconfig.New(nil).GetOptions()
	if c.Interval <= 0 {
		c.Interval = def.Interval()
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff()
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = c.BaseBackoff
	}
	if c.JitterPct < 0 || c.JitterPct > 1 {
		c.JitterPct = def.JitterPct
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = def.SubmitTimeout()
	}
	return c
}
