package anchoring

// 锚定重试工作器默认值
const (
	// defaultIntervalMs 调度间隔 15 秒
	defaultIntervalMs = 15000

	// defaultMaxRetries 首次提交之外最多重试 5 次
	defaultMaxRetries = 5

	// 退避：min(max, base·2^attempts) ± jitter
	defaultBaseBackoffMs = 2000
	defaultMaxBackoffMs  = 60000
	defaultJitterPct     = 0.2

	// defaultSubmitTimeoutMs 单次链上调用与存储写入的超时
	defaultSubmitTimeoutMs = 30000

	// defaultRecoverOnStart 启动时不自动把 submitting 恢复为 pending
	defaultRecoverOnStart = false

	defaultEnabled = true
)
