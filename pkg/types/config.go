package types

// AppConfig 应用程序根配置
// 只包含JSON配置文件解析所需的结构，不包含任何内部字段
// 默认值和完整配置结构在 internal/config/*/defaults.go 和 internal/config/*/config.go 中定义
//
// 所有字段使用指针：nil 表示用户未设置（使用默认值），&value 表示用户明确设置（即使为零值）
type AppConfig struct {
	AppName *string `json:"app_name,omitempty"` // 应用名称
	DataDir *string `json:"data_dir,omitempty"` // 数据目录路径

	Log        *UserLogConfig        `json:"log,omitempty"`
	Anchoring  *UserAnchoringConfig  `json:"anchoring,omitempty"`
	BatchStore *UserBatchStoreConfig `json:"batch_store,omitempty"`
	Chain      *UserChainConfig      `json:"chain,omitempty"`
	API        *UserAPIConfig        `json:"api,omitempty"`
	Keystore   *UserKeystoreConfig   `json:"keystore,omitempty"`
	Blob       *UserBlobConfig       `json:"blob,omitempty"`
}

// UserLogConfig 用户日志配置
// 只包含JSON配置文件中实际出现的字段
type UserLogConfig struct {
	Level     *string `json:"level,omitempty"`      // 日志级别：debug, info, warn, error, fatal
	FilePath  *string `json:"file_path,omitempty"`  // 日志文件路径
	ToConsole *bool   `json:"to_console,omitempty"` // 是否输出到控制台
}

// UserAnchoringConfig 锚定重试工作器配置
type UserAnchoringConfig struct {
	IntervalMs      *int64   `json:"interval_ms,omitempty"`       // 调度间隔
	MaxRetries      *uint    `json:"max_retries,omitempty"`       // 最大重试次数
	BaseBackoffMs   *int64   `json:"base_backoff_ms,omitempty"`   // 基础退避
	MaxBackoffMs    *int64   `json:"max_backoff_ms,omitempty"`    // 最大退避
	JitterPct       *float64 `json:"jitter_pct,omitempty"`        // 抖动比例 [0,1]
	SubmitTimeoutMs *int64   `json:"submit_timeout_ms,omitempty"` // 单次链上调用超时
	RecoverOnStart  *bool    `json:"recover_on_start,omitempty"`  // 启动时把 submitting 恢复为 pending
	Enabled         *bool    `json:"enabled,omitempty"`           // 是否随守护进程启动
}

// UserBatchStoreConfig 批次存储配置
type UserBatchStoreConfig struct {
	Backend    *string `json:"backend,omitempty"` // file | badger
	Path       *string `json:"path,omitempty"`
	SyncWrites *bool   `json:"sync_writes,omitempty"`
}

// UserChainConfig 链上锚定合约配置
type UserChainConfig struct {
	Mode             *string `json:"mode,omitempty"` // memory | evm
	RPCURL           *string `json:"rpc_url,omitempty"`
	ContractAddress  *string `json:"contract_address,omitempty"`
	PrivateKeyHex    *string `json:"private_key_hex,omitempty"`
	ChainID          *uint64 `json:"chain_id,omitempty"`
	WaitReceipt      *bool   `json:"wait_receipt,omitempty"`
	ReceiptPollMs    *int64  `json:"receipt_poll_ms,omitempty"`
	ReceiptTimeoutMs *int64  `json:"receipt_timeout_ms,omitempty"`
}

// UserAPIConfig 状态查询 API 配置
type UserAPIConfig struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	ListenAddr    *string `json:"listen_addr,omitempty"`
	EnableMetrics *bool   `json:"enable_metrics,omitempty"`
}

// UserKeystoreConfig 接收方公钥解析配置
type UserKeystoreConfig struct {
	Backend       *string `json:"backend,omitempty"` // file | redis
	Path          *string `json:"path,omitempty"`
	RedisAddr     *string `json:"redis_addr,omitempty"`
	RedisPassword *string `json:"redis_password,omitempty"`
	RedisDB       *int    `json:"redis_db,omitempty"`
	RedisKey      *string `json:"redis_key,omitempty"`
	CacheEnabled  *bool   `json:"cache_enabled,omitempty"`
	CacheTTLSec   *int    `json:"cache_ttl_s,omitempty"`
}

// UserBlobConfig 密文存储配置
type UserBlobConfig struct {
	Path *string `json:"path,omitempty"`
}
