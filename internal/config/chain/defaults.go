package chain

const (
	// ModeMemory 进程内锚定注册表，只用于开发与测试，须显式配置
	ModeMemory = "memory"
	// ModeEVM 通过 JSON-RPC 调用链上锚定合约
	ModeEVM = "evm"

	defaultMode             = ModeEVM
	defaultRPCURL           = "http://127.0.0.1:8545"
	defaultChainID          = 31337
	defaultWaitReceipt      = true
	defaultReceiptPollMs    = 1000
	defaultReceiptTimeoutMs = 25000
)
