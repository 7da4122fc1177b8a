package chain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// ChainOptions 链上锚定合约配置选项
type ChainOptions struct {
	Mode             string `json:"mode"`
	RPCURL           string `json:"rpc_url"`
	ContractAddress  string `json:"contract_address"`
	PrivateKeyHex    string `json:"-"`
	ChainID          uint64 `json:"chain_id"`
	WaitReceipt      bool   `json:"wait_receipt"`
	ReceiptPollMs    int64  `json:"receipt_poll_ms"`
	ReceiptTimeoutMs int64  `json:"receipt_timeout_ms"`
}

// Config 链配置实现
type Config struct {
	options *ChainOptions
}

// New 创建链配置
func New(userConfig *types.UserChainConfig) *Config {
	options := &ChainOptions{
		Mode:             defaultMode,
		RPCURL:           defaultRPCURL,
		ChainID:          defaultChainID,
		WaitReceipt:      defaultWaitReceipt,
		ReceiptPollMs:    defaultReceiptPollMs,
		ReceiptTimeoutMs: defaultReceiptTimeoutMs,
	}
	if u := userConfig; u != nil {
		if u.Mode != nil {
			options.Mode = *u.Mode
		}
		if u.RPCURL != nil {
			options.RPCURL = *u.RPCURL
		}
		if u.ContractAddress != nil {
			options.ContractAddress = *u.ContractAddress
		}
		if u.PrivateKeyHex != nil {
			options.PrivateKeyHex = *u.PrivateKeyHex
		}
		if u.ChainID != nil {
			options.ChainID = *u.ChainID
		}
		if u.WaitReceipt != nil {
			options.WaitReceipt = *u.WaitReceipt
		}
		if u.ReceiptPollMs != nil {
			options.ReceiptPollMs = *u.ReceiptPollMs
		}
		if u.ReceiptTimeoutMs != nil {
			options.ReceiptTimeoutMs = *u.ReceiptTimeoutMs
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *ChainOptions {
	return c.options
}

// Validate 校验链配置，evm 模式要求合约地址与签名私钥
func (o *ChainOptions) Validate() error {
	switch o.Mode {
	case ModeMemory:
		return nil
	case ModeEVM:
	default:
		return fmt.Errorf("未知链模式: %q", o.Mode)
	}
	if o.RPCURL == "" {
		return fmt.Errorf("evm 模式需要 rpc_url")
	}
	if !common.IsHexAddress(o.ContractAddress) {
		return fmt.Errorf("合约地址无效: %q", o.ContractAddress)
	}
	if o.PrivateKeyHex == "" {
		return fmt.Errorf("evm 模式需要 private_key_hex")
	}
	if o.ChainID == 0 {
		return fmt.Errorf("chain_id 不能为0")
	}
	return nil
}

// ReceiptPoll 回执轮询间隔
func (o *ChainOptions) ReceiptPoll() time.Duration {
	return time.Duration(o.ReceiptPollMs) * time.Millisecond
}

// ReceiptTimeout 等待回执的最长时间
func (o *ChainOptions) ReceiptTimeout() time.Duration {
	return time.Duration(o.ReceiptTimeoutMs) * time.Millisecond
}
