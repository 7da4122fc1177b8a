package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/weisyn/evidence-anchor/internal/config/anchoring"
	"github.com/weisyn/evidence-anchor/internal/config/api"
	"github.com/weisyn/evidence-anchor/internal/config/batchstore"
	"github.com/weisyn/evidence-anchor/internal/config/blob"
	"github.com/weisyn/evidence-anchor/internal/config/chain"
	"github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/internal/config/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/config"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

const (
	defaultAppName = "evidence-anchor"
	defaultDataDir = "./data"
)

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig
}

// NewProvider 创建配置提供者，appConfig 为 nil 时全部使用默认值
func NewProvider(appConfig *types.AppConfig) config.Provider {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	return &Provider{appConfig: appConfig}
}

// LoadAppConfig 从 JSON 文件加载用户配置
func LoadAppConfig(path string) (*types.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return ParseAppConfig(data)
}

// ParseAppConfig 解析 JSON 配置内容
func ParseAppConfig(data []byte) (*types.AppConfig, error) {
	var appConfig types.AppConfig
	if err := json.Unmarshal(data, &appConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &appConfig, nil
}

// GetAppConfig 获取原始用户配置
func (p *Provider) GetAppConfig() *types.AppConfig {
	return p.appConfig
}

// GetAppName 获取应用名称
func (p *Provider) GetAppName() string {
	if p.appConfig.AppName != nil && *p.appConfig.AppName != "" {
		return *p.appConfig.AppName
	}
	return defaultAppName
}

// GetDataDir 获取数据根目录
func (p *Provider) GetDataDir() string {
	if p.appConfig.DataDir != nil && *p.appConfig.DataDir != "" {
		return *p.appConfig.DataDir
	}
	return defaultDataDir
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	options := log.DefaultLogOptions()
	log.ApplyUserConfig(options, p.appConfig.Log)
	return options
}

// GetAnchoring 获取锚定重试工作器配置
func (p *Provider) GetAnchoring() *anchoring.AnchoringOptions {
	return anchoring.New(p.appConfig.Anchoring).GetOptions()
}

// GetBatchStore 获取批次存储配置
func (p *Provider) GetBatchStore() *batchstore.BatchStoreOptions {
	return batchstore.New(p.GetDataDir(), p.appConfig.BatchStore).GetOptions()
}

// GetChain 获取链上锚定配置
//
// 私钥优先读取环境变量 EVIDENCE_ANCHOR_PRIVATE_KEY，避免写入配置文件。
func (p *Provider) GetChain() *chain.ChainOptions {
	options := chain.New(p.appConfig.Chain).GetOptions()
	if key := os.Getenv(PrivateKeyEnv); key != "" {
		options.PrivateKeyHex = key
	}
	return options
}

// GetAPI 获取状态查询 API 配置
func (p *Provider) GetAPI() *api.APIOptions {
	return api.New(p.appConfig.API).GetOptions()
}

// GetKeystore 获取公钥解析配置
func (p *Provider) GetKeystore() *keystore.KeystoreOptions {
	return keystore.New(p.GetDataDir(), p.appConfig.Keystore).GetOptions()
}

// GetBlob 获取密文存储配置
func (p *Provider) GetBlob() *blob.BlobOptions {
	return blob.New(p.GetDataDir(), p.appConfig.Blob).GetOptions()
}

// PrivateKeyEnv 锚定交易签名私钥的环境变量名
const PrivateKeyEnv = "EVIDENCE_ANCHOR_PRIVATE_KEY"
