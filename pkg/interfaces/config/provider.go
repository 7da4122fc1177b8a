// Package config provides configuration provider interfaces.
package config

import (
	anchoringconfig "github.com/weisyn/evidence-anchor/internal/config/anchoring"
	apiconfig "github.com/weisyn/evidence-anchor/internal/config/api"
	batchstoreconfig "github.com/weisyn/evidence-anchor/internal/config/batchstore"
	blobconfig "github.com/weisyn/evidence-anchor/internal/config/blob"
	chainconfig "github.com/weisyn/evidence-anchor/internal/config/chain"
	keystoreconfig "github.com/weisyn/evidence-anchor/internal/config/keystore"
	logconfig "github.com/weisyn/evidence-anchor/internal/config/log"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

// Provider 配置提供者接口
type Provider interface {
	// GetAppConfig 获取原始用户配置
	GetAppConfig() *types.AppConfig

	// GetAppName 获取应用名称
	GetAppName() string

	// GetDataDir 获取数据根目录
	GetDataDir() string

	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetAnchoring 获取锚定重试工作器配置
	GetAnchoring() *anchoringconfig.AnchoringOptions

	// GetBatchStore 获取批次存储配置
	GetBatchStore() *batchstoreconfig.BatchStoreOptions

	// GetChain 获取链上锚定配置
	GetChain() *chainconfig.ChainOptions

	// GetAPI 获取状态查询API配置
	GetAPI() *apiconfig.APIOptions

	// GetKeystore 获取公钥解析配置
	GetKeystore() *keystoreconfig.KeystoreOptions

	// GetBlob 获取密文存储配置
	GetBlob() *blobconfig.BlobOptions
}
