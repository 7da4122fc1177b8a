// Package config 提供应用配置管理功能
package config

import (
	"github.com/weisyn/evidence-anchor/internal/config/anchoring"
	"github.com/weisyn/evidence-anchor/internal/config/api"
	"github.com/weisyn/evidence-anchor/internal/config/batchstore"
	"github.com/weisyn/evidence-anchor/internal/config/blob"
	"github.com/weisyn/evidence-anchor/internal/config/chain"
	"github.com/weisyn/evidence-anchor/internal/config/keystore"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/config"
	"github.com/weisyn/evidence-anchor/pkg/types"
	"go.uber.org/fx"
)

// ConfigParams 配置模块依赖
type ConfigParams struct {
	fx.In

	AppOptions config.AppOptions `optional:"true"`
}

// ConfigOutput 配置模块输出
type ConfigOutput struct {
	fx.Out

	Provider config.Provider
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			ProvideConfigServices,
			func(p config.Provider) *anchoring.AnchoringOptions { return p.GetAnchoring() },
			func(p config.Provider) *batchstore.BatchStoreOptions { return p.GetBatchStore() },
			func(p config.Provider) *chain.ChainOptions { return p.GetChain() },
			func(p config.Provider) *api.APIOptions { return p.GetAPI() },
			func(p config.Provider) *keystore.KeystoreOptions { return p.GetKeystore() },
			func(p config.Provider) *blob.BlobOptions { return p.GetBlob() },
		),
	)
}

// ProvideConfigServices 创建并校验配置提供者
func ProvideConfigServices(params ConfigParams) (ConfigOutput, error) {
	var appConfig *types.AppConfig
	if params.AppOptions != nil {
		appConfig = params.AppOptions.GetAppConfig()
	}

	provider := NewProvider(appConfig)
	if err := Validate(provider); err != nil {
		return ConfigOutput{}, err
	}
	return ConfigOutput{Provider: provider}, nil
}
