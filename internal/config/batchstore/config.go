package batchstore

import (
	"fmt"
	"path/filepath"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

// BatchStoreOptions 批次存储配置选项
type BatchStoreOptions struct {
	Backend    string `json:"backend"`     // file | badger
	Path       string `json:"path"`        // 存储目录
	SyncWrites bool   `json:"sync_writes"` // badger 同步写入
}

// Config 批次存储配置实现
type Config struct {
	options *BatchStoreOptions
}

// New 创建批次存储配置
//
// 参数：
//   - dataDir: 数据根目录，path 未设置时使用 {dataDir}/batches
//   - userConfig: 用户配置，可为 nil
func New(dataDir string, userConfig *types.UserBatchStoreConfig) *Config {
	options := &BatchStoreOptions{
		Backend:    defaultBackend,
		Path:       filepath.Join(dataDir, defaultSubdir),
		SyncWrites: defaultSyncWrites,
	}
	if userConfig != nil {
		if userConfig.Backend != nil {
			options.Backend = *userConfig.Backend
		}
		if userConfig.Path != nil {
			options.Path = *userConfig.Path
		}
		if userConfig.SyncWrites != nil {
			options.SyncWrites = *userConfig.SyncWrites
		}
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *BatchStoreOptions {
	return c.options
}

// Validate 校验批次存储配置
func (o *BatchStoreOptions) Validate() error {
	switch o.Backend {
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("未知批次存储后端: %q", o.Backend)
	}
	if o.Path == "" {
		return fmt.Errorf("批次存储路径不能为空")
	}
	return nil
}
