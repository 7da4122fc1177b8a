package blob

import (
	"path/filepath"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

const defaultSubdir = "blobs"

// BlobOptions 密文存储配置选项
type BlobOptions struct {
	Path string `json:"path"`
}

// Config 密文存储配置实现
type Config struct {
	options *BlobOptions
}

// New 创建密文存储配置，path 未设置时使用 {dataDir}/blobs
func New(dataDir string, userConfig *types.UserBlobConfig) *Config {
	options := &BlobOptions{Path: filepath.Join(dataDir, defaultSubdir)}
	if userConfig != nil && userConfig.Path != nil {
		options.Path = *userConfig.Path
	}
	return &Config{options: options}
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *BlobOptions {
	return c.options
}
