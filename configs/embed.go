package configs

import _ "embed"

// 嵌入的配置文件
//
//go:embed defaults.json
var defaultConfig []byte

//go:embed development/config.json
var developmentConfig []byte

// GetDefaultConfig 获取默认配置（生产环境基线）
func GetDefaultConfig() []byte {
	return defaultConfig
}

// GetDevelopmentConfig 获取开发环境配置
func GetDevelopmentConfig() []byte {
	return developmentConfig
}
