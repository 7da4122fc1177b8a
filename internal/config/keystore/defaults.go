package keystore

const (
	// BackendFile JSON 文件（地址 → 公钥十六进制）
	BackendFile = "file"
	// BackendRedis Redis 哈希表
	BackendRedis = "redis"

	defaultBackend      = BackendFile
	defaultFileName     = "recipient_pubkeys.json"
	defaultRedisAddr    = "127.0.0.1:6379"
	defaultRedisDB      = 0
	defaultRedisKey     = "evidence:recipient_pubkeys"
	defaultCacheEnabled = true
	defaultCacheTTLSec  = 300
)
