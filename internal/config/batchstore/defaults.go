package batchstore

const (
	// BackendFile 每个案件一个JSON文件
	BackendFile = "file"
	// BackendBadger BadgerDB键值存储
	BackendBadger = "badger"

	defaultBackend    = BackendFile
	defaultSubdir     = "batches"
	defaultSyncWrites = true
)
