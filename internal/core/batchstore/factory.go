package batchstore

import (
	"fmt"

	batchstoreconfig "github.com/weisyn/evidence-anchor/internal/config/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// Open 按配置选择后端并创建存储
func Open(opts *batchstoreconfig.BatchStoreOptions, clk clock.Clock, logger log.Logger) (*Store, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case batchstoreconfig.BackendBadger:
		backend, err = NewBadgerBackend(badger.Options{Path: opts.Path, SyncWrites: opts.SyncWrites}, logger)
	default:
		backend, err = NewFileBackend(opts.Path, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("打开批次存储后端(%s)失败: %w", opts.Backend, err)
	}

	return New(backend, WithClock(clk), WithLogger(logger)), nil
}
