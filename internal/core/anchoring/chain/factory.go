package chain

import (
	"context"
	"fmt"

	chainconfig "github.com/weisyn/evidence-anchor/internal/config/chain"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/anchoring"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// Open 按配置模式创建锚定协作方
func Open(ctx context.Context, opts *chainconfig.ChainOptions, logger log.Logger) (anchoring.RootAnchor, error) {
	switch opts.Mode {
	case chainconfig.ModeMemory:
		if logger != nil {
			logger.Warn("使用进程内锚定注册表，根不会写入任何链")
		}
		return NewMemoryAnchor(), nil
	case chainconfig.ModeEVM:
		return DialEVM(ctx, opts, logger)
	default:
		return nil, fmt.Errorf("未知链模式: %q", opts.Mode)
	}
}
