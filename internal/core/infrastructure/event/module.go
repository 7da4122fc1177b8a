package event

import (
	"go.uber.org/fx"

	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/event"
)

// Module 提供进程内事件总线
func Module() fx.Option {
	return fx.Module("event",
		fx.Provide(func() event.EventBus { return New() }),
	)
}
