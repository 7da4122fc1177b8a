// Package clock 定义时间源接口
//
// 工作器调度、批次ID与信封创建时间都从 Clock 取时，测试中注入可控时钟。
package clock

import "time"

// Clock 时间源
type Clock interface {
	// Now 获取当前时间
	Now() time.Time

	// Since 计算从指定时间到现在的持续时间
	Since(t time.Time) time.Duration

	// UnixMilli 获取当前Unix时间戳（毫秒）
	UnixMilli() int64
}
