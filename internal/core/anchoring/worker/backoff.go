package worker

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff 指数退避带抖动
//
// BaseDelay(n) = min(max, base·2^n)，Delay 在其上叠加 [1-jitter, 1+jitter] 的均匀抖动。
type Backoff struct {
	base   time.Duration
	max    time.Duration
	jitter float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBackoff 创建退避计算器，rnd 为 nil 时使用随机种子
func NewBackoff(base, max time.Duration, jitter float64, rnd *rand.Rand) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if jitter < 0 || jitter > 1 {
		jitter = 0.2
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{base: base, max: max, jitter: jitter, rnd: rnd}
}

// BaseDelay 不含抖动的退避时长，对 attempts 单调不减
func (b *Backoff) BaseDelay(attempts uint) time.Duration {
	d := b.base
	for i := uint(0); i < attempts; i++ {
		if d >= b.max/2 {
			return b.max
		}
		d *= 2
	}
	if d > b.max {
		return b.max
	}
	return d
}

// Delay 带抖动的退避时长
func (b *Backoff) Delay(attempts uint) time.Duration {
	d := b.BaseDelay(attempts)
	if b.jitter == 0 {
		return d
	}
	b.mu.Lock()
	f := 1 + (b.rnd.Float64()*2-1)*b.jitter
	b.mu.Unlock()
	d = time.Duration(float64(d) * f)
	if d < 0 {
		d = 0
	}
	return d
}
