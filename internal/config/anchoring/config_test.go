package anchoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/weisyn/evidence-anchor/pkg/types"
)

func TestDefaults(t *testing.T) {
	o := New(nil).GetOptions()
	assert.Equal(t, 15*time.Second, o.Interval())
	assert.Equal(t, uint(5), o.MaxRetries)
	assert.Equal(t, 2*time.Second, o.BaseBackoff())
	assert.Equal(t, time.Minute, o.MaxBackoff())
	assert.Equal(t, 0.2, o.JitterPct)
	assert.Equal(t, 30*time.Second, o.SubmitTimeout())
	assert.False(t, o.RecoverOnStart)
	assert.NoError(t, o.Validate())
}

func TestUserOverride(t *testing.T) {
	zero := uint(0)
	jitter := 0.0
	recoverOnStart := true
	o := New(&types.UserAnchoringConfig{
		MaxRetries:     &zero,
		JitterPct:      &jitter,
		RecoverOnStart: &recoverOnStart,
	}).GetOptions()

	assert.Equal(t, uint(0), o.MaxRetries, "显式设置的零值生效")
	assert.Equal(t, 0.0, o.JitterPct)
	assert.True(t, o.RecoverOnStart)
	assert.Equal(t, int64(defaultIntervalMs), o.IntervalMs)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(o *AnchoringOptions)
	}{
		{name: "间隔为零", mutate: func(o *AnchoringOptions) { o.IntervalMs = 0 }},
		{name: "基础退避大于上限", mutate: func(o *AnchoringOptions) { o.BaseBackoffMs = o.MaxBackoffMs + 1 }},
		{name: "抖动越界", mutate: func(o *AnchoringOptions) { o.JitterPct = 1.5 }},
		{name: "超时为负", mutate: func(o *AnchoringOptions) { o.SubmitTimeoutMs = -1 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := New(nil).GetOptions()
			tc.mutate(o)
			assert.Error(t, o.Validate())
		})
	}
}
