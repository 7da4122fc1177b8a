package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	configtypes "github.com/weisyn/evidence-anchor/pkg/types"
)

func TestNewDefaults(t *testing.T) {
	cfg := New(nil)
	assert.Equal(t, "info", cfg.GetLevel())
	assert.Equal(t, zapcore.InfoLevel, cfg.GetZapLevel())
	assert.True(t, cfg.IsConsoleEnabled())
	assert.Empty(t, cfg.GetFilePath())
	assert.NoError(t, cfg.GetOptions().Validate())
}

func TestApplyUserLogConfig(t *testing.T) {
	level := "debug"
	path := "/var/log/anchord.log"

	t.Run("指定文件路径时关闭控制台", func(t *testing.T) {
		cfg := New(&configtypes.UserLogConfig{Level: &level, FilePath: &path})
		assert.Equal(t, zapcore.DebugLevel, cfg.GetZapLevel())
		assert.Equal(t, path, cfg.GetFilePath())
		assert.False(t, cfg.IsConsoleEnabled())
	})

	t.Run("显式开启控制台", func(t *testing.T) {
		on := true
		cfg := New(&configtypes.UserLogConfig{FilePath: &path, ToConsole: &on})
		assert.True(t, cfg.IsConsoleEnabled())
	})

	t.Run("未知级别校验失败", func(t *testing.T) {
		bad := "verbose"
		cfg := New(&configtypes.UserLogConfig{Level: &bad})
		assert.Error(t, cfg.GetOptions().Validate())
		assert.Equal(t, zapcore.InfoLevel, cfg.GetZapLevel())
	})
}
