package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/merkle"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

func testConfig(t *testing.T) *types.AppConfig {
	t.Helper()
	dir := t.TempDir()
	level := "error"
	logPath := "stderr"
	interval := int64(3_600_000)
	listen := "127.0.0.1:0"
	mode := "memory"
	return &types.AppConfig{
		DataDir:   &dir,
		Log:       &types.UserLogConfig{Level: &level, FilePath: &logPath},
		Anchoring: &types.UserAnchoringConfig{IntervalMs: &interval},
		Chain:     &types.UserChainConfig{Mode: &mode},
		API:       &types.UserAPIConfig{ListenAddr: &listen},
	}
}

func TestStartAnchorsAndServes(t *testing.T) {
	a, err := Start(WithAppConfig(testConfig(t)))
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Stop()) }()

	require.NotNil(t, a.Worker())
	require.NotEmpty(t, a.APIAddr())

	ctx := context.Background()
	item := types.EvidenceItem{
		CaseID:        "case-1",
		ContentDigest: canonical.Keccak256([]byte("证据")),
		Uploader:      common.HexToAddress("0x01"),
		Timestamp:     1,
	}
	sealed, err := merkle.NewBuilder(nil).Seal("case-1", []types.EvidenceItem{item})
	require.NoError(t, err)
	created, err := a.Store().Create(ctx, sealed)
	require.NoError(t, err)

	// 启动时的首轮调度可能仍在进行
	require.Eventually(t, func() bool {
		_, err := a.Worker().RunOnce(ctx)
		if err != nil {
			return false
		}
		batches, err := a.Store().Get(ctx, "case-1")
		return err == nil && len(batches) == 1 && batches[0].Status == types.BatchOnchainSubmitted
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/v1/cases/case-1/batches/%d", a.APIAddr(), created.BatchID))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), string(types.BatchOnchainSubmitted))
}

func TestStartWithoutWorkerAndAPI(t *testing.T) {
	a, err := Start(WithAppConfig(testConfig(t)), WithoutWorker(), WithoutAPI())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Stop()) }()

	assert.Nil(t, a.Worker())
	assert.Empty(t, a.APIAddr())
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	backend := "sqlite"
	cfg.BatchStore = &types.UserBatchStoreConfig{Backend: &backend}

	_, err := Start(WithAppConfig(cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_store")
}

func TestResolveAppConfig(t *testing.T) {
	t.Run("嵌入配置优先于文件", func(t *testing.T) {
		o := newOptions(
			WithEmbeddedConfig([]byte(`{"app_name":"嵌入"}`)),
			WithConfigFile("/不存在/config.json"),
		)
		require.NoError(t, resolveAppConfig(o))
		assert.Equal(t, "嵌入", *o.appConfig.AppName)
	})

	t.Run("读取配置文件", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"data_dir":"/tmp/x"}`), 0o600))
		o := newOptions(WithConfigFile(path))
		require.NoError(t, resolveAppConfig(o))
		assert.Equal(t, "/tmp/x", *o.appConfig.DataDir)
	})

	t.Run("文件不存在报错", func(t *testing.T) {
		o := newOptions(WithConfigFile(filepath.Join(t.TempDir(), "missing.json")))
		assert.Error(t, resolveAppConfig(o))
	})

	t.Run("命令行开关覆盖配置", func(t *testing.T) {
		o := newOptions(WithAppConfig(&types.AppConfig{}), WithoutAPI(), WithoutWorker())
		o.applyOverrides()
		assert.False(t, *o.appConfig.API.Enabled)
		assert.False(t, *o.appConfig.Anchoring.Enabled)
	})
}
