package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/evidence-anchor/internal/api/http/middleware"
	apitypes "github.com/weisyn/evidence-anchor/internal/api/http/types"
	apiconfig "github.com/weisyn/evidence-anchor/internal/config/api"
	"github.com/weisyn/evidence-anchor/internal/core/batchstore"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/canonical"
	"github.com/weisyn/evidence-anchor/internal/core/evidence/merkle"
	"github.com/weisyn/evidence-anchor/internal/core/infrastructure/clock"
	"github.com/weisyn/evidence-anchor/pkg/types"
)

type testEnv struct {
	server *Server
	store  *batchstore.Store
	batch  *types.MerkleBatch
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewMockClock(time.UnixMilli(1_700_000_000_000))
	backend, err := batchstore.NewFileBackend(filepath.Join(t.TempDir(), "batches"), nil)
	require.NoError(t, err)
	store := batchstore.New(backend, batchstore.WithClock(clk))
	t.Cleanup(func() { _ = store.Close() })

	items := make([]types.EvidenceItem, 3)
	for i := range items {
		items[i] = types.EvidenceItem{
			CaseID:        "case-7",
			ContentDigest: canonical.Keccak256([]byte{byte(i)}),
			Uploader:      common.HexToAddress("0xaa"),
			Timestamp:     int64(i),
		}
	}
	sealed, err := merkle.NewBuilder(clk).Seal("case-7", items)
	require.NoError(t, err)
	created, err := store.Create(context.Background(), sealed)
	require.NoError(t, err)

	other := items[0]
	other.CaseID = "case-8"
	failed, err := merkle.NewBuilder(clk).Seal("case-8", []types.EvidenceItem{other})
	require.NoError(t, err)
	created8, err := store.Create(context.Background(), failed)
	require.NoError(t, err)
	created8.Status = types.BatchFailedPermanent
	created8.Attempts = 3
	require.NoError(t, store.Update(context.Background(), created8))

	opts := apiconfig.New(nil).GetOptions()
	opts.EnableMetrics = true
	srv := NewServer(opts, Deps{Store: store, Registry: prometheus.NewRegistry()})
	return &testEnv{server: srv, store: store, batch: created}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp apitypes.HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))

	require.NoError(t, env.store.Close())
	rec = env.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCaseBatches(t *testing.T) {
	env := newTestEnv(t)

	t.Run("列出案件批次", func(t *testing.T) {
		rec := env.get(t, "/api/v1/cases/case-7/batches")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data []apitypes.BatchSummary `json:"data"`
		}
		decode(t, rec, &resp)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, 3, resp.Data[0].ItemCount)
		assert.Equal(t, types.BatchPending, resp.Data[0].Status)
	})

	t.Run("未知案件", func(t *testing.T) {
		rec := env.get(t, "/api/v1/cases/nope/batches")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		var resp apitypes.ErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, apitypes.ErrCaseNotFound, resp.Error.Code)
	})

	t.Run("读取单个批次", func(t *testing.T) {
		rec := env.get(t, fmt.Sprintf("/api/v1/cases/case-7/batches/%d", env.batch.BatchID))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data types.MerkleBatch `json:"data"`
		}
		decode(t, rec, &resp)
		assert.Equal(t, env.batch.MerkleRoot, resp.Data.MerkleRoot)
		assert.Len(t, resp.Data.Proofs, 3)
	})

	t.Run("批次ID非法或不存在", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/v1/cases/case-7/batches/abc").Code)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/cases/case-7/batches/1").Code)
	})
}

func TestProof(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/api/v1/cases/case-7/batches/%d/proofs/", env.batch.BatchID)

	for i := 0; i < 3; i++ {
		rec := env.get(t, base+fmt.Sprint(i))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data apitypes.ProofResponse `json:"data"`
		}
		decode(t, rec, &resp)
		assert.True(t, resp.Data.Valid)
		assert.Equal(t, merkle.LeafHash(env.batch.EvidenceItems[i]), resp.Data.LeafHash)
	}

	assert.Equal(t, http.StatusNotFound, env.get(t, base+"3").Code)
	assert.Equal(t, http.StatusBadRequest, env.get(t, base+"-1").Code)
}

func TestListBatchesByStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/v1/batches?status=failed_permanent")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data       []apitypes.BatchSummary `json:"data"`
		Pagination apitypes.PaginationMeta `json:"pagination"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "case-8", resp.Data[0].CaseID)
	assert.Equal(t, uint(3), resp.Data[0].Attempts)
	assert.Equal(t, int64(1), resp.Pagination.TotalItems)

	rec = env.get(t, "/api/v1/batches?page=2&pageSize=1")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "case-8", resp.Data[0].CaseID)
	assert.False(t, resp.Pagination.HasNext)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/v1/batches?status=weird").Code)

	t.Run("超大页码返回空页", func(t *testing.T) {
		for _, page := range []string{"9223372036854775807", "4611686018427387905", "1000001"} {
			rec := env.get(t, "/api/v1/batches?pageSize=100&page="+page)
			require.Equal(t, http.StatusOK, rec.Code, page)
			var out struct {
				Data       []apitypes.BatchSummary `json:"data"`
				Pagination apitypes.PaginationMeta `json:"pagination"`
			}
			decode(t, rec, &out)
			assert.Empty(t, out.Data)
			assert.False(t, out.Pagination.HasNext)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.get(t, "/health")
	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "evidence_api_requests_total")
}

func TestRequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/nope/batches", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(middleware.HeaderRequestID))
	var resp apitypes.ErrorResponse
	decode(t, rec, &resp)
	assert.Equal(t, "req-123", resp.Error.RequestID)
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t)
	env.server.options.ListenAddr = "127.0.0.1:0"
	require.NoError(t, env.server.Start())
	resp, err := http.Get("http://" + env.server.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, env.server.Stop(context.Background()))
}
