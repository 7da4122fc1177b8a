package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apitypes "github.com/weisyn/evidence-anchor/internal/api/http/types"
)

// HealthHandler 健康检查
type HealthHandler struct {
	store     BatchReader
	version   string
	startedAt time.Time
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(store BatchReader, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version, startedAt: time.Now()}
}

// Health GET /health，批次存储不可读时返回 503
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	resp := apitypes.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     time.Since(h.startedAt).Round(time.Second).String(),
		Components: map[string]string{"batch_store": "ok"},
	}
	code := http.StatusOK
	if _, err := h.store.CaseIDs(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Components["batch_store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
