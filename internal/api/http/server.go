// Package http 提供批次状态查询 HTTP API
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weisyn/evidence-anchor/internal/api/http/handlers"
	"github.com/weisyn/evidence-anchor/internal/api/http/middleware"
	apiconfig "github.com/weisyn/evidence-anchor/internal/config/api"
	logpkg "github.com/weisyn/evidence-anchor/internal/core/infrastructure/log"
	"github.com/weisyn/evidence-anchor/pkg/interfaces/infrastructure/log"
)

// Version 对外报告的服务版本
var Version = "dev"

// Server HTTP服务器
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	options    *apiconfig.APIOptions
	logger     log.Logger
	listener   net.Listener
}

// Deps 服务器依赖
type Deps struct {
	Store    handlers.BatchReader
	Logger   log.Logger
	Registry *prometheus.Registry // 为 nil 时不注册指标也不暴露 /metrics
}

// NewServer 创建服务器并注册路由，不监听端口
func NewServer(options *apiconfig.APIOptions, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard

	logger := logpkg.OrNop(deps.Logger)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestID().Middleware())
	router.Use(middleware.NewLogger(logger).Middleware())
	if deps.Registry != nil {
		router.Use(middleware.NewMetrics(deps.Registry).Middleware())
	}

	health := handlers.NewHealthHandler(deps.Store, Version)
	router.GET("/health", health.Health)

	v1 := router.Group("/api/v1")
	handlers.NewBatchHandler(deps.Store, logger).RegisterRoutes(v1)

	if options.EnableMetrics && deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	return &Server{
		router:  router,
		options: options,
		logger:  logger,
		httpServer: &http.Server{
			Addr:         options.ListenAddr,
			Handler:      router,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
		},
	}
}

// Handler 返回路由，供测试直接调用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 监听端口并在后台提供服务
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.options.ListenAddr)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", s.options.ListenAddr, err)
	}
	s.listener = ln
	s.logger.Infof("状态查询API已启动: http://%s", ln.Addr())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP服务异常退出: %v", err)
		}
	}()
	return nil
}

// Addr 实际监听地址，未启动时为空
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	if s.options.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.ShutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭HTTP服务失败: %w", err)
	}
	s.logger.Info("状态查询API已停止")
	return nil
}
