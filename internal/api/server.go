package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statuspulse/internal/config"
	"statuspulse/internal/logger"
)

// Server HTTP服务器（只读状态 API，仅 loop 模式启用）
type Server struct {
	handler    *Handler
	router     *gin.Engine
	httpServer *http.Server
	addr       string
}

// NewServer 创建服务器
func NewServer(source StatusSource, cfg *config.AppConfig) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// CORS中间件：默认允许任意来源（接口只读），可通过环境变量收紧
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID", "Accept-Encoding"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if origins := os.Getenv("STATUSPULSE_CORS_ORIGINS"); origins != "" {
		// 逗号分隔，例如: STATUSPULSE_CORS_ORIGINS=http://localhost:5173,https://status.example.com
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				corsConfig.AllowOrigins = append(corsConfig.AllowOrigins, o)
			}
		}
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Request ID 中间件
	router.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = logger.NewShortID()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// 访问日志（/health 与 /metrics 不记录）
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			return
		}
		logger.FromContext(c.Request.Context(), "api").Debug("请求完成",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	})

	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.Use(func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Referrer-Policy", "no-referrer-when-downgrade")
		c.Next()
	})

	handler := NewHandler(source, cfg)

	router.GET("/api/status", handler.GetStatus)
	router.GET("/api/history", handler.GetHistory)
	router.GET("/api/chart.png", handler.GetChart)
	router.POST("/api/trigger", NewIPLimiter(6, 2).Middleware(), handler.TriggerCycle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 健康检查（支持 GET 和 HEAD）
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})

	return &Server{
		handler: handler,
		router:  router,
		addr:    cfg.API.Addr,
		httpServer: &http.Server{
			Addr:         cfg.API.Addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start 启动服务器（阻塞，Stop 后返回 nil）
func (s *Server) Start() error {
	logger.Info("api", "状态 API 已启动",
		"addr", s.addr,
		"status", "/api/status",
		"health", "/health",
		"metrics", "/metrics")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("启动HTTP服务失败: %w", err)
	}

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("api", "正在关闭HTTP服务器")

	return s.httpServer.Shutdown(ctx)
}

// UpdateConfig 更新配置（热更新时调用）
func (s *Server) UpdateConfig(cfg *config.AppConfig) {
	s.handler.UpdateConfig(cfg)
}

// Handler 返回路由（测试与嵌入使用）
func (s *Server) Handler() http.Handler {
	return s.router
}
