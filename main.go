package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/yhw2003/claude-openai-bridge/internal/config"
	"github.com/yhw2003/claude-openai-bridge/internal/handlers"
	"github.com/yhw2003/claude-openai-bridge/internal/logger"
	"github.com/yhw2003/claude-openai-bridge/internal/middleware"
	"github.com/yhw2003/claude-openai-bridge/internal/requestlog"
	"github.com/yhw2003/claude-openai-bridge/internal/session"
	"github.com/yhw2003/claude-openai-bridge/internal/upstream"
)

const configPath = "config.toml"

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("没有找到 .env 文件，使用环境变量或默认值")
	}

	// 初始化配置
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration Error: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志系统（必须在其他初始化之前）
	logCfg := &logger.Config{
		LogDir:     cfg.LogDir,
		LogFile:    cfg.LogFile,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackup,
		MaxAge:     cfg.LogMaxAge,
		Compress:   cfg.LogCompress,
		Console:    cfg.LogToConsole,
	}
	if err := logger.Setup(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.AnthropicAPIKey == "" {
		log.Printf("⚠️ ANTHROPIC_API_KEY 未设置，客户端密钥校验已禁用")
	}

	// 配置文件热更新（仅模型路由相关字段）
	if err := cfg.WatchRouting(); err != nil {
		log.Printf("⚠️ 配置热更新不可用: %v", err)
	} else {
		log.Printf("✅ 配置热更新已启用 (%s)", configPath)
	}

	// 初始化会话管理器
	sessions := session.NewManager(
		time.Duration(cfg.SessionTTLMinSecs)*time.Second,
		time.Duration(cfg.SessionTTLMaxSecs)*time.Second,
		time.Duration(cfg.SessionCleanupIntervalSecs)*time.Second,
	)
	sessions.StartCleanupLoop()
	log.Printf("✅ 会话管理器已初始化 (TTL %d~%d 秒, 清理间隔 %d 秒)",
		cfg.SessionTTLMinSecs, cfg.SessionTTLMaxSecs, cfg.SessionCleanupIntervalSecs)

	// 初始化上游客户端
	client := upstream.NewClient(cfg)
	log.Printf("✅ 上游客户端已初始化 (%s, wire_api=%s)", cfg.OpenAIBaseURL, cfg.WireAPI)

	// 初始化请求日志管理器
	var reqLog *requestlog.Manager
	if cfg.RequestLogEnabled {
		reqLog, err = requestlog.NewManager(cfg.RequestLogDBPath)
		if err != nil {
			log.Printf("⚠️ 请求日志管理器初始化失败: %v (日志功能将被禁用)", err)
			reqLog = nil
		} else {
			reqLog.StartCleanupLoop(time.Duration(cfg.RequestLogRetentionHours) * time.Hour)
			log.Printf("✅ 请求日志管理器已初始化 (%s)", cfg.RequestLogDBPath)
		}
	}

	// 创建路由器（不使用 gin.Default() 以避免默认 Logger 中间件产生大量日志）
	if !cfg.ShouldLog("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// 公开端点
	r.GET("/", handlers.Root(cfg))
	r.GET("/health", handlers.Health(cfg))
	r.GET("/test-connection", handlers.TestConnection(cfg, client))
	r.GET("/api/logs", handlers.RecentLogs(reqLog))

	// 代理端点：认证 + 请求体限制
	v1Group := r.Group("/v1")
	v1Group.Use(middleware.BodyLimitMiddleware(cfg.RequestBodyMaxSize))
	v1Group.Use(middleware.ClientAuthMiddleware(cfg))
	{
		v1Group.POST("/messages", handlers.CreateMessage(cfg, client, sessions, reqLog))
		v1Group.POST("/messages/count_tokens", handlers.CountTokens())
	}

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("\n🚀 Claude-to-OpenAI 代理已启动\n")
	fmt.Printf("📌 版本: %s\n", Version)
	if BuildTime != "unknown" {
		fmt.Printf("🕐 构建时间: %s\n", BuildTime)
	}
	if GitCommit != "unknown" {
		fmt.Printf("🔖 Git提交: %s\n", GitCommit)
	}
	fmt.Printf("📍 监听地址: http://%s\n", addr)
	fmt.Printf("📋 Claude Messages: POST /v1/messages\n")
	fmt.Printf("📋 Token 估算: POST /v1/messages/count_tokens\n")
	fmt.Printf("💚 健康检查: GET /health\n")
	fmt.Printf("🔌 上游: %s (wire_api=%s)\n", cfg.OpenAIBaseURL, cfg.WireAPI)
	fmt.Printf("\n")

	if err := r.Run(addr); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}
