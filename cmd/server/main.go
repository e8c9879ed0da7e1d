package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-room/config"
	"chat-room/internal/handler"
	"chat-room/internal/model"
	"chat-room/internal/repository"
	"chat-room/internal/service"
	"chat-room/pkg/assistant"
	dbPkg "chat-room/pkg/db"
	"chat-room/pkg/jwt"
	"chat-room/pkg/logger"
	redisPkg "chat-room/pkg/redis"
	"chat-room/pkg/response"
	"chat-room/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== 聊天室服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("database_name", cfg.Database.Database),
		zap.String("room", cfg.Room.Name),
		zap.Duration("send_cooldown", cfg.Room.SendCooldown),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	if _, err := dbPkg.InitDB(cfg.Database); err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(&model.User{}, &model.Message{}); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 3.2 初始化Redis（在场状态、历史缓存、助手模式偏好）
	if err := redisPkg.InitRedis(cfg.Redis); err != nil {
		log.Fatal("Redis连接失败", zap.Error(err))
	}
	defer redisPkg.Close()
	log.Info("Redis连接成功")

	// 3.3 初始化业务服务
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	userRepo := repository.NewUserRepository()
	messageRepo := repository.NewMessageRepository(dbPkg.GetDB())
	userSvc := service.NewUserService(userRepo, jwtSvc)

	// 助手未配置密钥时房间照常工作，只是不响应机器人命令
	var bot *service.BotService
	if cfg.Assistant.APIKey != "" {
		assistantClient, err := assistant.NewOpenAI(cfg.Assistant)
		if err != nil {
			log.Fatal("助手客户端初始化失败", zap.Error(err))
		}
		bot = service.NewBotService(assistantClient, messageRepo, cfg.Room, cfg.Assistant)
		log.Info("助手已启用", zap.String("model", cfg.Assistant.Model))
	} else {
		log.Warn("未配置助手API密钥，机器人命令将不被响应")
	}

	roomSvc := service.NewRoomService(messageRepo, cfg.Room, bot)
	userHandler := handler.NewUserHandler(userSvc, cfg.Room.Name)
	messageHandler := handler.NewMessageHandler(roomSvc)

	// 3.4 启动在场记录清理任务（覆盖传输层失联的连接）
	stopReaper := make(chan struct{})
	defer close(stopReaper)
	websocket.GetManager().StartPresenceReaper(cfg.Room.Name, 30*time.Second, stopReaper)

	// 4. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. 创建Gin路由
	router := gin.New()

	// 注入配置到Gin context，供WebSocket使用
	router.Use(func(c *gin.Context) {
		c.Set("jwt_config", cfg.JWT)
		c.Set("ws_config", cfg.WebSocket)
		c.Set("room_config", cfg.Room)
		c.Next()
	})

	// 使用中间件
	router.Use(logger.LoggerMiddleware())      // 自定义日志中间件
	router.Use(logger.ErrorLoggerMiddleware()) // 错误日志中间件

	// 6. 设置基础路由
	setupBasicRoutes(router)

	// 6.1 绑定业务路由
	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			// 公开接口（无需认证）
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)
		}

		// 消息路由：游客与认证用户都可参与，宽松认证
		messages := v1.Group("/messages")
		messages.Use(jwtSvc.OptionalAuthMiddleware())
		{
			messages.GET("", messageHandler.History)                              // 历史消息（初始批量加载）
			messages.POST("", messageHandler.Send)                                // 发送消息
			messages.PUT("/:message_id", messageHandler.Edit)                     // 编辑消息
			messages.DELETE("/:message_id", messageHandler.Delete)                // 软删除消息
			messages.PUT("/:message_id/pin", messageHandler.TogglePin)            // 切换置顶（处理器内校验认证）
			messages.POST("/:message_id/reactions", messageHandler.ToggleReaction) // 切换表情反应
		}

		// 助手设置
		assistantGroup := v1.Group("/assistant")
		assistantGroup.Use(jwtSvc.OptionalAuthMiddleware())
		{
			assistantGroup.PUT("/mode", messageHandler.SetAssistantMode) // 设置回复模式偏好
		}

		// 在场信息
		v1.GET("/presence", userHandler.GetPresence)
	}

	// WebSocket路由（通知通道）
	router.GET("/ws", websocket.WsHandler)

	// 7. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. 启动HTTP服务器
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")

	// 设置关闭超时
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 关闭HTTP服务器
	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	log.Info("服务器已安全关闭")
}

// setupBasicRoutes 设置基础路由
func setupBasicRoutes(router *gin.Engine) {
	// 健康检查
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "db-down"
		} else if err := redisPkg.HealthCheck(); err != nil {
			status = "redis-down"
		}
		response.Success(c, gin.H{
			"status":  status,
			"message": "聊天室服务运行状态",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 根路径
	// 完整url为：http://localhost:8080/
	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "欢迎使用聊天室服务",
			"version": "1.0.0",
		})
	})
}
