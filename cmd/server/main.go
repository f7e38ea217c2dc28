package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courierledger/internal/auth"
	"courierledger/internal/config"
	"courierledger/internal/handler"
	"courierledger/internal/infrastructure/cache"
	"courierledger/internal/infrastructure/database"
	"courierledger/internal/infrastructure/lock"
	"courierledger/internal/infrastructure/logging"
	"courierledger/internal/infrastructure/mq"
	"courierledger/internal/job"
	"courierledger/pkg/idgen"

	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logging.L().Fatalf("加载配置失败: %v", err)
	}
	log := logging.Init(&cfg.Log)

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		log.Fatal(err)
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		log.Fatal(err)
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal(err)
	}
	defer redisClient.Close()

	// 初始化 Kafka
	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		log.Fatal(err)
	}
	defer publisher.Close()

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := handler.Dependencies{
		DB:            db,
		Locker:        lock.NewRedisLocker(redisClient, time.Duration(cfg.Business.PaymentLockTTLSeconds)*time.Second),
		Authenticator: auth.HeaderAuthenticator{},
		Config:        cfg,
	}
	h := handler.NewHandler(deps)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, publisher, cfg)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewLedgerReconcileJob(h.Ledger(), cfg)
	go reconcileJob.Start(ctx)

	// 设置路由
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := handler.SetupRouter(h, deps)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Infof("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("服务关闭异常: %v", err)
	}

	log.Info("服务已关闭")
}
