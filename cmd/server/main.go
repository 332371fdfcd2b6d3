// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"originality-go/internal/config"
	"originality-go/internal/fingerprint"
	"originality-go/internal/handler"
	"originality-go/internal/middleware"
	"originality-go/internal/model"
	"originality-go/internal/pipeline"
	"originality-go/internal/repository"
	"originality-go/internal/service"
	"originality-go/internal/similarity"
	"originality-go/pkg/database"
	"originality-go/pkg/embedding"
	"originality-go/pkg/es"
	"originality-go/pkg/kafka"
	"originality-go/pkg/log"
	"originality-go/pkg/storage"
	"originality-go/pkg/tika"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储、向量索引与消息队列
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(
		&model.ComparisonResult{},
		&model.RepositoryEntry{},
		&model.AuditLog{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	comparisonRepo := repository.NewComparisonRepository(database.DB)
	corpusRepo := repository.NewCorpusRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	locker := repository.NewRedisLocker(database.RDB)

	// 5. 初始化核心组件与 Service (依赖注入)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	esClient := es.NewClient(cfg.Elasticsearch)
	store := storage.NewStore(cfg.MinIO)

	generator := fingerprint.NewGenerator(embeddingClient, cfg.Similarity.MaxKeywords)
	scorer := similarity.NewScorer(cfg.Similarity)
	classifier := similarity.NewClassifier(cfg.Similarity)

	comparisonService := service.NewComparisonService(
		tikaClient, generator, scorer, classifier,
		comparisonRepo, auditRepo, store, kafka.QueuePublisher{}, cfg.Similarity,
	)
	segmentService := service.NewSegmentService(comparisonRepo, auditRepo, store, locker, cfg.Similarity)

	// 6. 初始化异步语料库比对管道 (Processor)
	processor := pipeline.NewProcessor(
		corpusRepo, comparisonRepo, auditRepo,
		esClient, esClient, scorer, classifier, cfg.Similarity,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		comparison := apiV1.Group("/comparison")
		{
			comparisonHandler := handler.NewComparisonHandler(comparisonService, segmentService)
			comparison.POST("/batch", comparisonHandler.CompareBatch)
			comparison.GET("/:id", comparisonHandler.GetResult)
			comparison.GET("/:id/segments", comparisonHandler.GetSegments)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器；未消费的比对任务留在 Kafka，重启后继续处理，不会丢失
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
