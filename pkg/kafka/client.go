// Package kafka 提供了与 Kafka 消息队列交互的功能。
// 语料库比对阶段通过它与触发请求解耦：请求返回后任务仍在队列里，
// 进程自有的消费循环保证它最终被执行或在重试上限后放弃。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"originality-go/internal/config"
	"originality-go/pkg/database"
	"originality-go/pkg/log"
	"originality-go/pkg/tasks"
	"time"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a scan task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.RepositoryScanTask) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// Publisher 是同步阶段对任务队列的依赖面。
type Publisher interface {
	PublishScanTask(task tasks.RepositoryScanTask) error
}

// QueuePublisher 是 Publisher 的 Kafka 实现。
type QueuePublisher struct{}

// PublishScanTask 发送一个语料库比对任务到 Kafka。
func (QueuePublisher) PublishScanTask(task tasks.RepositoryScanTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Value: taskBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者来处理语料库比对任务。
// 单个任务失败不会影响批次中的兄弟文档：失败计数达到阈值后提交 offset 放弃，
// 对应行保持仅由同步阶段证据决定的状态。
func StartConsumer(cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "originality-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		var task tasks.RepositoryScanTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理语料库比对任务: comparisonID=%d, file=%s", task.ComparisonID, task.FileName)
		if err := processor.Process(context.Background(), task); err != nil {
			log.Errorf("语料库比对任务失败: comparisonID=%d, Error: %v", task.ComparisonID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("scan:attempts:%d", task.ComparisonID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("比对任务多次失败(>=3)，提交 offset 终止重试: comparisonID=%d", task.ComparisonID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("语料库比对任务处理成功: comparisonID=%d", task.ComparisonID)
			// 清理失败计数
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("scan:attempts:%d", task.ComparisonID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
