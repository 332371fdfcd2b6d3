// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Similarity    SimilarityConfig    `mapstructure:"similarity"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Provider 为 "local" 或 APIKey 为空时，使用内置的确定性向量化器。
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// WeightVector 描述一次混合打分中各信号的权重。
type WeightVector struct {
	Cosine      float64 `mapstructure:"cosine"`
	Jaccard     float64 `mapstructure:"jaccard"`
	LengthRatio float64 `mapstructure:"length_ratio"`
}

// SegmentConfig 存储片段抽取（证据摘录对齐）相关的参数。
type SegmentConfig struct {
	MinSentenceLen int     `mapstructure:"min_sentence_len"`
	PairThreshold  float64 `mapstructure:"pair_threshold"`
	MaxSegments    int     `mapstructure:"max_segments"`
	MaxStrongPairs int     `mapstructure:"max_strong_pairs"`
}

// SimilarityConfig 存储混合打分器与分级器的全部阈值和权重。
// 这些值是设计参数而非常量，测试需要能够注入边界值。
type SimilarityConfig struct {
	FlagThreshold     float64 `mapstructure:"flag_threshold"`
	WarnThreshold     float64 `mapstructure:"warn_threshold"`
	LowJaccardCutoff  float64 `mapstructure:"low_jaccard_cutoff"`
	LengthRatioCutoff float64 `mapstructure:"length_ratio_cutoff"`
	LengthPenalty     float64 `mapstructure:"length_penalty"`

	LowJaccardWeights WeightVector `mapstructure:"low_jaccard_weights"`
	BalancedWeights   WeightVector `mapstructure:"balanced_weights"`

	MaxKeywords    int     `mapstructure:"max_keywords"`
	MaxMatches     int     `mapstructure:"max_matches"`
	CandidateFloor float64 `mapstructure:"candidate_floor"`
	MaxCandidates  int     `mapstructure:"max_candidates"`

	Segment SegmentConfig `mapstructure:"segment"`
}

// DefaultSimilarity 返回与固定测试夹具对齐的默认阈值与权重。
func DefaultSimilarity() SimilarityConfig {
	return SimilarityConfig{
		FlagThreshold:     0.70,
		WarnThreshold:     0.40,
		LowJaccardCutoff:  0.15,
		LengthRatioCutoff: 0.5,
		LengthPenalty:     0.7,
		LowJaccardWeights: WeightVector{Cosine: 0.3, Jaccard: 0.6, LengthRatio: 0.1},
		BalancedWeights:   WeightVector{Cosine: 0.5, Jaccard: 0.4, LengthRatio: 0.1},
		MaxKeywords:       150,
		MaxMatches:        5,
		CandidateFloor:    0.30,
		MaxCandidates:     20,
		Segment: SegmentConfig{
			MinSentenceLen: 25,
			PairThreshold:  0.60,
			MaxSegments:    20,
			MaxStrongPairs: 60,
		},
	}
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setSimilarityDefaults(DefaultSimilarity())
	viper.SetDefault("embedding.provider", "local")
	viper.SetDefault("embedding.dimensions", 1024)

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// setSimilarityDefaults 将相似度默认值注册到 viper，配置文件可以逐项覆盖。
func setSimilarityDefaults(d SimilarityConfig) {
	viper.SetDefault("similarity.flag_threshold", d.FlagThreshold)
	viper.SetDefault("similarity.warn_threshold", d.WarnThreshold)
	viper.SetDefault("similarity.low_jaccard_cutoff", d.LowJaccardCutoff)
	viper.SetDefault("similarity.length_ratio_cutoff", d.LengthRatioCutoff)
	viper.SetDefault("similarity.length_penalty", d.LengthPenalty)
	viper.SetDefault("similarity.low_jaccard_weights.cosine", d.LowJaccardWeights.Cosine)
	viper.SetDefault("similarity.low_jaccard_weights.jaccard", d.LowJaccardWeights.Jaccard)
	viper.SetDefault("similarity.low_jaccard_weights.length_ratio", d.LowJaccardWeights.LengthRatio)
	viper.SetDefault("similarity.balanced_weights.cosine", d.BalancedWeights.Cosine)
	viper.SetDefault("similarity.balanced_weights.jaccard", d.BalancedWeights.Jaccard)
	viper.SetDefault("similarity.balanced_weights.length_ratio", d.BalancedWeights.LengthRatio)
	viper.SetDefault("similarity.max_keywords", d.MaxKeywords)
	viper.SetDefault("similarity.max_matches", d.MaxMatches)
	viper.SetDefault("similarity.candidate_floor", d.CandidateFloor)
	viper.SetDefault("similarity.max_candidates", d.MaxCandidates)
	viper.SetDefault("similarity.segment.min_sentence_len", d.Segment.MinSentenceLen)
	viper.SetDefault("similarity.segment.pair_threshold", d.Segment.PairThreshold)
	viper.SetDefault("similarity.segment.max_segments", d.Segment.MaxSegments)
	viper.SetDefault("similarity.segment.max_strong_pairs", d.Segment.MaxStrongPairs)
}
