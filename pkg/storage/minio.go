// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"originality-go/internal/config"
	"originality-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ErrObjectNotFound 表示请求的对象在存储桶中不存在。
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 是引擎对对象存储协作方的依赖面：
// 原始提交文件、语料文本和片段缓存都通过它读写。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) error
	Get(ctx context.Context, objectName string) ([]byte, error)
	Exists(ctx context.Context, objectName string) (bool, error)
}

// Store 是 ObjectStore 的 MinIO 实现，绑定单一存储桶。
type Store struct {
	bucket string
}

// NewStore 创建一个绑定到配置存储桶的 Store。
func NewStore(cfg config.MinIOConfig) *Store {
	return &Store{bucket: cfg.BucketName}
}

// Put 写入一个对象，已存在时直接覆盖（内容寻址的对象写入是幂等的）。
func (s *Store) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	_, err := MinioClient.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Get 读取整个对象内容。
func (s *Store) Get(ctx context.Context, objectName string) ([]byte, error) {
	object, err := MinioClient.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

// Exists 检查对象是否存在。
func (s *Store) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := MinioClient.StatObject(ctx, s.bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
