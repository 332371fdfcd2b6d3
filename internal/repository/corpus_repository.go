package repository

import (
	"errors"
	"fmt"
	"originality-go/internal/model"

	"gorm.io/gorm"
)

// CorpusRepository 管理持久化语料库（repository_entries 表）。
type CorpusRepository interface {
	// InsertOrGet 按 (content_hash, category) 做内容寻址插入。
	// 返回值 created 为 false 时表示条目已存在，返回已有条目。
	// 并发插入相同哈希时由唯一索引保证幂等。
	InsertOrGet(entry *model.RepositoryEntry) (result *model.RepositoryEntry, created bool, err error)
	FindByID(id uint) (*model.RepositoryEntry, error)
}

// corpusRepository 是 CorpusRepository 接口的 GORM 实现。
type corpusRepository struct {
	db *gorm.DB
}

// NewCorpusRepository 创建一个新的 CorpusRepository 实例。
func NewCorpusRepository(db *gorm.DB) CorpusRepository {
	return &corpusRepository{db: db}
}

// InsertOrGet 先尝试插入，撞上唯一索引时回读已有条目。
// 两个学生并发提交字节相同的文件时，恰好一方插入成功，另一方拿到相同条目。
func (r *corpusRepository) InsertOrGet(entry *model.RepositoryEntry) (*model.RepositoryEntry, bool, error) {
	err := r.db.Create(entry).Error
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, fmt.Errorf("插入语料库条目失败: %w", err)
	}

	var existing model.RepositoryEntry
	if err := r.db.Where("content_hash = ? AND category = ?", entry.ContentHash, entry.Category).
		First(&existing).Error; err != nil {
		return nil, false, fmt.Errorf("回读已有语料库条目失败: %w", err)
	}
	return &existing, false, nil
}

// FindByID 按 id 查找语料库条目。
func (r *corpusRepository) FindByID(id uint) (*model.RepositoryEntry, error) {
	var entry model.RepositoryEntry
	if err := r.db.First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
