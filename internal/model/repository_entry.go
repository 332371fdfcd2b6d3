package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList 以 JSON 列的形式持久化字符串切片。
type StringList []string

// Value 实现 driver.Valuer。
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return json.Marshal(s)
}

// Scan 实现 sql.Scanner。
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("无法将 %T 扫描为 StringList", value)
	}
}

// RepositoryEntry 对应于数据库中的 repository_entries 表，即持久化语料库的一个成员。
// (content_hash, category) 上有唯一索引：同一类别下相同内容只存一份，
// 插入语义是 insert-or-return-existing。
type RepositoryEntry struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ContentHash string `gorm:"type:varchar(64);not null;uniqueIndex:idx_hash_category" json:"contentHash"`
	Category    string `gorm:"type:varchar(50);not null;uniqueIndex:idx_hash_category" json:"category"`

	FileName string `gorm:"type:varchar(255);not null" json:"fileName"`
	// BatchID 记录条目来源批次，候选检索用它排除同批次刚插入的孪生文档。
	BatchID string `gorm:"type:varchar(36);not null;index" json:"batchId"`

	WordCount int        `gorm:"not null" json:"wordCount"`
	PageCount int        `gorm:"not null" json:"pageCount"`
	Keywords  StringList `gorm:"type:json" json:"keywords"`

	// TextObject 是归一化文本在对象存储中的位置，片段抽取时读取。
	TextObject string `gorm:"type:varchar(255)" json:"textObject"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (RepositoryEntry) TableName() string {
	return "repository_entries"
}

// EsCorpusDocument 代表存储在 Elasticsearch 语料库索引中的文档结构。
type EsCorpusDocument struct {
	EntryID     uint      `json:"entry_id"`
	ContentHash string    `json:"content_hash"`
	FileName    string    `json:"file_name"`
	Category    string    `json:"category"`
	BatchID     string    `json:"batch_id"`
	Keywords    []string  `json:"keywords"`
	Vector      []float32 `json:"vector"`
	WordCount   int       `json:"word_count"`
	PageCount   int       `json:"page_count"`
}
