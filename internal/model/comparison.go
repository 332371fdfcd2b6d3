package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResultStatus 是一份比对结果的风险分级。
type ResultStatus string

const (
	StatusSafe    ResultStatus = "safe"
	StatusWarning ResultStatus = "warning"
	StatusFlagged ResultStatus = "flagged"
)

// SegmentsStatus 标记证据片段的抽取进度。
type SegmentsStatus string

const (
	SegmentsPending   SegmentsStatus = "pending"
	SegmentsCompleted SegmentsStatus = "completed"
)

// RepoScanStatus 标记异步语料库比对阶段的进度。
type RepoScanStatus string

const (
	RepoScanPending   RepoScanStatus = "pending"
	RepoScanCompleted RepoScanStatus = "completed"
	RepoScanFailed    RepoScanStatus = "failed"
)

// MatchList 以 JSON 列的形式持久化一组匹配记录。
type MatchList []Match

// Value 实现 driver.Valuer。
func (m MatchList) Value() (driver.Value, error) {
	if m == nil {
		m = MatchList{}
	}
	return json.Marshal(m)
}

// Scan 实现 sql.Scanner。
func (m *MatchList) Scan(value interface{}) error {
	if value == nil {
		*m = MatchList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("无法将 %T 扫描为 MatchList", value)
	}
}

// ComparisonResult 对应于数据库中的 comparison_results 表。
// 每份提交文档在每个批次中恰有一行；同步阶段创建，异步阶段更新一次，
// 此后除片段缓存字段外只读。
type ComparisonResult struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BatchID string `gorm:"type:varchar(36);not null;index" json:"batchId"`

	FileName    string `gorm:"type:varchar(255);not null" json:"fileName"`
	ContentHash string `gorm:"type:varchar(64);not null;index" json:"contentHash"`
	Category    string `gorm:"type:varchar(50);not null;index" json:"category"`
	// RawObject 是原始提交文件在对象存储中的位置，TextObject 是归一化文本的位置。
	RawObject  string `gorm:"type:varchar(255)" json:"rawObject"`
	TextObject string `gorm:"type:varchar(255)" json:"textObject"`

	WordCount int `gorm:"not null" json:"wordCount"`
	PageCount int `gorm:"not null" json:"pageCount"`

	InternalMatches    MatchList `gorm:"type:json" json:"internalMatches"`
	RepositoryMatches  MatchList `gorm:"type:json" json:"repositoryMatches"`
	MaxSimilarityScore float64   `gorm:"not null;default:0" json:"maxSimilarityScore"`

	Status ResultStatus `gorm:"type:varchar(10);not null;default:'safe'" json:"status"`

	RepoScanStatus RepoScanStatus `gorm:"type:varchar(10);not null;default:'pending'" json:"repoScanStatus"`
	RepoScanError  string         `gorm:"type:varchar(500)" json:"repoScanError,omitempty"`

	SegmentsStatus SegmentsStatus `gorm:"type:varchar(10);not null;default:'pending'" json:"segmentsStatus"`
	SegmentsObject string         `gorm:"type:varchar(255)" json:"segmentsObject,omitempty"`

	ProcessingTimeMs int64 `gorm:"not null;default:0" json:"processingTimeMs"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`

	// PersistError 不入库：当行写入失败时携带错误信息返回给调用方，
	// 保证计算结果不会因存储故障而对调用方不可见。
	PersistError string `gorm:"-" json:"persistError,omitempty"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ComparisonResult) TableName() string {
	return "comparison_results"
}

// FileError 描述批次中单个文件的失败（例如指纹生成失败），
// 该文件被排除在两个比对阶段之外，但不影响批次中的其他文件。
type FileError struct {
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

// BatchComparisonResponse 是 compare_batch 操作的同步返回值。
type BatchComparisonResponse struct {
	BatchID string              `json:"batchId"`
	Results []*ComparisonResult `json:"results"`
	Errors  []FileError         `json:"errors,omitempty"`
}
