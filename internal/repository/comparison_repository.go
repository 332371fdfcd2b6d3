// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"originality-go/internal/model"

	"gorm.io/gorm"
)

// ComparisonRepository 是 comparison_results 行的唯一写入方。
// 异步阶段通过按 id 的读-改-写更新行，除此之外不需要任何锁。
type ComparisonRepository interface {
	Create(result *model.ComparisonResult) error
	FindByID(id uint) (*model.ComparisonResult, error)
	// UpdateRepositoryMatches 一次性写入异步阶段的全部变更。
	UpdateRepositoryMatches(id uint, matches model.MatchList, maxScore float64, status model.ResultStatus) error
	MarkRepoScanFailed(id uint, reason string) error
	// UpdateSegments 写入片段缓存指针并把片段状态置为 completed。
	UpdateSegments(id uint, segmentsObject string) error
}

// comparisonRepository 是 ComparisonRepository 接口的 GORM 实现。
type comparisonRepository struct {
	db *gorm.DB
}

// NewComparisonRepository 创建一个新的 ComparisonRepository 实例。
func NewComparisonRepository(db *gorm.DB) ComparisonRepository {
	return &comparisonRepository{db: db}
}

// Create 创建同步阶段的部分结果行。
func (r *comparisonRepository) Create(result *model.ComparisonResult) error {
	return r.db.Create(result).Error
}

// FindByID 按行 id 查找比对结果。
func (r *comparisonRepository) FindByID(id uint) (*model.ComparisonResult, error) {
	var result model.ComparisonResult
	if err := r.db.First(&result, id).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateRepositoryMatches 写入语料库匹配、重算后的最高分与分级，
// 并把异步扫描状态置为 completed。status 由调用方保证单调不降。
func (r *comparisonRepository) UpdateRepositoryMatches(id uint, matches model.MatchList, maxScore float64, status model.ResultStatus) error {
	return r.db.Model(&model.ComparisonResult{}).Where("id = ?", id).Updates(map[string]interface{}{
		"repository_matches":   matches,
		"max_similarity_score": maxScore,
		"status":               status,
		"repo_scan_status":     model.RepoScanCompleted,
		"repo_scan_error":      "",
	}).Error
}

// MarkRepoScanFailed 记录异步阶段失败；行保持仅由同步证据决定的状态。
func (r *comparisonRepository) MarkRepoScanFailed(id uint, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return r.db.Model(&model.ComparisonResult{}).Where("id = ?", id).Updates(map[string]interface{}{
		"repo_scan_status": model.RepoScanFailed,
		"repo_scan_error":  reason,
	}).Error
}

// UpdateSegments 填入片段缓存对象并标记 completed。
func (r *comparisonRepository) UpdateSegments(id uint, segmentsObject string) error {
	return r.db.Model(&model.ComparisonResult{}).Where("id = ?", id).Updates(map[string]interface{}{
		"segments_status": model.SegmentsCompleted,
		"segments_object": segmentsObject,
	}).Error
}
