package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"originality-go/internal/config"
	"originality-go/internal/model"
	"originality-go/internal/repository"
	"originality-go/internal/segment"
	"originality-go/pkg/log"
	"originality-go/pkg/storage"
	"strings"
	"time"
)

// ErrSegmentsInProgress 表示另一个请求正在为同一行做片段对齐。
var ErrSegmentsInProgress = errors.New("segment extraction in progress")

// SegmentService 是引擎对外的 get_segments 操作面：按需、惰性、幂等。
type SegmentService interface {
	// GetSegments 返回一行比对结果的证据摘录对。
	// 首次调用执行句级对齐并写入缓存；此后的调用直接返回缓存，代价为零。
	GetSegments(ctx context.Context, comparisonID uint) ([]model.Segment, error)
}

type segmentService struct {
	comparisonRepo repository.ComparisonRepository
	auditRepo      repository.AuditRepository
	store          storage.ObjectStore
	locker         repository.Locker
	cfg            config.SimilarityConfig
}

// NewSegmentService 创建一个新的 SegmentService 实例。
func NewSegmentService(
	comparisonRepo repository.ComparisonRepository,
	auditRepo repository.AuditRepository,
	store storage.ObjectStore,
	locker repository.Locker,
	cfg config.SimilarityConfig,
) SegmentService {
	return &segmentService{
		comparisonRepo: comparisonRepo,
		auditRepo:      auditRepo,
		store:          store,
		locker:         locker,
		cfg:            cfg,
	}
}

// GetSegments 实现惰性缓存的片段抽取。
func (s *segmentService) GetSegments(ctx context.Context, comparisonID uint) ([]model.Segment, error) {
	row, err := s.comparisonRepo.FindByID(comparisonID)
	if err != nil {
		return nil, fmt.Errorf("查找比对结果失败: %w", err)
	}

	// 快路径：缓存命中直接返回，不重复任何对齐工作
	if segments, ok := s.loadCached(ctx, row); ok {
		return segments, nil
	}

	// 抢占锁保证昂贵的对齐只执行一次；没抢到就等对方完成
	lockKey := fmt.Sprintf("segments:lock:%d", comparisonID)
	acquired, err := s.locker.TryLock(ctx, lockKey, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("获取片段抽取锁失败: %w", err)
	}
	if !acquired {
		return s.waitForCompletion(ctx, comparisonID)
	}
	defer func() {
		if err := s.locker.Unlock(ctx, lockKey); err != nil {
			log.Warnf("[SegmentService] 释放片段抽取锁失败: comparisonID=%d, err=%v", comparisonID, err)
		}
	}()

	// 拿到锁后重读一次：前一个持锁者可能已经写好缓存
	row, err = s.comparisonRepo.FindByID(comparisonID)
	if err != nil {
		return nil, fmt.Errorf("查找比对结果失败: %w", err)
	}
	if segments, ok := s.loadCached(ctx, row); ok {
		return segments, nil
	}

	segments, err := s.extract(ctx, row)
	if err != nil {
		return nil, err
	}

	// 先持久化缓存并标记 completed，再返回：操作可重启、可中断
	data, err := json.Marshal(segments)
	if err != nil {
		return nil, fmt.Errorf("序列化片段失败: %w", err)
	}
	objectName := fmt.Sprintf("segments/%d.json", comparisonID)
	if err := s.store.Put(ctx, objectName, data, "application/json"); err != nil {
		return nil, fmt.Errorf("写入片段缓存失败: %w", err)
	}
	if err := s.comparisonRepo.UpdateSegments(comparisonID, objectName); err != nil {
		return nil, fmt.Errorf("更新片段状态失败: %w", err)
	}
	if err := s.auditRepo.Append(comparisonID, "engine.segments", "segments.completed", map[string]interface{}{
		"count": len(segments),
	}); err != nil {
		log.Warnf("[SegmentService] 审计记录写入失败: comparisonID=%d, err=%v", comparisonID, err)
	}

	log.Infof("[SegmentService] 片段抽取完成: comparisonID=%d, 片段数=%d", comparisonID, len(segments))
	return segments, nil
}

// loadCached 尝试从对象存储读取已完成的片段缓存。
func (s *segmentService) loadCached(ctx context.Context, row *model.ComparisonResult) ([]model.Segment, bool) {
	if row.SegmentsStatus != model.SegmentsCompleted || row.SegmentsObject == "" {
		return nil, false
	}
	data, err := s.store.Get(ctx, row.SegmentsObject)
	if err != nil {
		log.Warnf("[SegmentService] 片段缓存读取失败, 将重新对齐: comparisonID=%d, err=%v", row.ID, err)
		return nil, false
	}
	var segments []model.Segment
	if err := json.Unmarshal(data, &segments); err != nil {
		log.Warnf("[SegmentService] 片段缓存解析失败, 将重新对齐: comparisonID=%d, err=%v", row.ID, err)
		return nil, false
	}
	return segments, true
}

// waitForCompletion 等待持锁方写入缓存，超时后报告仍在进行中。
func (s *segmentService) waitForCompletion(ctx context.Context, comparisonID uint) ([]model.Segment, error) {
	for i := 0; i < 10; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(300 * time.Millisecond):
		}
		row, err := s.comparisonRepo.FindByID(comparisonID)
		if err != nil {
			return nil, err
		}
		if segments, ok := s.loadCached(ctx, row); ok {
			return segments, nil
		}
	}
	return nil, ErrSegmentsInProgress
}

// extract 选取分数最高且可定位文本的匹配对象，执行句级对齐。
// 没有任何匹配证据的行得到空片段列表（同样会被缓存）。
func (s *segmentService) extract(ctx context.Context, row *model.ComparisonResult) ([]model.Segment, error) {
	best := bestMatch(row)
	if best == nil {
		return []model.Segment{}, nil
	}

	srcData, err := s.store.Get(ctx, row.TextObject)
	if err != nil {
		return nil, fmt.Errorf("读取源文本失败: %w", err)
	}
	dstData, err := s.store.Get(ctx, TextObjectName(best.TargetHash))
	if err != nil {
		return nil, fmt.Errorf("读取匹配方文本失败: %w", err)
	}

	dstText := string(dstData)
	dstPages := (len(strings.Fields(dstText)) + 299) / 300
	if dstPages < 1 {
		dstPages = 1
	}

	return segment.Align(string(srcData), dstText, row.PageCount, dstPages, s.cfg.Segment), nil
}

// bestMatch 在批内与语料库匹配合并后选出分数最高、带文本指针的一条。
func bestMatch(row *model.ComparisonResult) *model.Match {
	var best *model.Match
	consider := func(m model.Match) {
		if m.TargetHash == "" {
			return
		}
		if best == nil || m.Score > best.Score {
			mm := m
			best = &mm
		}
	}
	for _, m := range row.InternalMatches {
		consider(m)
	}
	for _, m := range row.RepositoryMatches {
		consider(m)
	}
	return best
}
