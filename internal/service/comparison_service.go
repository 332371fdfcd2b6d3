// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"originality-go/internal/config"
	"originality-go/internal/fingerprint"
	"originality-go/internal/model"
	"originality-go/internal/repository"
	"originality-go/internal/similarity"
	"originality-go/pkg/kafka"
	"originality-go/pkg/log"
	"originality-go/pkg/storage"
	"originality-go/pkg/tasks"
	"originality-go/pkg/tika"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Extractor 是文本抽取协作方的依赖面，由 Tika 客户端实现。
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (*tika.Extracted, error)
}

// SubmittedFile 是一次批量提交中的一个文件。
type SubmittedFile struct {
	FileName string
	Content  []byte
}

// ComparisonService 是引擎对外的同步操作面：compare_batch。
type ComparisonService interface {
	// CompareBatch 对一个批次做同步的批内全对比对，持久化部分结果行，
	// 并为每份文档投递一个异步语料库比对任务。请求返回时批内抄袭已判定完毕。
	CompareBatch(ctx context.Context, category string, files []SubmittedFile) (*model.BatchComparisonResponse, error)
	GetResult(ctx context.Context, id uint) (*model.ComparisonResult, error)
}

type comparisonService struct {
	extractor      Extractor
	generator      *fingerprint.Generator
	scorer         *similarity.Scorer
	classifier     *similarity.Classifier
	comparisonRepo repository.ComparisonRepository
	auditRepo      repository.AuditRepository
	store          storage.ObjectStore
	publisher      kafka.Publisher
	cfg            config.SimilarityConfig
}

// NewComparisonService 创建一个新的 ComparisonService 实例。
func NewComparisonService(
	extractor Extractor,
	generator *fingerprint.Generator,
	scorer *similarity.Scorer,
	classifier *similarity.Classifier,
	comparisonRepo repository.ComparisonRepository,
	auditRepo repository.AuditRepository,
	store storage.ObjectStore,
	publisher kafka.Publisher,
	cfg config.SimilarityConfig,
) ComparisonService {
	return &comparisonService{
		extractor:      extractor,
		generator:      generator,
		scorer:         scorer,
		classifier:     classifier,
		comparisonRepo: comparisonRepo,
		auditRepo:      auditRepo,
		store:          store,
		publisher:      publisher,
		cfg:            cfg,
	}
}

// batchDocument 是同步阶段内部流转的一份已指纹化文档。
type batchDocument struct {
	fileName    string
	fingerprint *model.DocumentFingerprint
	rawObject   string
	textObject  string
}

// CompareBatch 实现同步阶段：抽取、指纹、批内全对比对、部分行写入、任务投递。
func (s *comparisonService) CompareBatch(ctx context.Context, category string, files []SubmittedFile) (*model.BatchComparisonResponse, error) {
	if len(files) == 0 {
		return nil, errors.New("批次不能为空")
	}
	batchID := uuid.NewString()
	start := time.Now()
	log.Infof("[ComparisonService] 开始处理批次 %s, category=%s, 文件数=%d", batchID, category, len(files))

	var docs []*batchDocument
	var fileErrors []model.FileError

	// 1. 逐文件：存原始文件、抽取文本、生成指纹。单个文件失败不拖垮批次。
	for _, f := range files {
		doc, err := s.prepareDocument(ctx, batchID, f)
		if err != nil {
			log.Warnf("[ComparisonService] 文件 '%s' 预处理失败: %v", f.FileName, err)
			fileErrors = append(fileErrors, model.FileError{FileName: f.FileName, Reason: err.Error()})
			continue
		}
		docs = append(docs, doc)
	}

	// 2. 批内全对比对：批次规模有界（几十，不是几千），O(N²) 足够便宜。
	internalMatches := s.compareWithinBatch(docs)

	// 3. 持久化部分结果行并投递异步任务
	results := make([]*model.ComparisonResult, 0, len(docs))
	elapsed := time.Since(start).Milliseconds()
	for i, doc := range docs {
		matches := internalMatches[i]
		maxScore := 0.0
		if len(matches) > 0 {
			maxScore = matches[0].Score
		}
		status := s.classifier.Classify(maxScore)

		row := &model.ComparisonResult{
			BatchID:            batchID,
			FileName:           doc.fileName,
			ContentHash:        doc.fingerprint.ContentHash,
			Category:           category,
			RawObject:          doc.rawObject,
			TextObject:         doc.textObject,
			WordCount:          doc.fingerprint.WordCount,
			PageCount:          doc.fingerprint.PageCount,
			InternalMatches:    matches,
			RepositoryMatches:  model.MatchList{},
			MaxSimilarityScore: maxScore,
			Status:             status,
			RepoScanStatus:     model.RepoScanPending,
			SegmentsStatus:     model.SegmentsPending,
			ProcessingTimeMs:   elapsed,
		}

		if err := s.comparisonRepo.Create(row); err != nil {
			// 存储故障不应让调用方对已完成的计算视而不见：
			// 结果仍然带着错误标记返回，但没有行 id，异步阶段无从更新，跳过投递。
			log.Errorf("[ComparisonService] 结果行写入失败: file=%s, err=%v", doc.fileName, err)
			row.PersistError = err.Error()
			results = append(results, row)
			continue
		}

		if err := s.auditRepo.Append(row.ID, "engine.sync", "comparison.created", map[string]interface{}{
			"status":  status,
			"matches": matches,
		}); err != nil {
			log.Warnf("[ComparisonService] 审计记录写入失败: comparisonID=%d, err=%v", row.ID, err)
		}

		task := tasks.RepositoryScanTask{
			ComparisonID: row.ID,
			BatchID:      batchID,
			Category:     category,
			FileName:     doc.fileName,
			TextObject:   doc.textObject,
			Fingerprint:  *doc.fingerprint,
		}
		if err := s.publisher.PublishScanTask(task); err != nil {
			// 任务投递失败是尽力而为语义：该行永远收不到语料库更新，仅此而已
			log.Errorf("[ComparisonService] 投递语料库比对任务失败: comparisonID=%d, err=%v", row.ID, err)
			_ = s.comparisonRepo.MarkRepoScanFailed(row.ID, fmt.Sprintf("任务投递失败: %v", err))
		}

		results = append(results, row)
	}

	log.Infof("[ComparisonService] 批次 %s 同步阶段完成, 成功=%d, 失败=%d, 耗时=%dms",
		batchID, len(results), len(fileErrors), elapsed)
	return &model.BatchComparisonResponse{
		BatchID: batchID,
		Results: results,
		Errors:  fileErrors,
	}, nil
}

// prepareDocument 存储原始文件与抽取文本，生成指纹。
func (s *comparisonService) prepareDocument(ctx context.Context, batchID string, f SubmittedFile) (*batchDocument, error) {
	rawObject := fmt.Sprintf("submissions/%s/%s", batchID, f.FileName)
	if err := s.store.Put(ctx, rawObject, f.Content, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("存储原始文件失败: %w", err)
	}

	extracted, err := s.extractor.Extract(ctx, f.Content, f.FileName)
	if err != nil {
		return nil, fmt.Errorf("文本抽取失败: %w", err)
	}

	fp, err := s.generator.Generate(ctx, f.FileName, extracted.Text, extracted.WordCount, extracted.PageCount)
	if err != nil {
		return nil, err
	}

	// 抽取文本按内容哈希寻址存储：片段抽取阶段用它定位双方原文，
	// 内容相同的文档天然共享同一个对象。
	textObject := TextObjectName(fp.ContentHash)
	if err := s.store.Put(ctx, textObject, []byte(extracted.Text), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("存储抽取文本失败: %w", err)
	}

	return &batchDocument{
		fileName:    f.FileName,
		fingerprint: fp,
		rawObject:   rawObject,
		textObject:  textObject,
	}, nil
}

// compareWithinBatch 对批内文档做全对比对，返回每份文档按分数降序的 top-K 匹配。
// 自比对排除；低于候选下限的配对不作为证据保留。
func (s *comparisonService) compareWithinBatch(docs []*batchDocument) map[int]model.MatchList {
	matches := make(map[int]model.MatchList, len(docs))
	for i := range docs {
		var list model.MatchList
		for j := range docs {
			if i == j {
				continue
			}
			res := s.scorer.Score(docs[i].fingerprint, docs[j].fingerprint)
			if res.Score < s.cfg.CandidateFloor {
				continue
			}
			list = append(list, model.Match{
				TargetName: docs[j].fileName,
				TargetHash: docs[j].fingerprint.ContentHash,
				Score:      res.Score,
				Method:     res.Method,
				Flagged:    res.Flagged,
				Breakdown:  res.Breakdown,
			})
		}
		sort.SliceStable(list, func(a, b int) bool { return list[a].Score > list[b].Score })
		if len(list) > s.cfg.MaxMatches {
			list = list[:s.cfg.MaxMatches]
		}
		if list == nil {
			list = model.MatchList{}
		}
		matches[i] = list
	}
	return matches
}

// GetResult 按行 id 返回一份比对结果。
func (s *comparisonService) GetResult(_ context.Context, id uint) (*model.ComparisonResult, error) {
	return s.comparisonRepo.FindByID(id)
}

// TextObjectName 返回内容哈希对应的抽取文本对象名。
func TextObjectName(contentHash string) string {
	return fmt.Sprintf("corpus-texts/%s.txt", contentHash)
}
