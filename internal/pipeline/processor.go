// Package pipeline 定义了异步语料库比对的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"originality-go/internal/config"
	"originality-go/internal/model"
	"originality-go/internal/repository"
	"originality-go/internal/similarity"
	"originality-go/pkg/es"
	"originality-go/pkg/log"
	"originality-go/pkg/tasks"
	"sort"
)

// Processor 封装了异步阶段的所有依赖和逻辑。
// 每个任务对应一份文档：入库、索引、候选检索、重打分、行更新。
// 单份文档的失败不会波及批次中的兄弟文档，也不会影响已经返回的同步响应。
type Processor struct {
	corpusRepo     repository.CorpusRepository
	comparisonRepo repository.ComparisonRepository
	auditRepo      repository.AuditRepository
	searcher       es.Searcher
	indexer        es.Indexer
	scorer         *similarity.Scorer
	classifier     *similarity.Classifier
	cfg            config.SimilarityConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	corpusRepo repository.CorpusRepository,
	comparisonRepo repository.ComparisonRepository,
	auditRepo repository.AuditRepository,
	searcher es.Searcher,
	indexer es.Indexer,
	scorer *similarity.Scorer,
	classifier *similarity.Classifier,
	cfg config.SimilarityConfig,
) *Processor {
	return &Processor{
		corpusRepo:     corpusRepo,
		comparisonRepo: comparisonRepo,
		auditRepo:      auditRepo,
		searcher:       searcher,
		indexer:        indexer,
		scorer:         scorer,
		classifier:     classifier,
		cfg:            cfg,
	}
}

// Process 是异步阶段的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.RepositoryScanTask) error {
	log.Infof("[Processor] 开始语料库比对, comparisonID=%d, file=%s, category=%s",
		task.ComparisonID, task.FileName, task.Category)
	fp := task.Fingerprint

	// 1. 内容寻址入库：相同哈希+类别的并发插入解析为"返回已有条目"
	entry, created, err := p.corpusRepo.InsertOrGet(&model.RepositoryEntry{
		ContentHash: fp.ContentHash,
		Category:    task.Category,
		FileName:    task.FileName,
		BatchID:     task.BatchID,
		WordCount:   fp.WordCount,
		PageCount:   fp.PageCount,
		Keywords:    model.StringList(fp.Keywords),
		TextObject:  task.TextObject,
	})
	if err != nil {
		p.markFailed(task.ComparisonID, err)
		return fmt.Errorf("语料库入库失败: %w", err)
	}
	log.Infof("[Processor] 步骤1: 语料库入库完成, entryID=%d, created=%v", entry.ID, created)

	// 2. 新条目才需要写向量索引；重复提交复用已有索引文档
	if created {
		doc := model.EsCorpusDocument{
			EntryID:     entry.ID,
			ContentHash: fp.ContentHash,
			FileName:    task.FileName,
			Category:    task.Category,
			BatchID:     task.BatchID,
			Keywords:    fp.Keywords,
			Vector:      fp.Embedding,
			WordCount:   fp.WordCount,
			PageCount:   fp.PageCount,
		}
		if err := p.indexer.IndexEntry(ctx, doc); err != nil {
			p.markFailed(task.ComparisonID, err)
			return fmt.Errorf("向量索引写入失败: %w", err)
		}
		log.Infof("[Processor] 步骤2: 向量索引写入完成, entryID=%d", entry.ID)
	}

	// 3. 候选检索：相似度下限远低于标记阈值，避免近似索引造成漏报；
	//    结构化过滤在昂贵的重打分之前剪掉明显不匹配的候选
	candidates, err := p.searcher.SearchCandidates(ctx, es.CandidateQuery{
		Embedding:       fp.Embedding,
		Keywords:        fp.Keywords,
		Category:        task.Category,
		ExcludeBatchID:  task.BatchID,
		WordCount:       fp.WordCount,
		PageCount:       fp.PageCount,
		MaxCandidates:   p.cfg.MaxCandidates,
		SimilarityFloor: p.cfg.CandidateFloor,
	})
	if err != nil {
		// 检索协作方故障按"本轮没有语料库匹配"处理，不拖垮兄弟文档
		p.markFailed(task.ComparisonID, err)
		return fmt.Errorf("候选检索失败: %w", err)
	}
	log.Infof("[Processor] 步骤3: 候选检索完成, 候选数=%d", len(candidates))

	// 4. 重打分：索引自身的度量可能与分级用的混合度量不同，
	//    每个候选都必须经过混合打分器重新评估
	matches := p.rescoreCandidates(&fp, entry.ID, created, task.BatchID, candidates)

	// 5. 行更新：合并语料库匹配，重算最高分，分级只升不降
	if err := p.updateRow(task.ComparisonID, matches); err != nil {
		p.markFailed(task.ComparisonID, err)
		return err
	}

	log.Infof("[Processor] 语料库比对完成, comparisonID=%d, 匹配数=%d", task.ComparisonID, len(matches))
	return nil
}

// rescoreCandidates 用混合打分器重评所有候选，排除同批次孪生，
// 低于候选下限的丢弃，结果按分数降序取 top-K。
// 自身条目只在本次新建时排除：去重命中的已有条目来自更早的批次，
// 正是必须被标记的跨批次重复提交，照常重打分（哈希相同会短路为 1.0）。
func (p *Processor) rescoreCandidates(fp *model.DocumentFingerprint, ownEntryID uint, ownEntryCreated bool, batchID string, candidates []es.Candidate) model.MatchList {
	matches := make(model.MatchList, 0, len(candidates))
	for _, c := range candidates {
		doc := c.Doc
		if doc.EntryID == ownEntryID && ownEntryCreated {
			continue
		}
		if doc.BatchID == batchID {
			continue
		}

		var match model.Match
		if len(doc.Vector) == 0 {
			// 索引文档缺少向量时无法重打分，降级使用索引原始分数
			score := clamp01(c.RawScore)
			match = model.Match{
				TargetID:   doc.EntryID,
				TargetName: doc.FileName,
				TargetHash: doc.ContentHash,
				Score:      score,
				Method:     model.MethodVectorCandidate,
				Flagged:    score >= p.cfg.FlagThreshold,
			}
		} else {
			candidateFP := &model.DocumentFingerprint{
				ContentHash: doc.ContentHash,
				Embedding:   doc.Vector,
				Keywords:    doc.Keywords,
				WordCount:   doc.WordCount,
				PageCount:   doc.PageCount,
			}
			res := p.scorer.Score(fp, candidateFP)
			match = model.Match{
				TargetID:   doc.EntryID,
				TargetName: doc.FileName,
				TargetHash: doc.ContentHash,
				Score:      res.Score,
				Method:     res.Method,
				Flagged:    res.Flagged,
				Breakdown:  res.Breakdown,
			}
		}

		if match.Score < p.cfg.CandidateFloor {
			continue
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > p.cfg.MaxMatches {
		matches = matches[:p.cfg.MaxMatches]
	}
	return matches
}

// updateRow 按行 id 读-改-写：合并匹配、重算最高分、分级单调不降。
func (p *Processor) updateRow(comparisonID uint, matches model.MatchList) error {
	row, err := p.comparisonRepo.FindByID(comparisonID)
	if err != nil {
		return fmt.Errorf("读取比对结果行失败: %w", err)
	}

	maxScore := row.MaxSimilarityScore
	for _, m := range matches {
		if m.Score > maxScore {
			maxScore = m.Score
		}
	}
	// 同步阶段确立的风险等级是下界，语料库证据只能把它推得更高
	status := similarity.HigherRisk(row.Status, p.classifier.Classify(maxScore))

	if err := p.comparisonRepo.UpdateRepositoryMatches(comparisonID, matches, maxScore, status); err != nil {
		return fmt.Errorf("更新比对结果行失败: %w", err)
	}

	if err := p.auditRepo.Append(comparisonID, "engine.repository_scan", "repository_matches.updated", map[string]interface{}{
		"status":  status,
		"matches": matches,
	}); err != nil {
		log.Warnf("[Processor] 审计记录写入失败: comparisonID=%d, err=%v", comparisonID, err)
	}
	return nil
}

// markFailed 在行上标记异步阶段失败，错误细节进日志与审计。
func (p *Processor) markFailed(comparisonID uint, cause error) {
	if err := p.comparisonRepo.MarkRepoScanFailed(comparisonID, cause.Error()); err != nil {
		log.Errorf("[Processor] 标记扫描失败状态时出错: comparisonID=%d, err=%v", comparisonID, err)
	}
	if err := p.auditRepo.Append(comparisonID, "engine.repository_scan", "repository_scan.failed", map[string]interface{}{
		"error": cause.Error(),
	}); err != nil {
		log.Warnf("[Processor] 审计记录写入失败: comparisonID=%d, err=%v", comparisonID, err)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
