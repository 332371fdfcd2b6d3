package pipeline

import (
	"context"
	"errors"
	"fmt"
	"originality-go/internal/config"
	"originality-go/internal/model"
	"originality-go/internal/similarity"
	"originality-go/pkg/es"
	"originality-go/pkg/log"
	"originality-go/pkg/tasks"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "json", "")
	m.Run()
}

// fakeCorpusRepo 按 (content_hash, category) 去重，模拟唯一索引语义。
type fakeCorpusRepo struct {
	nextID  uint
	entries map[string]*model.RepositoryEntry
	err     error
}

func newFakeCorpusRepo() *fakeCorpusRepo {
	return &fakeCorpusRepo{entries: make(map[string]*model.RepositoryEntry)}
}

func corpusKey(hash, category string) string {
	return hash + "|" + category
}

func (r *fakeCorpusRepo) InsertOrGet(entry *model.RepositoryEntry) (*model.RepositoryEntry, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	key := corpusKey(entry.ContentHash, entry.Category)
	if existing, ok := r.entries[key]; ok {
		return existing, false, nil
	}
	r.nextID++
	entry.ID = r.nextID
	r.entries[key] = entry
	return entry, true, nil
}

func (r *fakeCorpusRepo) FindByID(id uint) (*model.RepositoryEntry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeSearcher struct {
	candidates []es.Candidate
	err        error
	lastQuery  es.CandidateQuery
}

func (s *fakeSearcher) SearchCandidates(_ context.Context, query es.CandidateQuery) ([]es.Candidate, error) {
	s.lastQuery = query
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

type fakeIndexer struct {
	docs []model.EsCorpusDocument
	err  error
}

func (i *fakeIndexer) IndexEntry(_ context.Context, doc model.EsCorpusDocument) error {
	if i.err != nil {
		return i.err
	}
	i.docs = append(i.docs, doc)
	return nil
}

type fakeComparisonRepo struct {
	rows map[uint]*model.ComparisonResult
}

func (r *fakeComparisonRepo) Create(result *model.ComparisonResult) error {
	r.rows[result.ID] = result
	return nil
}

func (r *fakeComparisonRepo) FindByID(id uint) (*model.ComparisonResult, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *row
	return &clone, nil
}

func (r *fakeComparisonRepo) UpdateRepositoryMatches(id uint, matches model.MatchList, maxScore float64, status model.ResultStatus) error {
	row, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.RepositoryMatches = matches
	row.MaxSimilarityScore = maxScore
	row.Status = status
	row.RepoScanStatus = model.RepoScanCompleted
	row.RepoScanError = ""
	return nil
}

func (r *fakeComparisonRepo) MarkRepoScanFailed(id uint, reason string) error {
	row, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.RepoScanStatus = model.RepoScanFailed
	row.RepoScanError = reason
	return nil
}

func (r *fakeComparisonRepo) UpdateSegments(id uint, segmentsObject string) error {
	row, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.SegmentsStatus = model.SegmentsCompleted
	row.SegmentsObject = segmentsObject
	return nil
}

type fakeAuditRepo struct {
	actions []string
}

func (r *fakeAuditRepo) Append(_ uint, _, action string, _ interface{}) error {
	r.actions = append(r.actions, action)
	return nil
}

func (r *fakeAuditRepo) FindByComparisonID(uint) ([]model.AuditLog, error) {
	return nil, nil
}

type pipelineFixture struct {
	processor *Processor
	corpus    *fakeCorpusRepo
	rows      *fakeComparisonRepo
	audit     *fakeAuditRepo
	searcher  *fakeSearcher
	indexer   *fakeIndexer
}

func newPipelineFixture() *pipelineFixture {
	cfg := config.DefaultSimilarity()
	corpus := newFakeCorpusRepo()
	rows := &fakeComparisonRepo{rows: make(map[uint]*model.ComparisonResult)}
	audit := &fakeAuditRepo{}
	searcher := &fakeSearcher{}
	indexer := &fakeIndexer{}
	return &pipelineFixture{
		processor: NewProcessor(
			corpus, rows, audit, searcher, indexer,
			similarity.NewScorer(cfg), similarity.NewClassifier(cfg), cfg,
		),
		corpus:   corpus,
		rows:     rows,
		audit:    audit,
		searcher: searcher,
		indexer:  indexer,
	}
}

func testTask(comparisonID uint, batchID string) tasks.RepositoryScanTask {
	return tasks.RepositoryScanTask{
		ComparisonID: comparisonID,
		BatchID:      batchID,
		Category:     "essay",
		FileName:     "a.txt",
		TextObject:   "corpus-texts/hash-a.txt",
		Fingerprint: model.DocumentFingerprint{
			ContentHash: "hash-a",
			Embedding:   []float32{1, 0, 0},
			Keywords:    []string{"consensus", "replication", "quorum"},
			WordCount:   300,
			PageCount:   1,
		},
	}
}

func seedRow(f *pipelineFixture, id uint, status model.ResultStatus, maxScore float64) {
	f.rows.rows[id] = &model.ComparisonResult{
		ID:                 id,
		BatchID:            "batch-1",
		FileName:           "a.txt",
		Status:             status,
		MaxSimilarityScore: maxScore,
		RepoScanStatus:     model.RepoScanPending,
	}
}

func candidate(entryID uint, batchID, hash string, vector []float32, keywords []string, words, pages int, rawScore float64) es.Candidate {
	return es.Candidate{
		Doc: model.EsCorpusDocument{
			EntryID:     entryID,
			ContentHash: hash,
			FileName:    fmt.Sprintf("doc-%d.txt", entryID),
			Category:    "essay",
			BatchID:     batchID,
			Keywords:    keywords,
			Vector:      vector,
			WordCount:   words,
			PageCount:   pages,
		},
		RawScore: rawScore,
	}
}

func TestProcessIndexesRescoresAndUpdatesRow(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusSafe, 0)

	f.searcher.candidates = []es.Candidate{
		// 同批次孪生：索引层过滤的兜底，消费端同样排除
		candidate(7, "batch-1", "hash-twin", []float32{1, 0, 0}, []string{"consensus"}, 300, 1, 0.99),
		// 语料库里内容完全相同的旧条目
		candidate(8, "batch-0", "hash-a", []float32{1, 0, 0}, []string{"consensus", "replication", "quorum"}, 300, 1, 0.98),
		// 缺向量的候选：降级使用索引原始分数
		candidate(9, "batch-0", "hash-b", nil, nil, 280, 1, 0.55),
		// 低于候选下限，丢弃
		candidate(11, "batch-0", "hash-c", nil, nil, 900, 3, 0.10),
	}

	err := f.processor.Process(context.Background(), testTask(10, "batch-1"))
	require.NoError(t, err)

	// 新条目被索引
	require.Len(t, f.indexer.docs, 1)
	assert.Equal(t, "hash-a", f.indexer.docs[0].ContentHash)
	assert.Equal(t, "batch-1", f.indexer.docs[0].BatchID)

	// 检索请求携带了批次排除条件与召回相似度下限
	assert.Equal(t, "batch-1", f.searcher.lastQuery.ExcludeBatchID)
	assert.Equal(t, "essay", f.searcher.lastQuery.Category)
	assert.InDelta(t, 0.30, f.searcher.lastQuery.SimilarityFloor, 1e-9)

	row, err := f.rows.FindByID(10)
	require.NoError(t, err)
	require.Len(t, row.RepositoryMatches, 2)

	exact := row.RepositoryMatches[0]
	assert.Equal(t, uint(8), exact.TargetID)
	assert.Equal(t, 1.0, exact.Score)
	assert.Equal(t, model.MethodHashExact, exact.Method)
	assert.True(t, exact.Flagged)

	degraded := row.RepositoryMatches[1]
	assert.Equal(t, uint(9), degraded.TargetID)
	assert.Equal(t, 0.55, degraded.Score)
	assert.Equal(t, model.MethodVectorCandidate, degraded.Method)
	assert.False(t, degraded.Flagged)

	assert.Equal(t, 1.0, row.MaxSimilarityScore)
	assert.Equal(t, model.StatusFlagged, row.Status)
	assert.Equal(t, model.RepoScanCompleted, row.RepoScanStatus)
	assert.Contains(t, f.audit.actions, "repository_matches.updated")
}

func TestProcessDuplicateContentReusesIndexDocument(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusSafe, 0)
	seedRow(f, 20, model.StatusSafe, 0)

	require.NoError(t, f.processor.Process(context.Background(), testTask(10, "batch-1")))
	require.Len(t, f.indexer.docs, 1)

	// 相同内容再次提交：语料条目复用，不再写索引
	task := testTask(20, "batch-2")
	require.NoError(t, f.processor.Process(context.Background(), task))
	assert.Len(t, f.indexer.docs, 1)
	assert.Len(t, f.corpus.entries, 1)
}

func TestProcessFlagsIdenticalResubmissionFromEarlierBatch(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusSafe, 0)
	seedRow(f, 20, model.StatusSafe, 0)

	// 第一次提交：入库并写索引
	require.NoError(t, f.processor.Process(context.Background(), testTask(10, "batch-1")))
	require.Len(t, f.indexer.docs, 1)

	// 后续批次逐字节重复提交：去重命中第一次的条目（entryID=1），
	// 候选检索返回的正是这条旧条目
	f.searcher.candidates = []es.Candidate{
		candidate(1, "batch-1", "hash-a", []float32{1, 0, 0},
			[]string{"consensus", "replication", "quorum"}, 300, 1, 0.99),
	}
	require.NoError(t, f.processor.Process(context.Background(), testTask(20, "batch-2")))

	row, err := f.rows.FindByID(20)
	require.NoError(t, err)
	require.Len(t, row.RepositoryMatches, 1)
	m := row.RepositoryMatches[0]
	assert.Equal(t, uint(1), m.TargetID)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, model.MethodHashExact, m.Method)
	assert.True(t, m.Flagged)
	assert.Equal(t, model.StatusFlagged, row.Status)
	assert.Equal(t, 1.0, row.MaxSimilarityScore)
}

func TestProcessExcludesOwnEntry(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusSafe, 0)

	// 候选集合返回了刚刚入库的条目自身（entryID=1）
	f.searcher.candidates = []es.Candidate{
		candidate(1, "batch-0", "hash-a", []float32{1, 0, 0}, []string{"consensus"}, 300, 1, 1.0),
	}

	require.NoError(t, f.processor.Process(context.Background(), testTask(10, "batch-1")))

	row, err := f.rows.FindByID(10)
	require.NoError(t, err)
	assert.Empty(t, row.RepositoryMatches)
	assert.Equal(t, model.StatusSafe, row.Status)
	assert.Equal(t, model.RepoScanCompleted, row.RepoScanStatus)
}

func TestProcessNeverLowersStatus(t *testing.T) {
	f := newPipelineFixture()
	// 同步阶段已凭批内证据判为 flagged
	seedRow(f, 10, model.StatusFlagged, 1.0)

	// 语料库只找到一个中等分数的候选
	f.searcher.candidates = []es.Candidate{
		candidate(8, "batch-0", "hash-b", nil, nil, 300, 1, 0.5),
	}

	require.NoError(t, f.processor.Process(context.Background(), testTask(10, "batch-1")))

	row, err := f.rows.FindByID(10)
	require.NoError(t, err)
	require.Len(t, row.RepositoryMatches, 1)
	assert.Equal(t, model.StatusFlagged, row.Status)
	assert.Equal(t, 1.0, row.MaxSimilarityScore)
}

func TestProcessSearchFailureMarksRowAndReturnsError(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusWarning, 0.5)
	f.searcher.err = errors.New("elasticsearch unavailable")

	err := f.processor.Process(context.Background(), testTask(10, "batch-1"))
	require.Error(t, err)

	row, findErr := f.rows.FindByID(10)
	require.NoError(t, findErr)
	assert.Equal(t, model.RepoScanFailed, row.RepoScanStatus)
	assert.Contains(t, row.RepoScanError, "elasticsearch unavailable")
	// 同步阶段确立的状态原样保留
	assert.Equal(t, model.StatusWarning, row.Status)
	assert.Equal(t, 0.5, row.MaxSimilarityScore)
	assert.Contains(t, f.audit.actions, "repository_scan.failed")
}

func TestProcessCorpusFailureMarksRow(t *testing.T) {
	f := newPipelineFixture()
	seedRow(f, 10, model.StatusSafe, 0)
	f.corpus.err = errors.New("mysql deadlock")

	err := f.processor.Process(context.Background(), testTask(10, "batch-1"))
	require.Error(t, err)

	row, findErr := f.rows.FindByID(10)
	require.NoError(t, findErr)
	assert.Equal(t, model.RepoScanFailed, row.RepoScanStatus)
}
