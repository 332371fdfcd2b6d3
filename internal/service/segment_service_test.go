package service

import (
	"context"
	"fmt"
	"originality-go/internal/config"
	"originality-go/internal/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const copiedSentence = "Consensus protocols tolerate partial failures by replicating state across machines."

type segmentFixture struct {
	svc    SegmentService
	store  *memStore
	repo   *fakeComparisonRepo
	audit  *fakeAuditRepo
	locker *fakeLocker
}

func newSegmentFixture() *segmentFixture {
	store := newMemStore()
	repo := newFakeComparisonRepo()
	audit := &fakeAuditRepo{}
	locker := newFakeLocker()
	svc := NewSegmentService(repo, audit, store, locker, config.DefaultSimilarity())
	return &segmentFixture{svc: svc, store: store, repo: repo, audit: audit, locker: locker}
}

// seedMatchedRow 准备一行带匹配证据的结果以及双方的语料文本。
func (f *segmentFixture) seedMatchedRow(t *testing.T) *model.ComparisonResult {
	t.Helper()
	srcText := "An opening paragraph about distributed computing fundamentals. " + copiedSentence +
		" Concluding remarks on future research directions in the field."
	dstText := "Introductory material covering entirely different background topics. " + copiedSentence +
		" Additional commentary that does not appear in the source document."

	srcHash, dstHash := "hash-src", "hash-dst"
	require.NoError(t, f.store.Put(context.Background(), TextObjectName(srcHash), []byte(srcText), "text/plain"))
	require.NoError(t, f.store.Put(context.Background(), TextObjectName(dstHash), []byte(dstText), "text/plain"))

	return f.repo.seed(&model.ComparisonResult{
		FileName:    "a.txt",
		ContentHash: srcHash,
		TextObject:  TextObjectName(srcHash),
		PageCount:   1,
		InternalMatches: model.MatchList{{
			TargetName: "b.txt",
			TargetHash: dstHash,
			Score:      0.85,
			Method:     model.MethodHybrid,
			Flagged:    true,
		}},
		RepositoryMatches: model.MatchList{},
		Status:            model.StatusFlagged,
		SegmentsStatus:    model.SegmentsPending,
	})
}

func TestGetSegmentsExtractsAndCaches(t *testing.T) {
	f := newSegmentFixture()
	row := f.seedMatchedRow(t)

	segments, err := f.svc.GetSegments(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotEmpty(t, segments)
	assert.Equal(t, copiedSentence, segments[0].SourceExcerpt)
	assert.Equal(t, copiedSentence, segments[0].MatchedExcerpt)
	assert.InDelta(t, 1.0, segments[0].Similarity, 1e-9)

	stored, err := f.repo.FindByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentsCompleted, stored.SegmentsStatus)
	assert.Equal(t, fmt.Sprintf("segments/%d.json", row.ID), stored.SegmentsObject)
	exists, err := f.store.Exists(context.Background(), stored.SegmentsObject)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, f.audit.actions(row.ID), "segments.completed")

	// 第二次调用走缓存：结果一致，不再有任何对象写入，也不再抢锁
	putsAfterFirst := f.store.putCount()
	again, err := f.svc.GetSegments(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Equal(t, segments, again)
	assert.Equal(t, putsAfterFirst, f.store.putCount())
}

func TestGetSegmentsNoMatchesCachesEmptyList(t *testing.T) {
	f := newSegmentFixture()
	row := f.repo.seed(&model.ComparisonResult{
		FileName:          "solo.txt",
		ContentHash:       "hash-solo",
		TextObject:        TextObjectName("hash-solo"),
		InternalMatches:   model.MatchList{},
		RepositoryMatches: model.MatchList{},
		Status:            model.StatusSafe,
		SegmentsStatus:    model.SegmentsPending,
	})

	segments, err := f.svc.GetSegments(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, segments)
	assert.Empty(t, segments)

	stored, err := f.repo.FindByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SegmentsCompleted, stored.SegmentsStatus)
}

func TestGetSegmentsUnknownRow(t *testing.T) {
	f := newSegmentFixture()
	_, err := f.svc.GetSegments(context.Background(), 42)
	assert.Error(t, err)
}

func TestGetSegmentsWaitsForCompetingExtraction(t *testing.T) {
	f := newSegmentFixture()
	row := f.seedMatchedRow(t)
	f.locker.rejectAll = true

	// 模拟锁的持有者在别处完成工作并写入缓存
	go func() {
		time.Sleep(100 * time.Millisecond)
		objectName := fmt.Sprintf("segments/%d.json", row.ID)
		_ = f.store.Put(context.Background(), objectName, []byte(`[]`), "application/json")
		_ = f.repo.UpdateSegments(row.ID, objectName)
	}()

	segments, err := f.svc.GetSegments(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestGetSegmentsReportsInProgressOnContextCancel(t *testing.T) {
	f := newSegmentFixture()
	row := f.seedMatchedRow(t)
	f.locker.rejectAll = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.svc.GetSegments(ctx, row.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
