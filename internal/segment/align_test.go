package segment

import (
	"originality-go/internal/config"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegmentConfig() config.SegmentConfig {
	return config.SegmentConfig{
		MinSentenceLen: 25,
		PairThreshold:  0.60,
		MaxSegments:    20,
		MaxStrongPairs: 60,
	}
}

func TestSplitSentences(t *testing.T) {
	text := "This is the first sentence of the document. Short. " +
		"Here comes another sufficiently long sentence!\n" +
		"A trailing fragment without a terminator that is long enough"

	sentences := SplitSentences(text, 25)

	require.Len(t, sentences, 3)
	assert.Equal(t, "This is the first sentence of the document.", sentences[0].Text)
	assert.Equal(t, "Here comes another sufficiently long sentence!", sentences[1].Text)
	assert.Equal(t, "A trailing fragment without a terminator that is long enough", sentences[2].Text)
	// 偏移单调递增，页码估算依赖它
	assert.True(t, sentences[0].Offset < sentences[1].Offset)
	assert.True(t, sentences[1].Offset < sentences[2].Offset)
}

func TestSplitSentencesEmpty(t *testing.T) {
	assert.Empty(t, SplitSentences("", 25))
	assert.Empty(t, SplitSentences("short. tiny. ok.", 25))
}

func TestDiceRatio(t *testing.T) {
	assert.InDelta(t, 1.0, DiceRatio(
		"distributed systems require careful design",
		"Distributed systems require careful design.",
	), 1e-9)

	assert.Equal(t, 0.0, DiceRatio("alpha beta gamma", "delta epsilon zeta"))
	assert.Equal(t, 0.0, DiceRatio("", "anything at all"))

	// 部分重合落在 (0,1) 开区间
	partial := DiceRatio("the cache invalidation problem", "the cache coherence problem")
	assert.Greater(t, partial, 0.0)
	assert.Less(t, partial, 1.0)
}

func TestAlignFindsCopiedSentences(t *testing.T) {
	copied := "Consensus protocols tolerate partial failures by replicating state across machines."
	src := "An introduction paragraph about unrelated topics entirely. " + copied +
		" Some closing words that have nothing in common with the other document."
	dst := "Opening remarks discussing weather patterns and agriculture. " + copied +
		" Final observations on marine biology and deep sea currents."

	segments := Align(src, dst, 1, 1, testSegmentConfig())

	require.NotEmpty(t, segments)
	top := segments[0]
	assert.Equal(t, copied, top.SourceExcerpt)
	assert.Equal(t, copied, top.MatchedExcerpt)
	assert.InDelta(t, 1.0, top.Similarity, 1e-9)
	assert.Equal(t, 1, top.SourcePage)
	assert.Equal(t, 1, top.MatchedPage)
}

func TestAlignNoOverlapReturnsEmptySlice(t *testing.T) {
	src := "Completely original writing about compiler internals and register allocation."
	dst := "Unrelated prose describing medieval architecture and cathedral construction methods."

	segments := Align(src, dst, 1, 1, testSegmentConfig())

	require.NotNil(t, segments)
	assert.Empty(t, segments)
}

func TestAlignDeterministic(t *testing.T) {
	copied := "Deterministic extraction must return identical evidence on every invocation."
	src := copied + " Another line of filler text that pads the source document further."
	dst := "Leading filler sentence keeping the documents from being identical. " + copied

	first := Align(src, dst, 2, 3, testSegmentConfig())
	second := Align(src, dst, 2, 3, testSegmentConfig())
	assert.Equal(t, first, second)
}

func TestAlignCapsSegmentCount(t *testing.T) {
	sentence := "Repeated evidence sentences inflate the candidate pair count quickly."
	text := strings.Repeat(sentence+" ", 12)

	cfg := testSegmentConfig()
	cfg.MaxSegments = 5
	cfg.MaxStrongPairs = 60

	segments := Align(text, text, 1, 1, cfg)
	assert.Len(t, segments, 5)
}

func TestPageOf(t *testing.T) {
	assert.Equal(t, 1, pageOf(0, 1000, 4))
	assert.Equal(t, 4, pageOf(999, 1000, 4))
	assert.Equal(t, 1, pageOf(50, 0, 4))
	assert.Equal(t, 1, pageOf(50, 1000, 0))
}
