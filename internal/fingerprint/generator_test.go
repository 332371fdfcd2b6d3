package fingerprint

import (
	"context"
	"errors"
	"originality-go/pkg/embedding"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(maxKeywords int) *Generator {
	return NewGenerator(embedding.NewLocalClient(128), maxKeywords)
}

func TestGenerateDeterministic(t *testing.T) {
	g := newTestGenerator(50)
	text := "The quick brown fox jumps over the lazy dog. The dog did not react at all."

	a, err := g.Generate(context.Background(), "a.txt", text, 0, 0)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), "b.txt", text, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, a.ContentHash, b.ContentHash)
	assert.Equal(t, a.Embedding, b.Embedding)
	assert.Equal(t, a.Keywords, b.Keywords)
	assert.Equal(t, a.WordCount, b.WordCount)
}

func TestGenerateEmptyTextFails(t *testing.T) {
	g := newTestGenerator(50)

	for _, text := range []string{"", "   ", "\n\t  \n"} {
		_, err := g.Generate(context.Background(), "empty.txt", text, 0, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyText))

		var fpErr *Error
		require.True(t, errors.As(err, &fpErr))
		assert.Equal(t, "empty.txt", fpErr.FileName)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Hello World", "hello world"},
		{"whitespace fold", "a  b\n\tc", "a b c"},
		{"diacritic fold", "Café résumé", "cafe resume"},
		{"trim", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestIdenticalNormalizedTextSameHash(t *testing.T) {
	g := newTestGenerator(50)

	a, err := g.Generate(context.Background(), "a.txt", "Café culture is   thriving here.", 0, 0)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), "b.txt", "cafe culture is thriving here.", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, a.ContentHash, b.ContentHash)
}

func TestExtractKeywordsBoundedAndOrdered(t *testing.T) {
	normalized := "alpha alpha alpha beta beta gamma delta epsilon zeta eta theta iota"

	keywords := ExtractKeywords(normalized, 3)

	require.Len(t, keywords, 3)
	assert.Equal(t, "alpha", keywords[0])
	assert.Equal(t, "beta", keywords[1])
	// 频次相同时按字典序，保证结果确定
	assert.Equal(t, "delta", keywords[2])
}

func TestExtractKeywordsFiltersStopwordsAndShortTokens(t *testing.T) {
	keywords := ExtractKeywords("the and for it is of distributed systems", 10)

	assert.NotContains(t, keywords, "the")
	assert.NotContains(t, keywords, "and")
	assert.NotContains(t, keywords, "it")
	assert.Contains(t, keywords, "distributed")
	assert.Contains(t, keywords, "systems")
}

func TestGenerateEmbeddingIsUnitLength(t *testing.T) {
	g := newTestGenerator(50)

	fp, err := g.Generate(context.Background(), "a.txt", "vector norms should be one after normalization", 0, 0)
	require.NoError(t, err)

	var norm2 float64
	for _, v := range fp.Embedding {
		norm2 += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm2, 1e-5)
}

func TestGenerateCountFallbacks(t *testing.T) {
	g := newTestGenerator(50)

	fp, err := g.Generate(context.Background(), "a.txt", "one two three four five", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, fp.WordCount)
	assert.Equal(t, 1, fp.PageCount)

	fp, err = g.Generate(context.Background(), "a.txt", "text", 800, 3)
	require.NoError(t, err)
	assert.Equal(t, 800, fp.WordCount)
	assert.Equal(t, 3, fp.PageCount)
}
