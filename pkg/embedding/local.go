package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// localClient 是确定性的本地向量化器：对分词结果做特征哈希（hashing trick），
// 按词频加权后 L2 归一化。同一文本永远得到同一向量；近重复文本的余弦相似度高，
// 无关文本的余弦相似度低。它不理解语义，只保证相似度保持性。
type localClient struct {
	dims int
}

// NewLocalClient 创建一个指定维度的本地向量化器。
func NewLocalClient(dims int) Client {
	if dims <= 0 {
		dims = 1024
	}
	return &localClient{dims: dims}
}

// CreateEmbedding 对文本做确定性向量化。空文本返回错误而不是零向量：
// 零向量会通过 cosine 与任何文档伪匹配。
func (c *localClient) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, errors.New("cannot embed empty text")
	}

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	vec := make([]float64, c.dims)
	for token, n := range freq {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()
		bucket := int(sum % uint64(c.dims))
		// 最高位决定符号，避免所有分量同号导致无关文本也偏正相关
		sign := 1.0
		if sum&(1<<63) != 0 {
			sign = -1.0
		}
		vec[bucket] += sign * (1.0 + math.Log(float64(n)))
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, errors.New("degenerate embedding for text")
	}

	out := make([]float32, c.dims)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// tokenize 按非字母数字切分并转小写，与关键词提取使用同一种切分口径。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
