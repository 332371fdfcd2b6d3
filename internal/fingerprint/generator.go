// Package fingerprint 负责把抽取后的文档文本转换为可比较的指纹。
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"originality-go/internal/model"
	"originality-go/pkg/embedding"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText 表示文本为空或抽取失败，不允许生成退化的全零指纹：
// 零向量会通过 cosine 与一切文档伪匹配。
var ErrEmptyText = errors.New("empty or unreadable text")

// Error 是指纹生成失败的类型化错误，调用方据此把文件从两个比对阶段中排除。
type Error struct {
	FileName string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fingerprint %s: %v", e.FileName, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Generator 从归一化文本计算 DocumentFingerprint。
type Generator struct {
	embedder    embedding.Client
	maxKeywords int
}

// NewGenerator 创建一个指纹生成器。
func NewGenerator(embedder embedding.Client, maxKeywords int) *Generator {
	if maxKeywords <= 0 {
		maxKeywords = 150
	}
	return &Generator{embedder: embedder, maxKeywords: maxKeywords}
}

// Generate 计算一份文档的指纹。wordCount/pageCount 来自抽取协作方，
// 传 0 时从归一化文本估算。对同一文本的结果是确定的。
func (g *Generator) Generate(ctx context.Context, fileName, text string, wordCount, pageCount int) (*model.DocumentFingerprint, error) {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil, &Error{FileName: fileName, Err: ErrEmptyText}
	}

	vec, err := g.embedder.CreateEmbedding(ctx, normalized)
	if err != nil {
		return nil, &Error{FileName: fileName, Err: fmt.Errorf("向量化失败: %w", err)}
	}
	vec = l2Normalize(vec)

	if wordCount <= 0 {
		wordCount = len(strings.Fields(normalized))
	}
	if pageCount <= 0 {
		pageCount = (wordCount + 299) / 300
		if pageCount < 1 {
			pageCount = 1
		}
	}

	sum := sha256.Sum256([]byte(normalized))

	return &model.DocumentFingerprint{
		ContentHash: hex.EncodeToString(sum[:]),
		Embedding:   vec,
		Keywords:    ExtractKeywords(normalized, g.maxKeywords),
		WordCount:   wordCount,
		PageCount:   pageCount,
	}, nil
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizeText 做基础折叠：NFD 分解后去掉组合变音符号，小写化，
// 空白归一。多语言语义归一不在范围内。
func NormalizeText(text string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		text,
	)
	if err != nil {
		// 变音折叠失败时退回原文，哈希仍然是确定的
		folded = text
	}
	lowered := strings.ToLower(folded)
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(lowered, " "))
}

// stopwords 是关键词提取时忽略的高频功能词。
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "with": {}, "this": {}, "that": {}, "from": {}, "they": {},
	"have": {}, "has": {}, "had": {}, "was": {}, "were": {}, "been": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "what": {}, "which": {},
	"when": {}, "where": {}, "who": {}, "how": {}, "all": {}, "any": {},
	"can": {}, "its": {}, "our": {}, "out": {}, "into": {}, "than": {},
	"then": {}, "them": {}, "these": {}, "some": {}, "such": {}, "only": {},
	"also": {}, "more": {}, "most": {}, "other": {}, "about": {}, "over": {},
}

// ExtractKeywords 按词频提取 top-K 关键词，K 有界使得 Jaccard 计算是 O(K)
// 而不是 O(词表)。频次相同按字典序，保证结果确定。
func ExtractKeywords(normalized string, k int) []string {
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	freq := make(map[string]int)
	for _, t := range tokens {
		if len([]rune(t)) < 3 {
			continue
		}
		if _, ok := stopwords[t]; ok {
			continue
		}
		freq[t]++
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > k {
		terms = terms[:k]
	}
	return terms
}

// l2Normalize 把向量归一到单位长度，打分阶段只需做点积。
func l2Normalize(vec []float32) []float32 {
	var norm2 float64
	for _, v := range vec {
		norm2 += float64(v) * float64(v)
	}
	if norm2 == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm2))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / n
	}
	return out
}
