// Package similarity 实现混合打分器与风险分级器。
// 打分规则是数据而不是分支：不同信号区（signal regime）映射到不同权重向量。
package similarity

import (
	"originality-go/internal/config"
	"originality-go/internal/model"
)

// regime 标识一次比对落入的信号区。
type regime int

const (
	// regimeLowJaccard：词汇几乎不重合，cosine 在这种情况下不可靠，由 Jaccard 主导。
	regimeLowJaccard regime = iota
	// regimeBalanced：常规混合。长度比过低时在此基础上整体打折。
	regimeBalanced
)

// Result 是一次两两打分的结果。
type Result struct {
	Score     float64
	Method    model.MatchMethod
	Flagged   bool
	Breakdown *model.SignalBreakdown
}

// Scorer 对两个指纹产出 [0,1] 的相似分数和产生它的方法。
type Scorer struct {
	cfg     config.SimilarityConfig
	weights map[regime]config.WeightVector
}

// NewScorer 用显式配置构造打分器，测试可以注入边界阈值。
func NewScorer(cfg config.SimilarityConfig) *Scorer {
	return &Scorer{
		cfg: cfg,
		weights: map[regime]config.WeightVector{
			regimeLowJaccard: cfg.LowJaccardWeights,
			regimeBalanced:   cfg.BalancedWeights,
		},
	}
}

// Score 比较两个指纹。
// 哈希相等直接短路为 1.0（hash_exact，恒为 flagged），否则计算三路独立信号
// 并按信号区加权混合。
func (s *Scorer) Score(a, b *model.DocumentFingerprint) Result {
	if a.ContentHash != "" && a.ContentHash == b.ContentHash {
		return Result{Score: 1.0, Method: model.MethodHashExact, Flagged: true}
	}

	cosine := clamp01(dot(a.Embedding, b.Embedding))
	jaccard := Jaccard(a.Keywords, b.Keywords)
	lengthRatio := lengthRatio(a, b)

	breakdown := &model.SignalBreakdown{
		Cosine:      cosine,
		Jaccard:     jaccard,
		LengthRatio: lengthRatio,
	}

	reg := regimeBalanced
	if jaccard < s.cfg.LowJaccardCutoff {
		reg = regimeLowJaccard
	}
	w := s.weights[reg]

	score := w.Cosine*cosine + w.Jaccard*jaccard + w.LengthRatio*lengthRatio

	// 长度严重不匹配时对常规混合整体打折：词汇重合也难以构成抄袭
	if reg == regimeBalanced && lengthRatio < s.cfg.LengthRatioCutoff {
		score *= s.cfg.LengthPenalty
	}
	score = clamp01(score)

	return Result{
		Score:     score,
		Method:    model.MethodHybrid,
		Flagged:   score >= s.cfg.FlagThreshold,
		Breakdown: breakdown,
	}
}

// Config 返回打分器使用的配置。
func (s *Scorer) Config() config.SimilarityConfig {
	return s.cfg
}

// Jaccard 计算两个关键词集合的交并比。
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	inter := 0
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := setB[t]; dup {
			continue
		}
		setB[t] = struct{}{}
		if _, ok := setA[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// lengthRatio 是词数比与页数比的均值，刻画结构长度的接近程度。
func lengthRatio(a, b *model.DocumentFingerprint) float64 {
	return (ratio(a.WordCount, b.WordCount) + ratio(a.PageCount, b.PageCount)) / 2
}

func ratio(x, y int) float64 {
	if x <= 0 || y <= 0 {
		return 0
	}
	if x > y {
		x, y = y, x
	}
	return float64(x) / float64(y)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
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
