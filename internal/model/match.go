package model

// MatchMethod 标记一条匹配记录由哪种打分方式产生。
// 不同方式携带的负载不同：只有混合打分才有逐信号分解。
type MatchMethod string

const (
	// MethodHashExact 表示内容哈希完全一致，分数恒为 1.0。
	MethodHashExact MatchMethod = "hash_exact"
	// MethodHybrid 表示 cosine/jaccard/length_ratio 的分档加权混合。
	MethodHybrid MatchMethod = "hybrid_cosine_jaccard_length"
	// MethodVectorCandidate 表示仅有向量索引的原始分数可用（候选缺少完整指纹时的降级）。
	MethodVectorCandidate MatchMethod = "vector_candidate"
)

// SignalBreakdown 是混合打分的逐信号分解，用于解释判定结果。
type SignalBreakdown struct {
	Cosine      float64 `json:"cosine"`
	Jaccard     float64 `json:"jaccard"`
	LengthRatio float64 `json:"lengthRatio"`
}

// Match 描述提交文档与另一份文档（同批次或语料库条目）之间的一条打分关系。
type Match struct {
	// TargetID 是语料库条目 ID，批次内匹配为 0。
	TargetID   uint   `json:"targetId,omitempty"`
	TargetName string `json:"targetName"`
	// TargetHash 指向对方的内容哈希，片段抽取通过它定位对方的文本对象。
	TargetHash string           `json:"targetHash"`
	Score      float64          `json:"score"`
	Method     MatchMethod      `json:"method"`
	Flagged    bool             `json:"flagged"`
	Breakdown  *SignalBreakdown `json:"breakdown,omitempty"`
}
