package similarity

import (
	"originality-go/internal/config"
	"originality-go/internal/model"
)

// statusRank 定义风险分级的全序，更新永远只能向更高风险移动。
var statusRank = map[model.ResultStatus]int{
	model.StatusSafe:    0,
	model.StatusWarning: 1,
	model.StatusFlagged: 2,
}

// Classifier 把最高相似分数映射为风险分级。
type Classifier struct {
	cfg config.SimilarityConfig
}

// NewClassifier 用显式配置构造分级器。
func NewClassifier(cfg config.SimilarityConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify 按配置阈值分级：>= flag 为 flagged，>= warn 为 warning，否则 safe。
func (c *Classifier) Classify(maxScore float64) model.ResultStatus {
	switch {
	case maxScore >= c.cfg.FlagThreshold:
		return model.StatusFlagged
	case maxScore >= c.cfg.WarnThreshold:
		return model.StatusWarning
	default:
		return model.StatusSafe
	}
}

// HigherRisk 返回两个分级中风险更高的一个。
// 异步阶段的更新通过它保证永不把状态降到同步阶段已确立的等级之下。
func HigherRisk(a, b model.ResultStatus) model.ResultStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}
