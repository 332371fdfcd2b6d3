// Package model 包含了应用的数据模型定义。
package model

// DocumentFingerprint 是一份文档的可比较表示。
// 对同一段归一化文本，指纹一旦计算完成即不可变。
type DocumentFingerprint struct {
	// ContentHash 是归一化文本的 sha256 十六进制摘要。
	// 两份归一化文本相同的文档必然得到相同的哈希，相似度强制为 1.0。
	ContentHash string `json:"contentHash"`
	// Embedding 是定长稠密向量，已做 L2 归一化。
	Embedding []float32 `json:"embedding"`
	// Keywords 是按权重降序排列的 top-K 关键词集合，上限由配置决定。
	Keywords []string `json:"keywords"`
	// WordCount 与 PageCount 是结构化计数，用于长度比信号与候选预过滤。
	WordCount int `json:"wordCount"`
	PageCount int `json:"pageCount"`
}
