package model

// Segment 是一对对齐的人类可读摘录，作为相似判定的证据。
type Segment struct {
	SourceExcerpt  string  `json:"sourceExcerpt"`
	MatchedExcerpt string  `json:"matchedExcerpt"`
	Similarity     float64 `json:"similarity"`
	// 页码按摘录在文本中的偏移比例估算。
	SourcePage  int `json:"sourcePage"`
	MatchedPage int `json:"matchedPage"`
}
