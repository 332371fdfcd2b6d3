// Package segment 实现证据片段的句级对齐。
// 这里用快速的字符串相似比（token 集合 Dice 系数）而不是混合打分器：
// 这个阶段是为了定位摘录，不是为了分级。
package segment

import (
	"originality-go/internal/config"
	"originality-go/internal/model"
	"sort"
	"strings"
	"unicode"
)

// Sentence 是一条句级单元及其在原文本中的 rune 偏移。
type Sentence struct {
	Text   string
	Offset int
}

// SplitSentences 按句终符与换行切分文本，丢弃低于最小长度的碎片。
func SplitSentences(text string, minLen int) []Sentence {
	var sentences []Sentence
	var current []rune
	offset := 0
	start := 0

	flush := func(end int) {
		s := strings.TrimSpace(string(current))
		if len([]rune(s)) >= minLen {
			sentences = append(sentences, Sentence{Text: s, Offset: start})
		}
		current = current[:0]
		start = end
	}

	for _, r := range text {
		current = append(current, r)
		offset++
		switch r {
		case '.', '!', '?', '。', '؟', '\n':
			flush(offset)
		}
	}
	flush(offset)
	return sentences
}

// DiceRatio 计算两句话 token 集合的 Dice 系数：2|A∩B| / (|A|+|B|)。
func DiceRatio(a, b string) float64 {
	ta := sentenceTokens(a)
	tb := sentenceTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(ta)+len(tb))
}

func sentenceTokens(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

// Align 对两份文本做全对句级比对，保留相似比达到展示阈值的摘录对，
// 找到足够多的强配对后提前终止以约束 O(句数×句数) 的成本。
// 结果按相似度降序，数量封顶。
func Align(srcText, dstText string, srcPages, dstPages int, cfg config.SegmentConfig) []model.Segment {
	srcSentences := SplitSentences(srcText, cfg.MinSentenceLen)
	dstSentences := SplitSentences(dstText, cfg.MinSentenceLen)
	if len(srcSentences) == 0 || len(dstSentences) == 0 {
		return []model.Segment{}
	}

	srcLen := len([]rune(srcText))
	dstLen := len([]rune(dstText))

	segments := make([]model.Segment, 0, cfg.MaxSegments)
	strong := 0

outer:
	for _, src := range srcSentences {
		for _, dst := range dstSentences {
			ratio := DiceRatio(src.Text, dst.Text)
			if ratio < cfg.PairThreshold {
				continue
			}
			segments = append(segments, model.Segment{
				SourceExcerpt:  src.Text,
				MatchedExcerpt: dst.Text,
				Similarity:     ratio,
				SourcePage:     pageOf(src.Offset, srcLen, srcPages),
				MatchedPage:    pageOf(dst.Offset, dstLen, dstPages),
			})
			strong++
			if strong >= cfg.MaxStrongPairs {
				break outer
			}
		}
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Similarity > segments[j].Similarity
	})
	if len(segments) > cfg.MaxSegments {
		segments = segments[:cfg.MaxSegments]
	}
	return segments
}

// pageOf 按偏移比例估算页码，从 1 开始。
func pageOf(offset, totalLen, pages int) int {
	if totalLen <= 0 || pages <= 0 {
		return 1
	}
	page := 1 + offset*pages/totalLen
	if page > pages {
		page = pages
	}
	return page
}
