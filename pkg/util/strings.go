package util

import "strings"

// FirstNonEmpty 返回第一个非空 (trim 后) 的字符串。
//
// 用于统一多处重复的 firstNonEmpty 候选探测模式。
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Truncate 按 rune 截断字符串, 超长时以 "…" 结尾。
//
// max 指结果的最大 rune 数 (含省略号)。max <= 0 时返回空串。
// 日本语等多字节文本必须按 rune 截断, 否则会切出非法 UTF-8。
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
