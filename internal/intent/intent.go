package intent

import (
	"strings"
)

// Mode is one of the six task classifications governing prompt template and
// chunk sizing.
type Mode string

const (
	ModeTranslate Mode = "translate"
	ModeQA        Mode = "qa"
	ModeSummarize Mode = "summarize"
	ModeAnalyze   Mode = "analyze"
	ModeExtract   Mode = "extract"
	ModeCompare   Mode = "compare"
)

// Params carries mode-specific parameters resolved during classification.
type Params struct {
	TargetLanguage string // translate only; empty means caller default applies
}

// matcher owns the trigger phrases for one mode. Phrases are matched
// case-insensitively as substrings; Chinese phrases match as-is.
type matcher struct {
	mode    Mode
	phrases []string
}

// Matchers are checked in priority order: the more specific intents win over
// the general-purpose qa fallback when a query carries overlapping cues
// (e.g. "总结并翻译" contains both summarize and translate markers).
var matchers = []matcher{
	{ModeCompare, []string{
		"compare", "comparison", "contrast", "difference", "differences",
		"similarities", "versus", " vs ", "vs.",
		"比较", "对比", "区别", "差异", "异同",
	}},
	{ModeTranslate, []string{
		"translate", "translation", "please translate", "convert to",
		"in english", "in chinese", "into english", "into chinese",
		"翻译", "译成", "译为", "翻成",
	}},
	{ModeExtract, []string{
		"extract", "find all", "list all", "get all", "identify",
		"pull out", "gather", "retrieve", "locate",
		"提取", "抽取", "找出所有", "列出所有",
	}},
	{ModeSummarize, []string{
		"summarize", "summarise", "summary", "key points", "main points",
		"executive summary", "overview", "gist", "essence",
		"总结", "摘要", "概括", "要点", "概述",
	}},
	{ModeAnalyze, []string{
		"analyze", "analyse", "analysis", "insights", "trends", "patterns",
		"examine", "evaluate", "assess", "interpret", "findings",
		"分析", "解读", "评估", "洞察",
	}},
}

// Classify maps a free-text query, plus the shape of the request, to exactly
// one task mode. It is pure and never fails: queries with no trigger phrase
// fall back to qa, the most general mode.
func Classify(query string, hasFiles bool, fileCount int, historyPresent bool) (Mode, Params) {
	q := strings.ToLower(query)

	for _, m := range matchers {
		for _, phrase := range m.phrases {
			if strings.Contains(q, phrase) {
				return m.mode, paramsFor(m.mode, query)
			}
		}
	}
	return ModeQA, Params{}
}

func paramsFor(mode Mode, query string) Params {
	if mode != ModeTranslate {
		return Params{}
	}
	return Params{TargetLanguage: TargetLanguage(query)}
}

// TargetLanguage extracts an explicit target language from the query, or
// infers the direction from the query's own language: Chinese queries
// usually want English output and vice versa. Returns "" when nothing can
// be inferred so the configured default applies.
func TargetLanguage(query string) string {
	q := strings.ToLower(query)

	englishCues := []string{"to english", "into english", "in english", "译成英文", "翻译成英文", "翻成英文", "译为英文", "英译"}
	chineseCues := []string{"to chinese", "into chinese", "in chinese", "译成中文", "翻译成中文", "翻成中文", "译为中文", "中译"}

	for _, c := range englishCues {
		if strings.Contains(q, c) {
			return "English"
		}
	}
	for _, c := range chineseCues {
		if strings.Contains(q, c) {
			return "Chinese"
		}
	}

	switch DetectLanguage(query) {
	case "Chinese":
		return "English"
	case "English":
		return "Chinese"
	}
	return ""
}
