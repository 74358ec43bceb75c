package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Mode
	}{
		{"translate english", "translate this to English", ModeTranslate},
		{"translate chinese", "请把这份文件翻译成英文", ModeTranslate},
		{"summarize english", "give me an executive summary of the report", ModeSummarize},
		{"summarize chinese", "总结这份报告", ModeSummarize},
		{"analyze", "analyze the quarterly trends", ModeAnalyze},
		{"analyze chinese", "请分析这份数据", ModeAnalyze},
		{"extract", "list all the dates mentioned in the contract", ModeExtract},
		{"extract chinese", "提取文中的关键日期", ModeExtract},
		{"compare", "compare these two documents", ModeCompare},
		{"compare chinese", "对比这两个版本", ModeCompare},
		{"fallback qa", "what is the capital of France?", ModeQA},
		{"fallback qa chinese", "法国的首都是哪里？", ModeQA},
		{"empty query", "", ModeQA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(tt.query, true, 1, false)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyPriority(t *testing.T) {
	// Overlapping cues resolve by fixed priority, not phrase order.
	mode, _ := Classify("总结并翻译这份文件", true, 1, false)
	assert.Equal(t, ModeTranslate, mode, "translate outranks summarize")

	mode, _ = Classify("compare and summarize the two drafts", true, 2, false)
	assert.Equal(t, ModeCompare, mode, "compare outranks summarize")

	mode, _ = Classify("extract and analyze the findings", true, 1, false)
	assert.Equal(t, ModeExtract, mode, "extract outranks analyze")
}

func TestClassifyTranslateParams(t *testing.T) {
	_, p := Classify("translate the attached file into Chinese", true, 1, false)
	assert.Equal(t, "Chinese", p.TargetLanguage)

	_, p = Classify("请翻译成英文", true, 1, false)
	assert.Equal(t, "English", p.TargetLanguage)

	// No explicit target: direction inferred from the query's own language.
	_, p = Classify("翻译这个文档", true, 1, false)
	assert.Equal(t, "English", p.TargetLanguage)

	_, p = Classify("translate this document", true, 1, false)
	assert.Equal(t, "Chinese", p.TargetLanguage)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "Chinese", DetectLanguage("超声波是什么？"))
	assert.Equal(t, "English", DetectLanguage("What is ultrasound?"))
	// Mixed content with a Chinese majority stays Chinese.
	assert.Equal(t, "Chinese", DetectLanguage("请解释 GDP 的含义和计算方式"))
	// Nothing to classify: the caller falls back to its configured default.
	assert.Equal(t, "", DetectLanguage(""))
	assert.Equal(t, "", DetectLanguage("12345 ?!"))
}
