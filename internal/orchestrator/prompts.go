package orchestrator

import (
	"fmt"
	"strings"

	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/intent"
)

// Prompt templates follow a Chinese-first policy: when the query is in
// Chinese (or language detection is ambiguous) the model is addressed in
// Chinese, otherwise in English.

const assistantSystemZH = `你是一个专业的企业AI助手，具备丰富的知识储备和文档处理能力，致力于提供准确、可靠的信息支持。

## 核心能力
- 智能文档解析：自动识别结构、表格、要点内容
- 多语言支持：中英文翻译、国际业务文档处理
- 智能问答：基于文档和知识库的精准回答
- 信息提取与对比分析：关键信息挖掘、多文档差异比较

请始终使用与用户相同的语言回答，保持专业、客观。`

const assistantSystemEN = `You are a professional enterprise AI assistant with strong document processing capabilities, dedicated to providing accurate and reliable information support.

## Core capabilities
- Intelligent document parsing: structure, tables and key points
- Multilingual support: Chinese/English translation and business documents
- Knowledge-grounded question answering
- Information extraction and multi-document comparison

Always respond in the same language as the user, professionally and objectively.`

func systemPrompt(language string) string {
	if language == "Chinese" {
		return assistantSystemZH
	}
	return assistantSystemEN
}

const translateToEnglishSystem = `You are a professional translator. Your task is to translate Chinese text to English.

CRITICAL REQUIREMENTS:
1. The input text is in CHINESE language
2. You MUST translate it to ENGLISH language
3. DO NOT output Chinese characters in your response
4. Preserve the meaning, formatting, and structure where possible
5. Output ONLY English text`

const translateToChineseSystem = `你是一个专业的翻译专家。你的任务是将英文文本翻译成中文。

重要要求：
1. 输入文本是英文语言
2. 你必须将其翻译成中文语言
3. 不要在回复中输出英文字符
4. 保持原有的格式和结构
5. 只输出中文文本`

func translateMessages(text, targetLanguage string) []core.Message {
	switch strings.ToLower(targetLanguage) {
	case "english", "en", "英文":
		return []core.Message{
			{Role: "system", Content: translateToEnglishSystem},
			{Role: "user", Content: "TRANSLATE THIS CHINESE TEXT TO ENGLISH (output only English):\n\n" + text},
		}
	case "chinese", "zh", "中文":
		return []core.Message{
			{Role: "system", Content: translateToChineseSystem},
			{Role: "user", Content: "请将以下英文文本翻译成中文（只输出中文）：\n\n" + text},
		}
	default:
		sys := fmt.Sprintf("You are a professional translator. Translate the following text to %s.\n\nIMPORTANT: Output ONLY in %s language. Do not include the original text.", targetLanguage, targetLanguage)
		return []core.Message{
			{Role: "system", Content: sys},
			{Role: "user", Content: fmt.Sprintf("Please translate this text to %s (output only in %s):\n\n%s", targetLanguage, targetLanguage, text)},
		}
	}
}

func qaUserPrompt(question, docContext, language string) string {
	if docContext != "" {
		if language == "Chinese" {
			return fmt.Sprintf(`基于提供的文档内容，请回答以下问题：%s

## 文档内容：
%s

## 回答要求：
1. **优先使用文档内容**：主要基于上述文档内容回答
2. **标明信息来源**：明确区分文档中的信息和通用知识
3. **承认限制**：如果文档中没有足够信息，请明确说明
4. **结构化回答**：使用清晰的标题和要点组织答案
5. **风险提示**：对重要决策相关问题提供必要提醒`, question, docContext)
		}
		return fmt.Sprintf(`Based on the provided document content, please answer the following question: %s

## Document Content:
%s

## Response Requirements:
1. **Prioritize document content**: Base your answer primarily on the above document content
2. **Indicate information sources**: Clearly distinguish between document information and general knowledge
3. **Acknowledge limitations**: If there isn't sufficient information in the documents, clearly state this
4. **Structured response**: Use clear headings and bullet points to organize your answer
5. **Risk alerts**: Provide necessary warnings for decision-related questions`, question, docContext)
	}

	if language == "Chinese" {
		return fmt.Sprintf(`请基于你的知识回答以下问题：%s

## 回答要求：
1. **知识边界**：仅提供确信的、可靠的信息
2. **不确定性说明**：对不确定的信息明确标注"需要进一步确认"
3. **专业建议**：涉及重要决策时建议咨询相关专业人士
4. **结构化回答**：使用清晰的逻辑结构组织答案`, question)
	}
	return fmt.Sprintf(`Please answer the following question based on your knowledge: %s

## Response Requirements:
1. **Knowledge boundaries**: Only provide information you are confident and reliable about
2. **Uncertainty indication**: Clearly mark uncertain information as "requires further confirmation"
3. **Professional advice**: For important decisions, recommend consulting relevant professionals
4. **Structured response**: Use clear logical structure to organize your answer`, question)
}

const summarizeSystemZH = `你是一个专业的企业文档总结专家。请创建结构化、全面的文档摘要，突出关键要点、主要观点和重要细节。

总结要求：
- 使用执行摘要格式，包含核心结论
- 识别关键业务信息、数据和建议
- 保持客观中立，避免主观解读
- 标注重要的风险点或决策要素
- 使用专业商业语言`

const summarizeSystemEN = `You are a professional enterprise document summarization expert. Create structured, comprehensive document summaries highlighting key points, main ideas, and important details.

Summary requirements:
- Use executive summary format with core conclusions
- Identify key business information, data, and recommendations
- Maintain objectivity and avoid subjective interpretations
- Mark important risk factors or decision elements
- Use professional business language`

func summarizeMessages(text, language string) []core.Message {
	if language == "Chinese" {
		return []core.Message{
			{Role: "system", Content: summarizeSystemZH},
			{Role: "user", Content: "请对以下文档内容进行专业总结：\n\n" + text},
		}
	}
	return []core.Message{
		{Role: "system", Content: summarizeSystemEN},
		{Role: "user", Content: "Please provide a professional summary of the following document:\n\n" + text},
	}
}

func analyzeMessages(text string) []core.Message {
	return []core.Message{
		{Role: "system", Content: "You are an expert analyst. Analyze the provided text for key insights, patterns, trends, and important findings. Provide a structured analysis with clear observations and implications."},
		{Role: "user", Content: "Please analyze the following text:\n\n" + text},
	}
}

func extractMessages(text, query string) []core.Message {
	return []core.Message{
		{Role: "system", Content: "You are an expert information extractor. Extract the specific information requested from the provided text. Be precise and comprehensive. Format your response clearly with the extracted information."},
		{Role: "user", Content: fmt.Sprintf("Extract the following from the text: %s\n\nText:\n%s", query, text)},
	}
}

func compareMessages(texts []string, query string) []core.Message {
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "\n\n--- Document %d ---\n%s", i+1, text)
	}
	return []core.Message{
		{Role: "system", Content: "You are an expert document comparator. Compare the provided documents and highlight key similarities, differences, and unique aspects. Structure your comparison clearly with specific examples."},
		{Role: "user", Content: fmt.Sprintf("Compare these documents focusing on: %s%s", query, b.String())},
	}
}

// combineMessages merges per-chunk results into one request so multi-chunk
// documents still yield a single coherent answer.
func combineMessages(mode intent.Mode, parts []string, language string) []core.Message {
	joined := strings.Join(parts, "\n\n")
	switch mode {
	case intent.ModeTranslate:
		// per-chunk translations are already in the target language;
		// concatenation preserves order
		return nil
	case intent.ModeSummarize:
		return summarizeMessages(joined, language)
	default:
		if language == "Chinese" {
			return []core.Message{
				{Role: "system", Content: systemPrompt(language)},
				{Role: "user", Content: "请将以下分段结果合并为一个连贯、无重复的完整回答：\n\n" + joined},
			}
		}
		return []core.Message{
			{Role: "system", Content: systemPrompt(language)},
			{Role: "user", Content: "Merge the following partial results into one coherent answer without repetition:\n\n" + joined},
		}
	}
}
