// Package i18n holds the bilingual user-facing message catalogue. Errors go
// to callers as a machine-checkable code plus a human-readable message in
// the language of their query, never as raw internals.
package i18n

// Machine-checkable error codes.
const (
	ErrInvalidRequest   = "invalid_request"
	ErrUnauthorized     = "unauthorized"
	ErrFileTooLarge     = "file_too_large"
	ErrUnsupportedFile  = "unsupported_format"
	ErrNoContent        = "no_content"
	ErrProcessingFailed = "processing_error"
	ErrLLMTimeout       = "llm_timeout"
	ErrLLMFailed        = "llm_failed"
	ErrStorageFailed    = "storage_error"
	ErrComparisonNeeds  = "comparison_required"
)

var messages = map[string]map[string]string{
	"Chinese": {
		ErrInvalidRequest:   "请求参数无效或缺失",
		ErrUnauthorized:     "API 密钥无效",
		ErrFileTooLarge:     "文件过大，超过最大限制",
		ErrUnsupportedFile:  "不支持的文件格式",
		ErrNoContent:        "文档中没有可提取的文本内容",
		ErrProcessingFailed: "文档处理过程中出现错误",
		ErrLLMTimeout:       "模型服务响应超时，请稍后重试",
		ErrLLMFailed:        "模型服务调用失败",
		ErrStorageFailed:    "存储服务出现错误，请稍后重试",
		ErrComparisonNeeds:  "比较任务需要至少一个文档，请上传文件或使用之前对话中的文档",
	},
	"English": {
		ErrInvalidRequest:   "Invalid or missing request parameters",
		ErrUnauthorized:     "Invalid API key",
		ErrFileTooLarge:     "File too large, exceeds maximum limit",
		ErrUnsupportedFile:  "Unsupported file format",
		ErrNoContent:        "No extractable text content found in document",
		ErrProcessingFailed: "Error occurred during document processing",
		ErrLLMTimeout:       "Model endpoint timed out, please retry later",
		ErrLLMFailed:        "Model endpoint request failed",
		ErrStorageFailed:    "Storage error, please retry later",
		ErrComparisonNeeds:  "Comparison tasks require at least one document. Please upload a file or use documents from previous turns",
	},
}

// Message returns the catalogue text for a code in the given language,
// falling back to Chinese and then to the code itself.
func Message(code, language string) string {
	lang, ok := messages[language]
	if !ok {
		lang = messages["Chinese"]
	}
	if m, ok := lang[code]; ok {
		return m
	}
	return code
}
