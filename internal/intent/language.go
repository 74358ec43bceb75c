package intent

import "unicode"

// DetectLanguage reports whether text is primarily Chinese or English by
// counting CJK ideographs against Latin letters. Mixed content defaults to
// Chinese, matching the service's Chinese-first behavior. Text with no
// letters at all yields "" so the caller's configured default applies.
func DetectLanguage(text string) string {
	var chinese, english int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			chinese++
		case r < 128 && unicode.IsLetter(r):
			english++
		}
	}

	if chinese == 0 && english == 0 {
		return ""
	}
	if chinese > english {
		return "Chinese"
	}
	if english > chinese*2 || chinese == 0 {
		return "English"
	}
	return "Chinese"
}
