package models

// DetectLanguage is a script-presence heuristic, not language detection:
// any rune in the Arabic block (U+0600..U+06FF) yields "ar", anything else "en".
func DetectLanguage(text string) Language {
	for _, r := range text {
		if r >= 0x0600 && r <= 0x06FF {
			return LanguageArabic
		}
	}
	return LanguageEnglish
}
