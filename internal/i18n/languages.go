package i18n

var languageNames = map[string]string{
	"be": "Беларуская",
	"de": "Deutsch",
	"en": "English",
	"es": "Español",
	"fr": "Français",
	"it": "Italiano",
	"ja": "日本語",
	"ko": "한국어",
	"pl": "Polski",
	"pt": "Português",
	"ru": "Русский",
	"uk": "Українська",
	"zh": "中文",
}

// GetLanguageName returns the native name of a language, or the code when
// the language is unknown.
func GetLanguageName(code string) string {
	if name, ok := languageNames[Normalize(code)]; ok {
		return name
	}
	return code
}
