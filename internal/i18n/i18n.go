// Package i18n serves localized texts. Keys are the English texts
// themselves, so English needs no dictionary.
package i18n

import (
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/infra"
	"github.com/The-Earth/Telegram-CAPTCHA/resources"
)

const defaultLanguage = "en"

var state = struct {
	once         sync.Once
	translations map[string]map[string]string
	languages    []string
}{}

func load() {
	state.translations = map[string]map[string]string{}
	languages := map[string]struct{}{defaultLanguage: {}}

	content, err := resources.FS.ReadFile(infra.GetResourcesPath("i18n", "translations.yml"))
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load i18n")
		return
	}
	dict := map[string]map[string]string{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		log.WithField("error", err.Error()).Error("cant unmarshal i18n")
		return
	}
	for key, byLocale := range dict {
		for locale, value := range byLocale {
			lang := strings.ToLower(locale)
			if _, ok := state.translations[lang]; !ok {
				state.translations[lang] = map[string]string{}
			}
			state.translations[lang][key] = value
			languages[lang] = struct{}{}
		}
	}

	for lang := range languages {
		state.languages = append(state.languages, lang)
	}
	sort.Strings(state.languages)
}

// Get returns the translation of key for lang, or key itself when there is
// none. Regional variants like "zh-hans" fall back to their base language.
func Get(key, lang string) string {
	lang = Normalize(lang)
	if lang == defaultLanguage || lang == "" {
		return key
	}
	state.once.Do(load)
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	log.WithField("lang", lang).Tracef(`no translation for key "%s"`, key)
	return key
}

// GetLanguagesList returns every language with at least one translation,
// English included.
func GetLanguagesList() []string {
	state.once.Do(load)
	res := make([]string, len(state.languages))
	copy(res, state.languages)
	return res
}

// IsSupported reports whether texts can be served in lang.
func IsSupported(lang string) bool {
	lang = Normalize(lang)
	for _, l := range GetLanguagesList() {
		if l == lang {
			return true
		}
	}
	return false
}

// Normalize lowercases a language code and strips the region part.
func Normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
