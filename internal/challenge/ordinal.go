package challenge

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/infra"
	"github.com/The-Earth/Telegram-CAPTCHA/resources"
)

type ordinalPattern struct {
	Default string         `yaml:"default"`
	Exact   map[int]string `yaml:"exact"`
}

var (
	ordinalsOnce sync.Once
	ordinals     map[string]ordinalPattern
)

func loadOrdinals() {
	ordinals = map[string]ordinalPattern{}
	data, err := resources.FS.ReadFile(infra.GetResourcesPath("challenge", "ordinals.yml"))
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load ordinals")
		return
	}
	if err := yaml.Unmarshal(data, &ordinals); err != nil {
		log.WithField("error", err.Error()).Error("cant unmarshal ordinals")
	}
}

// Ordinal renders n the way the locale writes "n-th": plain digits for CJK
// locales, a localized suffix where one is known, English otherwise.
func Ordinal(n int, locale string) string {
	lang := i18n.Normalize(locale)
	switch lang {
	case "zh", "ja", "ko":
		return strconv.Itoa(n)
	case "en", "":
		return humanize.Ordinal(n)
	}

	ordinalsOnce.Do(loadOrdinals)
	pattern, ok := ordinals[lang]
	if !ok {
		return humanize.Ordinal(n)
	}
	if exact, ok := pattern.Exact[n]; ok {
		return fmt.Sprintf(exact, n)
	}
	if pattern.Default == "" {
		return humanize.Ordinal(n)
	}
	return fmt.Sprintf(pattern.Default, n)
}
