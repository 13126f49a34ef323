package challenge

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
)

const (
	extractLength = 50
	minIdeographs = 11
	maxTargetIdx  = 10
)

type TextIdentification struct {
	Text    string
	Index   int
	Ordinal string
	Locale  string
	Target  string
	Options []string
}

func (c *TextIdentification) Kind() Kind { return KindText }

func (c *TextIdentification) Question() string {
	return fmt.Sprintf(
		i18n.Get("Which one is the %s Chinese character of the following text?\n<code>%s</code>", c.Locale),
		c.Ordinal,
		html.EscapeString(c.Text),
	)
}

func (c *TextIdentification) Answer() string { return c.Target }

func (c *TextIdentification) Choices() []string {
	res := make([]string, len(c.Options))
	copy(res, c.Options)
	return res
}

func (g *Generator) newTextIdentification(ctx context.Context, locale string) (*TextIdentification, error) {
	entry := g.logger.WithField("method", "newTextIdentification")

	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		extract, err := g.source.RandomExtract(ctx)
		if err != nil {
			lastErr = err
			entry.WithField("attempt", attempt).WithField("error", err.Error()).Warn("cant fetch extract")
			continue
		}
		text := stripSpace(truncateRunes(extract, extractLength))
		han := ideographs(text)
		if len(han) < minIdeographs {
			entry.WithField("attempt", attempt).Debug("extract has too few ideographs")
			continue
		}

		c, ok := g.buildTextIdentification(text, han, locale)
		if !ok {
			entry.WithField("attempt", attempt).Debug("extract has too few distinct ideographs")
			continue
		}
		return c, nil
	}

	if lastErr != nil {
		return nil, errors.WithMessage(cerrors.ErrSourceUnavailable, lastErr.Error())
	}
	return nil, cerrors.ErrSourceUnavailable
}

func (g *Generator) buildTextIdentification(text string, han []rune, locale string) (*TextIdentification, bool) {
	target := 1 + g.rnd.Intn(maxTargetIdx)
	answer := han[target-1]

	// Candidate positions come from [1, maxTargetIdx) without replacement.
	// Positions repeating an already taken character are skipped so button
	// labels stay unique.
	pool := make([]int, 0, ChoicesCount)
	taken := map[rune]bool{}
	for _, p := range g.rnd.Perm(maxTargetIdx - 1) {
		idx := p + 1
		ch := han[idx-1]
		if taken[ch] || (ch == answer && idx != target) {
			continue
		}
		taken[ch] = true
		pool = append(pool, idx)
		if len(pool) == ChoicesCount {
			break
		}
	}
	if len(pool) < ChoicesCount {
		return nil, false
	}

	if indexOf(pool, target) < 0 {
		pool[1+g.rnd.Intn(ChoicesCount-1)] = target
	}
	shuffle := func() {
		g.rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}
	shuffle()
	// Some bots blindly press the first button.
	for pool[0] == target {
		shuffle()
	}

	options := make([]string, len(pool))
	for i, idx := range pool {
		options[i] = string(han[idx-1])
	}

	return &TextIdentification{
		Text:    text,
		Index:   target,
		Ordinal: Ordinal(target, locale),
		Locale:  locale,
		Target:  string(answer),
		Options: options,
	}, true
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// ideographs keeps CJK unified ideographs only.
func ideographs(s string) []rune {
	res := make([]rune, 0, len(s)/3)
	for _, r := range s {
		if r >= '\u4e00' && r <= '\u9fff' {
			res = append(res, r)
		}
	}
	return res
}
