// Package challenge generates the verification problems shown to new members.
package challenge

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	cerrors "github.com/The-Earth/Telegram-CAPTCHA/internal/errors"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/i18n"
)

// ChoicesCount is the number of answer buttons every challenge offers.
const ChoicesCount = 6

type Kind string

const (
	KindAuto       Kind = "auto"
	KindArithmetic Kind = "arithmetic"
	KindText       Kind = "text"
)

// Challenge is a generated problem with one correct answer among distractors.
// Choices never starts with the answer.
type Challenge interface {
	Kind() Kind
	Question() string
	Answer() string
	Choices() []string
}

// TextSource supplies raw article text for text identification challenges.
type TextSource interface {
	RandomExtract(ctx context.Context) (string, error)
}

type random interface {
	Intn(n int) int
	Perm(n int) []int
	Shuffle(n int, swap func(i, j int))
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func (l *lockedRand) Perm(n int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)
}

func (l *lockedRand) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}

type Generator struct {
	source  TextSource
	retries int
	rnd     random
	logger  *log.Entry
}

type Option func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rnd = &lockedRand{r: rand.New(rand.NewSource(seed))}
	}
}

func NewGenerator(source TextSource, retries int, opts ...Option) *Generator {
	if retries < 1 {
		retries = 1
	}
	g := &Generator{
		source:  source,
		retries: retries,
		rnd:     &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))},
		logger:  log.WithField("context", "challenge"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ResolveKind turns KindAuto into a concrete kind for the chat locale.
func ResolveKind(kind Kind, locale string) Kind {
	switch kind {
	case KindArithmetic, KindText:
		return kind
	}
	if i18n.Normalize(locale) == "zh" {
		return KindText
	}
	return KindArithmetic
}

// NewChallenge returns a fresh challenge. A text challenge fails with
// ErrSourceUnavailable once the source is exhausted; it never degrades to
// an arithmetic one.
func (g *Generator) NewChallenge(ctx context.Context, kind Kind, locale string) (Challenge, error) {
	switch ResolveKind(kind, locale) {
	case KindText:
		if g.source == nil {
			return nil, errors.WithMessage(cerrors.ErrSourceUnavailable, "no text source configured")
		}
		return g.newTextIdentification(ctx, locale)
	default:
		return g.newArithmetic(), nil
	}
}
