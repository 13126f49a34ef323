package handlers

/*
mermaid:
graph AdmissionFlow
    A[Member joins] --> B[Restrict member]
    B -->|No rights| Z[End]
    B --> C{Blacklisted?}
    C -->|Yes| D[Kick and notify debug user] --> Z
    C -->|No| E[Record join in flood window]
    E --> F[Generate challenge in chat language]
    F --> G[Send prompt with answer buttons]
    G --> H[Register pending challenge with timer]
    H --> I{First to happen}
    I -->|Correct answer| J[Passed notice, lift per ledger, shorten later]
    I -->|Wrong answer| K[Failed notice]
    I -->|Admin approve| L[Approved notice, lift per ledger]
    I -->|Admin reject| M[Rejected notice, kick]
    I -->|Member left or kicked| N[Delete prompt]
    I -->|Timeout| O{Flood or aggregation?}
    O -->|Yes| P[Delete prompt, bump aggregation counter]
    O -->|No| K
*/
import (
	"context"
	"regexp"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/antiflood"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/challenge"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/config"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/ledger"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/observability"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/pending"
)

type GatekeeperConfig struct {
	Timeout      time.Duration
	Kind         challenge.Kind
	ShortenDelay time.Duration
	JoinMaxAge   time.Duration
	Blacklist    []*regexp.Regexp
	DebugUserID  int64
}

// NewGatekeeperConfig compiles the blacklist patterns of cfg.
func NewGatekeeperConfig(cfg config.Challenge) (GatekeeperConfig, error) {
	res := GatekeeperConfig{
		Timeout:      cfg.Timeout,
		Kind:         challenge.Kind(cfg.Kind),
		ShortenDelay: cfg.ShortenAfterPassDelay,
		JoinMaxAge:   cfg.JoinMaxAge,
		DebugUserID:  cfg.DebugUserID,
	}
	for _, pattern := range cfg.Blacklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return GatekeeperConfig{}, errors.WithMessagef(err, "bad blacklist pattern %q", pattern)
		}
		res.Blacklist = append(res.Blacklist, re)
	}
	return res, nil
}

type Gatekeeper struct {
	s         bot.Service
	generator *challenge.Generator
	pending   *pending.Registry
	flood     *antiflood.Monitor
	ledger    *ledger.Ledger
	config    GatekeeperConfig
	now       func() time.Time

	logger         *log.Entry
	runCtx         context.Context
	workerCancel   context.CancelFunc
	workerWG       sync.WaitGroup
	startStopMutex sync.Mutex
	started        bool
}

func NewGatekeeper(s bot.Service, generator *challenge.Generator, flood *antiflood.Monitor, ledger *ledger.Ledger, config GatekeeperConfig) *Gatekeeper {
	g := &Gatekeeper{
		s:         s,
		generator: generator,
		flood:     flood,
		ledger:    ledger,
		config:    config,
		now:       time.Now,
		logger:    log.WithField("handler", "gatekeeper"),
	}
	g.pending = pending.NewRegistry(g.onChallengeExpired, pending.WithObserver(recordTransition))
	g.getLogEntry().WithField("timeout", config.Timeout.String()).Debug("created new gatekeeper")
	return g
}

func recordTransition(c pending.Challenge) {
	if c.Status == "pending" {
		observability.RecordChallengeIssued(string(c.Kind))
		return
	}
	observability.RecordChallengeFinished(string(c.Kind), c.Status)
}

// Pending exposes the registry of challenges waiting for an answer.
func (g *Gatekeeper) Pending() *pending.Registry {
	return g.pending
}

func (g *Gatekeeper) Start(ctx context.Context) error {
	g.startStopMutex.Lock()
	defer g.startStopMutex.Unlock()
	if g.started {
		return nil
	}

	g.runCtx, g.workerCancel = context.WithCancel(context.WithoutCancel(ctx))
	g.started = true
	return nil
}

// Stop abandons every pending challenge and waits for delayed edits. The
// members of abandoned challenges stay restricted.
func (g *Gatekeeper) Stop(ctx context.Context) error {
	g.startStopMutex.Lock()
	if !g.started {
		g.startStopMutex.Unlock()
		return nil
	}
	g.started = false
	cancel := g.workerCancel
	g.startStopMutex.Unlock()

	if abandoned := g.pending.Close(); len(abandoned) > 0 {
		g.getLogEntry().WithField("count", len(abandoned)).Warn("abandoned pending challenges on shutdown")
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.workerWG.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// runContext is the context of work that outlives the update it started in.
func (g *Gatekeeper) runContext() context.Context {
	g.startStopMutex.Lock()
	defer g.startStopMutex.Unlock()
	if g.runCtx == nil {
		return context.Background()
	}
	return g.runCtx
}

// goLater runs f after delay unless the gatekeeper stops first.
func (g *Gatekeeper) goLater(delay time.Duration, f func(ctx context.Context)) {
	ctx := g.runContext()
	g.workerWG.Add(1)
	go func() {
		defer g.workerWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		f(ctx)
	}()
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	entry := g.getLogEntry()

	if chat == nil || user == nil {
		entry.Debug("missing chat or user")
		return true, nil
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	switch {
	case u.CallbackQuery != nil:
		if !bot.IsChallengePayload(u.CallbackQuery.Data) {
			return true, nil
		}
		ev, ok := bot.ParseButtonPressed(u.CallbackQuery)
		if !ok {
			return true, nil
		}
		return false, g.OnButtonPressed(ctx, ev)

	case u.ChatMember != nil:
		ev, ok := bot.ParseMemberStatusChanged(u.ChatMember)
		if !ok {
			return true, nil
		}
		return false, g.OnMemberStatusChanged(ctx, ev)

	case u.MyChatMember != nil:
		ev, ok := bot.ParseMemberStatusChanged(u.MyChatMember)
		if !ok {
			return true, nil
		}
		return false, g.OnBotStatusChanged(ctx, ev)
	}

	return true, nil
}

func (g *Gatekeeper) getLogEntry() *log.Entry {
	if g.logger == nil {
		g.logger = log.WithField("handler", "gatekeeper")
	}
	return g.logger
}
