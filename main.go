package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/The-Earth/Telegram-CAPTCHA/internal/antiflood"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/bot"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/challenge"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/config"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/jsonfile"
	redisstore "github.com/The-Earth/Telegram-CAPTCHA/internal/db/redis"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/db/sqlite"
	adminhandlers "github.com/The-Earth/Telegram-CAPTCHA/internal/handlers/admin"
	chathandlers "github.com/The-Earth/Telegram-CAPTCHA/internal/handlers/chat"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/infra"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/ledger"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/lifecycle"
	"github.com/The-Earth/Telegram-CAPTCHA/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.NbFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))
	log.SetReportCaller(log.Level(cfg.LogLevel) >= log.TraceLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing()
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithField("error", err.Error()).Warn("cant shutdown tracing")
		}
	}()

	// A panic restarts run with fresh storage and handlers; a normal return
	// ends the process.
	done := make(chan struct{})
	finish := sync.OnceFunc(func() { close(done) })
	infra.GoRecoverable(3, "process_updates", func() {
		if err := run(ctx, &cfg); err != nil {
			log.WithField("error", err.Error()).Error("bot stopped")
		}
		finish()
	})

	select {
	case <-done:
	case <-ctx.Done():
		log.Info("shutting down")
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			log.Warn("shutdown timed out")
		}
	case <-infra.MonitorExecutable(ctx):
		log.Error("executable file was modified")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return errors.WithMessage(err, "cant open storage")
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		_ = store.Close()
		return errors.WithMessage(err, "cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	log.WithField("username", botAPI.Self.UserName).Info("authorized")

	service := bot.NewService(bot.NewTelegramPlatform(botAPI, cfg.APIRateLimit), store, cfg.DefaultLanguage)

	gatekeeperConfig, err := chathandlers.NewGatekeeperConfig(cfg.Challenge)
	if err != nil {
		_ = store.Close()
		return errors.WithMessage(err, "invalid challenge config")
	}
	generator := challenge.NewGenerator(
		challenge.NewWikiSource(cfg.TextSource.URL, cfg.TextSource.UserAgent),
		cfg.TextSource.Retries,
	)
	flood := antiflood.NewMonitor(cfg.AntiFlood.Period, cfg.AntiFlood.Count)
	gatekeeper := chathandlers.NewGatekeeper(service, generator, flood, ledger.New(store), gatekeeperConfig)

	bot.RegisterUpdateHandler("admin", adminhandlers.NewAdmin(service, flood, cfg.Languages))
	bot.RegisterUpdateHandler("gatekeeper", gatekeeper)

	runtime := lifecycle.NewRuntime()
	runtime.Register("storage", lifecycle.Hook{OnStop: func(context.Context) error {
		return store.Close()
	}})
	runtime.Register("gatekeeper", gatekeeper)
	runtime.Register("ops", observability.NewServer(cfg.OpsAddr, gatekeeper.Pending(), store))
	if err := runtime.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithField("error", err.Error()).Warn("cant stop components")
		}
	}()

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "chat_member", "my_chat_member"}
	updateProcessor := bot.NewUpdateProcessor(service, cfg.EnabledHandlers)

	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for update := range updateChan {
		g.Go(func() error {
			err := infra.Recover("update", func() error {
				return updateProcessor.Process(gctx, &update)
			})
			if err != nil {
				log.WithFields(log.Fields{"update_id": update.UpdateID, "error": err.Error()}).Error("cant process update")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err, ok := <-errorChan; ok && !errors.Is(err, context.Canceled) {
		return errors.WithMessage(err, "get updates")
	}
	return nil
}

func openStorage(ctx context.Context, cfg *config.Config) (db.Client, error) {
	dotPath := infra.GetWorkDir(cfg.DotPath)
	entry := log.WithFields(log.Fields{"storage": cfg.Storage.Type, "dir": dotPath})

	switch cfg.Storage.Type {
	case "sqlite":
		entry.Info("using sqlite ledger")
		client, err := sqlite.NewSQLiteClient(ctx, dotPath, cfg.Storage.SQLiteFile)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "redis":
		entry.WithField("addr", cfg.Storage.RedisAddr).Info("using redis ledger")
		rdb := goredis.NewClient(&goredis.Options{
			Addr: cfg.Storage.RedisAddr,
			DB:   cfg.Storage.RedisDB,
		})
		client, err := redisstore.NewRedisClient(ctx, rdb)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		return client, nil
	default:
		entry.Info("using record file ledger")
		client, err := jsonfile.NewJSONClient(dotPath, cfg.Storage.RecordFile)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
