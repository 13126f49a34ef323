package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "NG_"

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		Languages        []string `env:"LANGUAGES,default=en,zh,ru"`
		EnabledHandlers  []string `env:"HANDLERS,default=admin,gatekeeper"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		DotPath          string   `env:"DOT_PATH,default=~/.tgcaptcha"`
		Workers          int      `env:"WORKERS,default=16"`
		APIRateLimit     float64  `env:"API_RATE_LIMIT,default=25"`
		OpsAddr          string   `env:"OPS_ADDR,default=:2112"`
		Challenge        Challenge
		AntiFlood        AntiFlood
		Storage          Storage
		TextSource       TextSource
	}

	Challenge struct {
		Timeout               time.Duration `env:"CHALLENGE_TIMEOUT,default=60s"`
		Kind                  string        `env:"CHALLENGE_KIND,default=auto"`
		ShortenAfterPassDelay time.Duration `env:"SHORTEN_AFTER_PASS_DELAY,default=15s"`
		JoinMaxAge            time.Duration `env:"JOIN_MAX_AGE,default=3m"`
		Blacklist             []string      `env:"BLACKLIST,delimiter=;"`
		DebugUserID           int64         `env:"DEBUG_USER_ID"`
	}

	AntiFlood struct {
		Period time.Duration `env:"FLOOD_PERIOD,default=60s"`
		Count  int           `env:"FLOOD_COUNT,default=5"`
	}

	Storage struct {
		Type       string `env:"STORAGE,default=json"`
		RecordFile string `env:"RECORD_FILE,default=record.json"`
		SQLiteFile string `env:"SQLITE_FILE,default=ledger.db"`
		RedisAddr  string `env:"REDIS_ADDR,default=localhost:6379"`
		RedisDB    int    `env:"REDIS_DB,default=0"`
	}

	TextSource struct {
		URL       string `env:"TEXT_SOURCE_URL,default=https://zh.wikisource.org/w/api.php"`
		UserAgent string `env:"TEXT_SOURCE_USER_AGENT,default=Telegram-CAPTCHA/1.0 (https://github.com/The-Earth/Telegram-CAPTCHA)"`
		Retries   int    `env:"TEXT_SOURCE_RETRIES,default=5"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

// Load reads the configuration once per process. Variables from the env
// file named by NG_ENV_FILE (".env" by default) are applied first and never
// override the real environment.
func Load() (Config, error) {
	once.Do(func() {
		cfg, err := Parse(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// Parse builds a Config from lookuper without touching the process-wide copy.
func Parse(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	envFile := os.Getenv(envPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}

	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath

	switch cfg.Challenge.Kind {
	case "auto", "arithmetic", "text":
	default:
		return nil, fmt.Errorf("unknown challenge kind %q", cfg.Challenge.Kind)
	}
	switch cfg.Storage.Type {
	case "json", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage.Type)
	}
	if cfg.Challenge.Timeout <= 0 {
		return nil, fmt.Errorf("challenge timeout must be positive, got %s", cfg.Challenge.Timeout)
	}
	return cfg, nil
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
