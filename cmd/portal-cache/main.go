package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	portalcache "github.com/always-cache/portal-cache"
	"github.com/always-cache/portal-cache/cache"
	"github.com/always-cache/portal-cache/internal/api"
	"github.com/always-cache/portal-cache/internal/config"
	"github.com/always-cache/portal-cache/portal"
	"github.com/always-cache/portal-cache/session"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to YAML config file")
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout, overrides config)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	cfg, err := config.Load(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load config")
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}
	if logFilenameFlag != "" {
		cfg.Log.File = logFilenameFlag
	}

	setupLogger(cfg.Log)

	provider, err := cacheProvider(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot set up cache")
	}

	baseURL, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse upstream url")
	}
	header := http.Header{}
	header.Set("Referer", baseURL.JoinPath("MainPage.html").String())
	header.Set("Host", baseURL.Host)
	header.Set("Connection", "keep-alive")
	header.Set("User-Agent", cfg.Upstream.UserAgent)

	rules := append(cfg.Cache.Rules, portal.DefaultRules()...)
	fetcher := portalcache.New(portalcache.Config{
		Cache:      provider,
		Client:     &http.Client{},
		DefaultTTL: cfg.Cache.DefaultTTL,
		Timeout:    cfg.Upstream.Timeout,
		Rules:      rules,
		Header:     header,
		Logger:     &log.Logger,
	})

	sessions, err := session.NewFileStore(cfg.Session.File, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot load session file")
	}

	client := portal.New(portal.Config{
		Pipeline:     fetcher,
		Session:      sessions,
		BaseURL:      cfg.Upstream.BaseURL,
		UnivCode:     cfg.Upstream.UnivCode,
		Cookie:       cfg.Session.Cookie,
		LoginTimeout: cfg.Upstream.LoginTimeout,
		Logger:       &log.Logger,
	})

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.New(api.Options{
			Portal: client,
			Cache:  fetcher,
			Logger: &log.Logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Msgf("Serving portal on port %d (upstream %s, %s cache at %s)",
		cfg.Port, cfg.Upstream.BaseURL, provider.Name(), provider.Location())
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// setupLogger points the global logger at stdout, and also at the log file
// if one is configured.
func setupLogger(cfg config.Log) {
	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		logLevel = zerolog.DebugLevel
	}
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	logOutputs := make([]io.Writer, 0)
	if cfg.JSON {
		logOutputs = append(logOutputs, os.Stdout)
	} else {
		logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if cfg.File != "" {
		if logFileOutput, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()
}

func cacheProvider(cfg config.Cache) (cache.CacheProvider, error) {
	switch cfg.Provider {
	case config.ProviderSQLite:
		return cache.NewSQLiteCache(cfg.Path), nil
	case config.ProviderMemory:
		return cache.NewMemCache(), nil
	case config.ProviderRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisCache(client, cfg.RedisPrefix, cfg.StaleRetention), nil
	}
	return nil, fmt.Errorf("unsupported cache provider %q", cfg.Provider)
}
