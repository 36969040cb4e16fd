package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/crossarb/internal/discovery"
	"github.com/betbot/crossarb/internal/engine"
	"github.com/betbot/crossarb/internal/feed"
	"github.com/betbot/crossarb/internal/gateway"
	"github.com/betbot/crossarb/internal/ledger"
	"github.com/betbot/crossarb/internal/metrics"
	"github.com/betbot/crossarb/internal/statusapi"
	"github.com/betbot/crossarb/pkg/config"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/ratelimit"
	"github.com/betbot/crossarb/pkg/secretstore"
	"github.com/betbot/crossarb/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: config.yaml if present)")
	simulate := flag.Bool("sim", false, "force simulation mode (no live orders)")
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		panic(err)
	}

	if *simulate {
		os.Setenv("CROSSARB_SIM", "1")
	}
	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logrus.Fatalf("init logger: %v", err)
	}

	sm := shutdown.NewManager()
	if err := overlaySecrets(cfg, sm); err != nil {
		logrus.Fatalf("secret store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rl := ratelimit.NewManager()
	wsFeed := feed.NewWSFeed(cfg.Polymarket.WSURL)
	disc := discovery.NewGammaClient(cfg.Polymarket.GammaAPIURL, rl)

	gw, err := buildGateway(cfg, wsFeed, rl)
	if err != nil {
		logrus.Fatalf("gateway: %v", err)
	}

	lgr, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		logrus.Fatalf("open ledger %s: %v", cfg.Ledger.Path, err)
	}
	sm.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		_ = lgr.Close()
	})

	eng := engine.New(cfg, wsFeed, disc, gw, lgr)

	if cfg.Metrics.Enabled {
		if _, err := metrics.StartAsync(ctx, cfg.Metrics.Listen); err != nil {
			logrus.Errorf("metrics server: %v", err)
		} else {
			logrus.Infof("metrics on http://%s/debug/vars", cfg.Metrics.Listen)
		}
	}
	if cfg.Status.Enabled {
		if err := statusapi.New(eng, lgr).Start(ctx, cfg.Status.Listen); err != nil {
			logrus.Errorf("status server: %v", err)
		}
	}

	if err := wsFeed.Start(ctx); err != nil {
		logrus.Fatalf("start feed: %v", err)
	}
	sm.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		wsFeed.Stop()
	})

	logrus.Infof("crossarb started: symbols=%v threshold=%.2f shares=%g sim=%v",
		cfg.Strategy.Symbols, cfg.Strategy.SumThreshold, cfg.Strategy.Shares,
		cfg.Strategy.SimulationMode)

	_ = eng.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sm.Shutdown(shutdownCtx)
	logrus.Info("stopped")
}

// overlaySecrets fills credential gaps from the encrypted store, if one is
// configured. Config/env values win over stored ones.
func overlaySecrets(cfg *config.Config, sm *shutdown.Manager) error {
	if cfg.Secrets.StorePath == "" {
		return nil
	}
	key, err := secretstore.ParseKey(os.Getenv("CROSSARB_SECRETS_KEY"))
	if err != nil {
		return err
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Secrets.StorePath,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return err
	}
	sm.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		_ = store.Close()
	})

	creds, err := store.LoadCredentials()
	if err != nil {
		return err
	}
	fill := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	fill(&cfg.Polymarket.PrivateKey, creds.PrivateKey)
	fill(&cfg.Polymarket.APIKey, creds.APIKey)
	fill(&cfg.Polymarket.APISecret, creds.APISecret)
	fill(&cfg.Polymarket.APIPassphrase, creds.APIPassphrase)
	fill(&cfg.Polymarket.FunderAddress, creds.FunderAddress)
	return nil
}

func buildGateway(cfg *config.Config, f feed.Feed, rl *ratelimit.Manager) (gateway.OrderGateway, error) {
	if cfg.Strategy.SimulationMode {
		logrus.Warn("simulation mode: orders fill against the local quote cache")
		return gateway.NewSimGateway(f), nil
	}
	gw, err := gateway.NewClobGateway(gateway.ClobConfig{
		BaseURL:       cfg.Polymarket.ClobAPIURL,
		ChainID:       cfg.Polymarket.ChainID,
		PrivateKey:    cfg.Polymarket.PrivateKey,
		FunderAddress: cfg.Polymarket.FunderAddress,
		SignatureType: cfg.Polymarket.SignatureType,
		APIKey:        cfg.Polymarket.APIKey,
		APISecret:     cfg.Polymarket.APISecret,
		APIPassphrase: cfg.Polymarket.APIPassphrase,
	}, rl)
	if err != nil {
		return nil, err
	}
	logrus.Infof("live gateway ready, signer %s", gw.Signer())
	return gw, nil
}
