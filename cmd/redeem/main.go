package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/crossarb/internal/discovery"
	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/ledger"
	"github.com/betbot/crossarb/pkg/config"
	"github.com/betbot/crossarb/pkg/ratelimit"
)

const sweepInterval = 3 * time.Minute

// The redeem worker walks the position ledger, checks which markets have
// resolved and marks their positions redeemed. Settlement itself is gasless
// on the exchange side once a market resolves; this worker keeps the local
// books in sync.
func main() {
	configPath := flag.String("config", "", "config file path")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	log.Println("[redeem] starting position sweeper...")

	if err := godotenv.Load(); err != nil {
		log.Println("[redeem] no .env file found, using environment variables")
	}

	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		// The sweeper only needs the ledger path and Gamma URL.
		defaults := config.Default()
		cfg = &defaults
		log.Printf("[redeem] config load failed (%v), using defaults", err)
	}

	lgr, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		log.Fatalf("[redeem] open ledger %s: %v", cfg.Ledger.Path, err)
	}
	defer lgr.Close()

	disc := discovery.NewGammaClient(cfg.Polymarket.GammaAPIURL, ratelimit.NewManager())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweep(ctx, lgr, disc)
	if *once {
		return
	}

	log.Printf("[redeem] sweeping every %s, press Ctrl+C to stop", sweepInterval)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("[redeem] stopped")
			return
		case <-ticker.C:
			sweep(ctx, lgr, disc)
		}
	}
}

func sweep(ctx context.Context, lgr *ledger.Ledger, disc *discovery.GammaClient) {
	positions, err := lgr.OpenPositions(ctx)
	if err != nil {
		log.Printf("[redeem] list positions: %v", err)
		return
	}
	if len(positions) == 0 {
		return
	}

	// Group by condition: one resolution check settles both outcome sides.
	byCondition := make(map[string][]domain.Position)
	for _, p := range positions {
		byCondition[p.ConditionID] = append(byCondition[p.ConditionID], p)
	}
	log.Printf("[redeem] %d open positions across %d markets", len(positions), len(byCondition))

	for conditionID, group := range byCondition {
		if ctx.Err() != nil {
			return
		}
		resolved, err := disc.Resolved(ctx, group[0].MarketSlug)
		if err != nil {
			log.Printf("[redeem] check %s: %v", group[0].MarketSlug, err)
			continue
		}
		if !resolved {
			continue
		}
		if err := lgr.MarkRedeemed(ctx, conditionID); err != nil {
			log.Printf("[redeem] mark %s: %v", conditionID, err)
			continue
		}
		var cost float64
		for _, p := range group {
			cost += p.Cost()
		}
		log.Printf("[redeem] settled %s: %d positions, cost %.2f", group[0].MarketSlug, len(group), cost)
	}
}
