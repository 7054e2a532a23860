package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"bigdipper/internal/cli"
	"bigdipper/internal/config"
	"bigdipper/internal/metrics"
	"bigdipper/pkg/engine"
	"bigdipper/pkg/journal"

	// Import for side-effects: registers broker providers.
	_ "bigdipper/pkg/broker/alpaca"
	_ "bigdipper/pkg/broker/sim"
)

var configFile = flag.String("f", "etc/dipper.yaml", "path to the main config file")

func main() {
	flag.Parse()

	logx.DisableStat()
	defer logx.Close()

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config %s: %v", *configFile, err)
	}
	cli.LogConfigSummary(appCfg)

	brokerCfg := appCfg.Broker.Value
	if brokerCfg == nil {
		log.Fatal("broker config section is required")
	}
	engineCfg := appCfg.Engine.Value
	if engineCfg == nil {
		log.Fatal("engine config section is required")
	}

	// In test mode every alpaca provider is forced onto the paper
	// endpoints, whatever the yaml says.
	if appCfg.IsTestEnv() {
		for _, p := range brokerCfg.Providers {
			if p.Type == "alpaca" {
				p.Paper = true
			}
		}
	}

	providers, err := brokerCfg.BuildProviders()
	if err != nil {
		log.Fatalf("build broker providers: %v", err)
	}
	provider, ok := providers[brokerCfg.Default]
	if !ok {
		log.Fatalf("default broker provider %q not found", brokerCfg.Default)
	}

	opts := []engine.Option{
		engine.WithCycleHook(recordMetrics),
	}
	if appCfg.JournalDir != "" {
		w, err := journal.NewWriter(appCfg.JournalDir)
		if err != nil {
			log.Fatalf("open journal: %v", err)
		}
		defer w.Close()
		opts = append(opts, engine.WithJournal(w))
	}

	metrics.Serve(appCfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engineCfg, provider, opts...)
	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("engine stopped: %v", err)
	}
	logx.Info("shutdown complete")
}

func recordMetrics(s engine.CycleSummary) {
	skips := make(map[string]int, len(s.SkipReasons))
	for r, n := range s.SkipReasons {
		skips[string(r)] = n
	}
	metrics.RecordCycle(s.Err == nil, s.Equity, s.LeverageRatio,
		s.State == engine.StateBrake, s.Executed, s.Deployed, s.OrdersCancelled, skips)
}
