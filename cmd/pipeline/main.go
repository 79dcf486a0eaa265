package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/pkg/sys"

	"main/internal/adapter"
	"main/internal/audit"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/dispatch"
	"main/internal/feed"
	"main/internal/guardrail"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/publish"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

const (
	sourcePipeline uint16 = 1

	marketQueueCap   = 65536
	intentQueueCap   = 8192
	decisionQueueCap = 8192
	feedbackQueueCap = 8192
	controlQueueCap  = 256
	riskCtlQueueCap  = 1024
	streamCap        = 65536
	tapCap           = 65536
)

func main() {
	configPath := flag.String("config", "config/pipeline.json", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := obs.NewMetrics()
	stream := obs.NewStream(streamCap, sourcePipeline, metrics)

	// Queues. One market queue per consumer so the dispatcher and the risk
	// engine each see every tick.
	market := bus.NewQueue[schema.MarketData](marketQueueCap)
	riskMarket := bus.NewQueue[schema.MarketData](marketQueueCap)
	intents := bus.NewQueue[schema.OrderIntent](intentQueueCap)
	approved := bus.NewQueue[schema.RiskDecision](decisionQueueCap)
	feedback := bus.NewQueue[schema.BrokerResponse](feedbackQueueCap)
	dispatchCtl := bus.NewQueue[dispatch.Control](controlQueueCap)
	riskCtl := bus.NewQueue[risk.Control](riskCtlQueueCap)
	adapterCtl := bus.NewQueue[adapter.Control](controlQueueCap)

	table, err := buildTable(loaded.Strategies)
	if err != nil {
		log.Fatalf("build strategy table: %v", err)
	}

	fsm := guardrail.New(loaded.Guardrail)
	for _, spec := range loaded.Strategies {
		fsm.Register(spec.ID)
	}

	// Guardrail transitions fan out to both sides of the gate so the
	// dispatcher throttles strategies and the adapter sweeps on HALT.
	onTransition := func(tr schema.GuardrailTransition) {
		_ = dispatchCtl.TryPublish(dispatch.Control{Kind: dispatch.ControlGuardrail, Transition: tr})
		_ = adapterCtl.TryPublish(adapter.Control{Kind: adapter.ControlGuardrail, Transition: tr})
	}

	channel, err := openBroker(ctx, loaded.Broker)
	if err != nil {
		log.Fatalf("open broker channel: %v", err)
	}
	defer channel.Close()

	ids := strategy.NewIntentSequencer(uint64(time.Now().UnixNano()))
	dispatcher := dispatch.New(loaded.Dispatch, table, ids, market, feedback, dispatchCtl, intents, stream, metrics)
	engine := risk.NewEngine(loaded.Limits, loaded.Registry, fsm, intents, riskMarket, riskCtl, approved, feedback, onTransition, stream, metrics)
	orderAdapter := adapter.New(loaded.Adapter, channel, approved, adapterCtl, feedback, riskCtl, stream, metrics)

	// Stream taps: the WAL always records, NATS mirrors when enabled.
	taps := make([]*bus.Queue[obs.Envelope], 0, 2)
	walTap := bus.NewQueue[obs.Envelope](tapCap)
	taps = append(taps, walTap)
	writer, err := recorder.NewWriter(loaded.Recorder, walTap)
	if err != nil {
		log.Fatalf("open wal writer: %v", err)
	}

	var publisher *publish.Publisher
	if loaded.Publish.Enabled {
		natsTap := bus.NewQueue[obs.Envelope](tapCap)
		taps = append(taps, natsTap)
		publisher, err = publish.Connect(publish.Config{URL: loaded.Publish.URL, Subject: loaded.Publish.Subject}, natsTap, metrics)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		defer publisher.Close()
	}

	var auditStore *audit.Store
	if loaded.Audit.DSN != "" {
		auditStore, err = audit.Open(loaded.Audit.DSN)
		if err != nil {
			log.Fatalf("open audit store: %v", err)
		}
	}

	if addr := loaded.Server.PyroscopeAddr; addr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "pipeline",
			ServerAddress:   addr,
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			log.Printf("%s stopped", name)
		}()
	}

	run("fanout", func(ctx context.Context) { obs.RunFanout(ctx, stream, taps...) })
	run("recorder", func(ctx context.Context) {
		if err := writer.Run(ctx); err != nil {
			log.Printf("recorder: %v", err)
			cancel()
		}
	})
	if publisher != nil {
		run("publisher", publisher.Run)
	}
	run("dispatcher", dispatcher.Run)
	run("risk", engine.Run)
	run("adapter", orderAdapter.Run)

	if loaded.FeedOn {
		sim, err := feed.NewSim(loaded.Feed, loaded.Registry, stream, market, riskMarket)
		if err != nil {
			log.Fatalf("feed: %v", err)
		}
		run("feed", sim.Run)
	}

	controlServer := startControl(loaded.Server, dispatchCtl, riskCtl, adapterCtl, stream, auditStore)
	metricsServer := startMetrics(loaded.Server, metrics)

	if *configReload > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watchConfig(ctx, *configPath, *configReload, func(next ops.Loaded) {
				applyStrategyToggles(loaded.Strategies, next.Strategies, dispatchCtl)
				loaded.Strategies = next.Strategies
			})
		}()
	}

	log.Printf("pipeline up: %d symbols, %d strategies, broker=%s",
		loaded.Registry.SymbolCount(), len(loaded.Strategies), loaded.Broker.Mode)

	select {
	case <-sys.Shutdown():
		log.Printf("signal received, shutting down")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if controlServer != nil {
		_ = controlServer.Shutdown(shutdownCtx)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	stream.Close()
	wg.Wait()
}

// buildTable turns resolved strategy specs into dispatch table rows.
func buildTable(specs []ops.StrategySpec) (*strategy.Table, error) {
	table := strategy.NewTable()
	for _, spec := range specs {
		var impl strategy.Strategy
		switch spec.Kind {
		case "", "quoter":
			impl = &strategy.Quoter{
				HalfSpread:  spec.HalfSpread,
				Size:        spec.Size,
				RequoteStep: spec.RequoteStep,
				SkewPerLot:  spec.SkewPerLot,
				TTLNs:       int64(spec.QuoteTTL),
			}
		default:
			return nil, fmt.Errorf("strategy %s: unknown kind %q", spec.Name, spec.Kind)
		}
		if err := table.Register(strategy.Entry{
			ID:       spec.ID,
			Name:     spec.Name,
			Symbols:  spec.Symbols,
			Budget:   spec.Budget,
			Enabled:  spec.Enabled,
			Strategy: impl,
		}); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func openBroker(ctx context.Context, cfg ops.BrokerConfig) (broker.Channel, error) {
	switch cfg.Mode {
	case "wire":
		wire, err := broker.DialWire(ctx, cfg.Wire)
		if err != nil {
			return nil, err
		}
		return wire, nil
	case "", "sim":
		return broker.NewSim(broker.SimConfig{
			AckDelay:    time.Duration(cfg.Sim.AckDelayUs) * time.Microsecond,
			FillDelay:   time.Duration(cfg.Sim.FillDelayUs) * time.Microsecond,
			RejectEvery: cfg.Sim.RejectEvery,
		}), nil
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Mode)
	}
}

func startControl(cfg ops.ServerConfig, dispatchCtl *bus.Queue[dispatch.Control], riskCtl *bus.Queue[risk.Control], adapterCtl *bus.Queue[adapter.Control], stream *obs.Stream, auditStore *audit.Store) *http.Server {
	if cfg.ControlAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	ops.NewController(cfg.ControlToken, dispatchCtl, riskCtl, adapterCtl, stream, auditStore).Register(mux)
	server := &http.Server{Addr: cfg.ControlAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control server: %v", err)
		}
	}()
	return server
}

func startMetrics(cfg ops.ServerConfig, metrics *obs.Metrics) *http.Server {
	if cfg.MetricsAddr == "" {
		return nil
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(obs.NewCollector(metrics))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()
	return server
}

func watchConfig(ctx context.Context, path string, interval time.Duration, update func(ops.Loaded)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				log.Printf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := ops.Load(path)
			if err != nil {
				log.Printf("config reload failed: %v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			log.Printf("config reloaded: %s", path)
		}
	}
}

// applyStrategyToggles pushes enable/disable controls for strategies whose
// Enabled flag changed between reloads. Structural changes (registry,
// limits, new strategies) need a restart.
func applyStrategyToggles(prev, next []ops.StrategySpec, ctl *bus.Queue[dispatch.Control]) {
	enabled := make(map[uint32]bool, len(prev))
	for _, spec := range prev {
		enabled[spec.ID] = spec.Enabled
	}
	for _, spec := range next {
		was, known := enabled[spec.ID]
		if !known || was == spec.Enabled {
			continue
		}
		kind := dispatch.ControlDisable
		if spec.Enabled {
			kind = dispatch.ControlEnable
		}
		if err := ctl.TryPublish(dispatch.Control{Kind: kind, StrategyID: spec.ID}); err != nil {
			log.Printf("strategy toggle dropped: %v", err)
		}
	}
}
