// Command subflowsim is a manual-test harness for the engine: it wires up
// an in-memory equipment layout (one load port that doubles as the unload
// port, two robot arms, and one process module station), drives its single
// simulated process module, enrolls a few substrates, and ticks the scheduler until
// interrupted -- grounded on the teacher's cli/cmd/ariadne binary, trimmed
// to stdlib flag parsing and no seed/checkpoint machinery since this domain
// has no crawl frontier to resume.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"subflow/engine"
)

func main() {
	var (
		substrateCount int
		runFor         time.Duration
		snapshotEvery  time.Duration
		metricsAddr    string
		healthAddr     string
		enableMetrics  bool
		metricsBackend string
		showVersion    bool
	)
	flag.IntVar(&substrateCount, "substrates", 3, "Number of substrates to load at startup")
	flag.DurationVar(&runFor, "run-for", 0, "Stop automatically after this duration (0=run until interrupted)")
	flag.DurationVar(&snapshotEvery, "snapshot-interval", 5*time.Second, "Interval between progress snapshots (0=disabled)")
	flag.StringVar(&metricsAddr, "metrics", "", "Expose metrics on address (e.g. :9090)")
	flag.StringVar(&healthAddr, "health", "", "Expose health endpoint on address (e.g. :9091)")
	flag.BoolVar(&enableMetrics, "enable-metrics", false, "Enable metrics provider (required to serve -metrics)")
	flag.StringVar(&metricsBackend, "metrics-backend", "prom", "Metrics backend: prom|otel|noop")
	flag.BoolVar(&showVersion, "version", false, "Show version / build info")
	flag.Parse()

	if showVersion {
		fmt.Println("subflowsim - substrate tracking/routing engine demo binary")
		return
	}

	cfg := demoConfig()
	if enableMetrics {
		cfg.MetricsEnabled = true
		cfg.MetricsBackend = metricsBackend
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}
	defer func() { _ = eng.Stop() }()

	eng.RegisterEventObserver(func(ev engine.TelemetryEvent) {
		log.Printf("event category=%s type=%s fields=%v", ev.Category, ev.Type, ev.Fields)
	})

	if err := eng.DriveModuleAvailable("ITPR1"); err != nil {
		log.Fatalf("drive module available: %v", err)
	}

	for i := 0; i < substrateCount; i++ {
		name := fmt.Sprintf("Wafer%02d", i+1)
		spec := []engine.StepSpec{{UsableLocNames: []string{"PM1"}}}
		if _, err := eng.AddSubstrate(name, "LP1.01", "LP1.01", engine.SPSUndefined, spec); err != nil {
			log.Fatalf("add substrate %s: %v", name, err)
		}
		if err := eng.RequestJob(engine.SubstrateName(name), engine.SJRSRun); err != nil {
			log.Fatalf("request job %s: %v", name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if runFor > 0 {
		var runCancel context.CancelFunc
		ctx, runCancel = context.WithTimeout(ctx, runFor)
		defer runCancel()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; initiating graceful shutdown...")
		cancel()
		<-sigCh
		log.Println("second signal received; forcing exit")
		os.Exit(1)
	}()

	if metricsAddr != "" && cfg.MetricsEnabled {
		serveHandler(ctx, metricsAddr, "/metrics", eng.MetricsHandler())
	}
	if healthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			hs := eng.HealthSnapshot(r.Context())
			_ = json.NewEncoder(w).Encode(hs)
		})
		go serveMux(ctx, healthAddr, mux, "health")
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("start engine: %v", err)
	}

	var ticker *time.Ticker
	if snapshotEvery > 0 {
		ticker = time.NewTicker(snapshotEvery)
		defer ticker.Stop()
	}

	printSnapshot := func(label string) {
		snap := eng.Snapshot()
		b, _ := json.MarshalIndent(snap, "", "  ")
		fmt.Fprintf(os.Stderr, "\n=== %s %s ===\n%s\n", label, time.Now().Format(time.RFC3339), string(b))
	}

	if ticker != nil {
		for {
			select {
			case <-ticker.C:
				printSnapshot("SNAPSHOT")
			case <-ctx.Done():
				printSnapshot("FINAL SNAPSHOT")
				return
			}
		}
	}

	<-ctx.Done()
	printSnapshot("FINAL SNAPSHOT")
}

func serveHandler(ctx context.Context, addr, path string, h http.Handler) {
	if h == nil {
		log.Printf("metrics requested on %s but no handler available for this provider", addr)
		return
	}
	mux := http.NewServeMux()
	mux.Handle(path, h)
	go serveMux(ctx, addr, mux, "metrics")
}

func serveMux(ctx context.Context, addr string, mux *http.ServeMux, label string) {
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("%s listening on %s", label, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("%s server error: %v", label, err)
	}
}

// demoConfig lays out a minimal single-process-module system: a load port
// that doubles as unload port, two robot arms, and one process module,
// with ITPR1 covering the process module.
func demoConfig() engine.Config {
	cfg := engine.Defaults()
	cfg.Locations = []engine.LocationSpec{
		{Name: "LP1.01"},
		{Name: "R1.A"},
		{Name: "R1.B"},
		{Name: "PM1"},
	}
	cfg.Arms = engine.ArmNames{ArmA: "R1.A", ArmB: "R1.B"}
	cfg.Modules = []engine.ModuleSpec{
		{Name: "ITPR1", LocNames: []string{"PM1"}},
	}
	cfg.TickInterval = 250 * time.Millisecond
	return cfg
}
