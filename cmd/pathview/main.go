// Command pathview serves the robot path dashboard.
//
// It polls the planning backend for validation status, generated programs
// and the computed path, renders the path into a server-side 3D scene and
// serves the panels over HTTP. Rendered frames are also streamed over gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/pathview/internal/config"
	"github.com/banshee-data/pathview/internal/dashboard"
	"github.com/banshee-data/pathview/internal/history"
	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/scenestream"
	"github.com/banshee-data/pathview/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to a JSON config file (defaults built in)")
	backendURL = flag.String("backend", "", "Backend base URL (overrides config)")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen = flag.String("grpc-listen", "", "gRPC scene stream address (overrides config)")
	noGRPC     = flag.Bool("no-grpc", false, "Disable the gRPC scene stream")
	dbPath     = flag.String("db", "", "History database path (overrides config)")
	noHistory  = flag.Bool("no-history", false, "Disable snapshot history")
	policy     = flag.String("overlap-policy", "", "latest_issued, monotonic or latest_completed (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.DashboardConfig, error) {
	cfg := config.DefaultDashboardConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadDashboardConfig(*configPath); err != nil {
			return nil, err
		}
	}

	// Only flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.BackendURL = backendURL
		case "listen":
			cfg.Listen = listen
		case "grpc-listen":
			cfg.GRPCListen = grpcListen
		case "db":
			cfg.DBPath = dbPath
		case "overlap-policy":
			cfg.OverlapPolicy = policy
		case "debug":
			cfg.Debug = debug
		}
	})
	if *noGRPC {
		empty := ""
		cfg.GRPCListen = &empty
	}
	if *noHistory {
		disabled := false
		cfg.HistoryEnabled = &disabled
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	monitoring.SetDebug(cfg.GetDebug())

	opts := dashboard.Options{Config: cfg}

	if cfg.GetHistoryEnabled() {
		store, err := history.Open(cfg.GetDBPath())
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer store.Close()
		recorder := history.NewRecorder(store, cfg.GetHistoryRetain())
		recorder.Start()
		defer recorder.Stop()
		opts.Store = store
		opts.Recorder = recorder
		log.Printf("recording snapshot history to %s", cfg.GetDBPath())
	}

	if addr := cfg.GetGRPCListen(); addr != "" {
		scfg := scenestream.DefaultConfig()
		scfg.ListenAddr = addr
		publisher := scenestream.NewPublisher(scfg)
		if err := publisher.Start(); err != nil {
			log.Fatalf("Failed to start scene stream: %v", err)
		}
		defer publisher.Stop()
		opts.Publisher = publisher
	}

	dash, err := dashboard.New(opts)
	if err != nil {
		log.Fatalf("Failed to create dashboard: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dash.Start(ctx); err != nil {
		log.Fatalf("Failed to start dashboard: %v", err)
	}
	defer dash.Stop()

	handler, err := dash.Handler()
	if err != nil {
		log.Fatalf("Failed to attach admin routes: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: handler,
		}

		go func() {
			log.Printf("dashboard listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
