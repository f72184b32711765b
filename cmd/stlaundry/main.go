package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/csutihu/stlaundry/internal/config"
	"github.com/csutihu/stlaundry/internal/engine"
	"github.com/csutihu/stlaundry/internal/logging"
	"github.com/csutihu/stlaundry/internal/registry"
	"github.com/csutihu/stlaundry/internal/smartthings"
	"github.com/csutihu/stlaundry/internal/token"
	"github.com/csutihu/stlaundry/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	once := flag.Bool("once", false, "Run a single poll cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(cfg))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open device registry")
	}

	store := token.NewFileStore(cfg.Tokens.Path)
	tokens := token.NewManager(cfg.SmartThings, store, cfg.RequestTimeout(), logger)
	fetcher := smartthings.NewClient(cfg.SmartThings.BaseURL, cfg.RequestTimeout(), logger)

	eng := engine.New(cfg, logger, reg, tokens, fetcher)
	defer eng.Close()

	if cfg.Telemetry.Enabled {
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry disabled: %v\n", err)
		} else {
			eng.SetTelemetry(collector)
			go serveMetrics(ctx, cfg.Telemetry.Listen, logger)
		}
	}

	if err := eng.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start engine")
	}

	if *once {
		eng.PollOnce(ctx)
		return
	}

	if err := eng.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("engine stopped with error")
	}
}

func serveMetrics(ctx context.Context, listen string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("listen", listen).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics endpoint stopped")
	}
}

func executeConfigCheck(cfg *config.Config) int {
	fmt.Printf("Heartbeat: %s\n", cfg.HeartbeatInterval())
	fmt.Printf("Polling: on=%s off=%s\n", cfg.OnInterval(), cfg.OffInterval())
	fmt.Printf("Registry: %s\n", cfg.Registry.Driver)
	describeAppliance("Washer", cfg.Appliances.Washer)
	describeAppliance("Dryer", cfg.Appliances.Dryer)

	if !cfg.Appliances.Washer.Enabled() && !cfg.Appliances.Dryer.Enabled() {
		fmt.Println("Warning: no appliance configured, the engine will stay idle.")
	}
	if cfg.SmartThings.ClientID == "" || cfg.SmartThings.ClientSecret == "" {
		fmt.Fprintf(os.Stderr, "configuration invalid: OAuth client credentials missing (client_id length %d, client_secret length %d)\n",
			len(cfg.SmartThings.ClientID), len(cfg.SmartThings.ClientSecret))
		return 1
	}

	fmt.Println("Configuration check completed successfully.")
	return 0
}

func describeAppliance(label string, app config.ApplianceConfig) {
	if !app.Enabled() {
		fmt.Printf("%s: disabled\n", label)
		return
	}
	fmt.Printf("%s: device %s\n", label, app.DeviceID)
}
