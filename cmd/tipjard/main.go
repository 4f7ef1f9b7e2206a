package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tipjar/config"
	"tipjar/core/events"
	"tipjar/core/state"
	"tipjar/core/types"
	"tipjar/native/tipjar"
	"tipjar/observability/logging"
	"tipjar/rpc"
	"tipjar/storage"
)

// slogEmitter forwards ledger notifications to the structured log so
// external watchers can tail them.
type slogEmitter struct {
	log *slog.Logger
}

func (s slogEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	s.log.Info("ledger event", attrs...)
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the tipjard config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logging.Setup("tipjard", cfg.ServiceEnv)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := state.NewStore(db)

	engine := tipjar.NewEngine()
	engine.SetState(store)
	engine.SetTransferer(store.Settlement())
	engine.SetEmitter(slogEmitter{log: log})

	server := rpc.NewServer(engine, cfg.RPCAuthToken)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("metrics listening", "address", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			log.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		log.Info("json-rpc listening", "address", cfg.RPCAddress)
		if err := http.ListenAndServe(cfg.RPCAddress, server); err != nil {
			log.Error("rpc server stopped", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")
}
