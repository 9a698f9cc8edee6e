package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mm-engine/internal/alert"
	"mm-engine/internal/config"
	"mm-engine/internal/exchangeiface"
	"mm-engine/internal/logging"
	"mm-engine/internal/metrics"
	"mm-engine/internal/persistence"
	"mm-engine/internal/specs"
	"mm-engine/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	holder := config.NewHolder(cfg)

	zlog, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Close()

	watcher, err := config.NewWatcher(*cfgPath, holder, zlog)
	if err != nil {
		zlog.LogError(err, map[string]any{"component": "config_watcher"})
	} else {
		ctx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	reg := metrics.New("mm_engine")
	metrics.Serve(cfg.Metrics.Addr, reg)

	alertMgr := alert.NewManager([]alert.Channel{alert.NewLogChannel("log", zlog)}, 30*time.Second)

	var db *persistence.DB
	var persistWorker *persistence.Worker
	if dsn := cfg.Database.DSN(); dsn != "" && dsn != "postgres://:@:/" {
		db, err = persistence.Open(dsn, zlog)
		if err != nil {
			zlog.LogError(err, map[string]any{"component": "persistence_open"})
		} else {
			defer db.Close()
			persistWorker = persistence.NewWorker(db, zlog, cfg.Database.QueueSize)
		}
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if persistWorker != nil {
		persistWorker.Start(runCtx)
	}

	rawClient := exchangeiface.NewHTTPClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Passphrase, cfg.Exchange.Simulated)
	lister := exchangeiface.NewSymbolLister(rawClient, "")
	factory := exchangeiface.NewFactory(rawClient, "")

	var specStore specs.Store
	if db != nil {
		specStore = db
	}
	specCache := specs.New(specStore, lister, reg)

	mgr := strategy.NewManager(specCache, factory, persistWorker, reg, zlog, alertMgr)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no database"))
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		inst := mgr.ActiveInstance()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":    mgr.GetState(),
			"instance": inst,
		})
	})
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mgr.ListHistory(50))
	})
	mux.HandleFunc("/orphans", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(mgr.Orphans())
	})
	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.StopActive(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/emergency-stop", func(w http.ResponseWriter, r *http.Request) {
		if err := mgr.EmergencyStopActive(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.LogError(err, map[string]any{"component": "http_server"})
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	_ = mgr.StopActive(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
}
