package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	debugpkg "runtime/debug"
	"sync"
	"syscall"
	"time"
)

// buildTime can be overridden at build time with:
//
//	go build -ldflags="-X main.buildTime=2025-01-02T15:04:05Z"
var buildTime = "dev"

func main() {
	// Top-level panic handler: ensure any unexpected panic is captured to
	// panic.log with a stack trace so operators can inspect it.
	defer func() {
		if r := recover(); r != nil {
			if f, err := os.OpenFile("panic.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n", ts, r, buildTime, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	cfg, err := parseCommandLine(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\nusage: %s [flags] [%s]\n", poolSoftwareName, err, poolSoftwareName, positionalUsage)
		os.Exit(1)
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		fatal("log level", err)
	}
	setLogLevel(level)
	logDir, err := configureFileLogging(cfg.DataDir, cfg.LogStdout)
	if err != nil {
		fatal("log output", err)
	}
	ensureExampleConfig(cfg.DataDir)

	startTime := time.Now()
	logger.Info("starting "+poolSoftwareName, "build_time", buildTime, "log_dir", logDir, "sha256", activeSHA256.name)
	if eff, err := fastJSONMarshal(cfg.Effective()); err == nil {
		logger.Info("effective config", "config", string(eff))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := newProxyMetrics()
	if err != nil {
		fatal("metrics", err)
	}
	var metricsSrv *http.Server
	if cfg.MetricsListen != "" {
		metricsSrv = startMetricsServer(cfg.MetricsListen, metrics)
	}

	journal, err := openBlockJournal(blockJournalPath(cfg.DataDir))
	if err != nil {
		fatal("block journal", err)
	}

	notifier, err := newBlockNotifier(cfg)
	if err != nil {
		logger.Warn("discord notifier disabled", "error", err)
		notifier = nil
	}

	params := networkParams(cfg.Testnet)
	rpcClient := NewRPCClient(cfg, metrics)
	work := newWorkState(workStateOptions{
		RerollTicks:         cfg.RerollTicks,
		CoinbaseTag:         cfg.CoinbaseTag,
		TimestampHold:       cfg.TimestampHold,
		TimestampHoldMargin: cfg.TimestampHoldMargin,
		Params:              params,
	})
	hub := newSessionHub(metrics)
	syncer := newTemplateSynchronizer(rpcClient, work, hub, metrics, cfg.PollInterval)
	replayer := &pendingReplayer{
		journal:   journal,
		submitter: rpcClient,
		work:      work,
		height:    syncer.Height,
		notifier:  notifier,
		metrics:   metrics,
	}

	var bg sync.WaitGroup
	runBackground := func(fn func(context.Context)) {
		bg.Add(1)
		go func() {
			defer bg.Done()
			fn(ctx)
		}()
	}
	runBackground(syncer.run)
	runBackground(replayer.run)
	if notifier != nil {
		runBackground(notifier.run)
	}
	if cfg.ZMQHashBlockAddr != "" {
		addr := cfg.ZMQHashBlockAddr
		runBackground(func(ctx context.Context) { syncer.zmqHashBlockLoop(ctx, addr) })
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		fatal("listen", err, "addr", cfg.ListenAddr)
	}
	logger.Info("stratum listening", "addr", ln.Addr().String(), "network", cfg.NetworkName(), "rpc", rpcClient.endpointLabel())

	srv := newStratumServer(&stratumServices{
		work:      work,
		submitter: rpcClient,
		hub:       hub,
		journal:   journal,
		notifier:  notifier,
		metrics:   metrics,
		params:    params,
	}, cfg.MaxConns)
	if err := srv.serve(ctx, ln); err != nil {
		logger.Error("stratum server", "error", err)
	}

	logger.Info("shutdown requested; draining")
	srv.drain(shutdownDrainTimeout)
	stop()
	bg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	notifier.Close()
	if err := journal.Close(); err != nil {
		logger.Error("close block journal", "error", err)
	}
	logger.Info("shutdown complete", "uptime", formatDuration(time.Since(startTime)), "rpc_disconnects", rpcClient.Disconnects())
	logger.Stop()
}

func startMetricsServer(addr string, metrics *proxyMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	return srv
}
