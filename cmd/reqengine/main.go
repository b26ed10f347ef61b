// Command reqengine wires the request-engine components into a long-lived
// process: load config, build the Cache/Queue/InterceptorChain/Executor
// pipeline, serve Prometheus metrics, and reload the cache/network config
// on SIGHUP, matching the teacher's main.go (config-file flag, SIGHUP
// reload loop, promhttp-backed /metrics endpoint, signal-driven shutdown).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentsquare/reqengine/cache"
	"github.com/contentsquare/reqengine/config"
	"github.com/contentsquare/reqengine/executor"
	"github.com/contentsquare/reqengine/interceptor"
	"github.com/contentsquare/reqengine/log"
	"github.com/contentsquare/reqengine/metrics"
	"github.com/contentsquare/reqengine/queue"
	"github.com/contentsquare/reqengine/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configFile = flag.String("config", "reqengine.yml", "Engine configuration filename")
	listenAddr = flag.String("addr", ":8080", "Address to serve /metrics and /healthz on")
)

type engine struct {
	runtime *config.Runtime
	cache   *cache.Store
	queue   *queue.Queue
	chain   *interceptor.Chain
	exec    *executor.Executor
	agg     *metrics.Aggregator
}

func main() {
	flag.Parse()
	logger := log.NewStdLogger(os.Stderr, false)

	logger.Infof(context.Background(), "loading config: %s", *configFile)
	rt, res, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf(context.Background(), "cannot load config %q: %s", *configFile, err)
		os.Exit(1)
	}
	if res != nil && !res.IsValid {
		logger.Errorf(context.Background(), "invalid config %q: %v", *configFile, res.Errors)
		os.Exit(1)
	}

	eng, err := newEngine(rt, logger)
	if err != nil {
		logger.Errorf(context.Background(), "cannot build engine: %s", err)
		os.Exit(1)
	}
	eng.agg.Start()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			logger.Infof(context.Background(), "SIGHUP received, reloading config %s", *configFile)
			newRt, res, err := config.Load(*configFile)
			if err != nil {
				logger.Errorf(context.Background(), "cannot reload config: %s", err)
				continue
			}
			if res != nil && !res.IsValid {
				logger.Errorf(context.Background(), "reloaded config invalid, keeping previous: %v", res.Errors)
				continue
			}
			nc, cc := newRt.GetRuntime()
			eng.runtime.SetRuntime(nc, cc)
			logger.Infof(context.Background(), "config reloaded")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: *listenAddr, Handler: mux}

	if _, err := sdNotifyReady(); err != nil {
		logger.Warnf(context.Background(), "sd_notify failed: %s", err)
	}

	term := make(chan os.Signal, 1)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-term
		logger.Infof(context.Background(), "shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		eng.agg.Stop()
		eng.queue.Stop()
		_ = eng.cache.Dispose()
	}()

	logger.Infof(context.Background(), "serving metrics on %s", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf(context.Background(), "server error: %s", err)
		os.Exit(1)
	}
}

func newEngine(rt *config.Runtime, logger log.Logger) (*engine, error) {
	nc, cc := rt.GetRuntime()

	c, err := cache.NewStore(cc, logger)
	if err != nil {
		return nil, err
	}

	dedup := cache.NewInMemoryTransactionRegistry(nc.ReceiveTimeout.Value())
	q := queue.New(queue.Config{
		MaxConcurrent:      8,
		ProcessingInterval: 10 * time.Millisecond,
		RetryBaseDelay:     time.Duration(nc.RetryBaseDelayMs) * time.Millisecond,
		ExponentialBackoff: nc.EnableExponentialBackoff,
	}, dedup)

	chain := interceptor.NewChain()
	if nc.EnableLogging {
		_ = chain.Add(interceptor.NewLoggingInterceptor(0, logger))
	}

	adapter := transport.NewHTTPAdapter(100, 10)

	exec := executor.New(nc.BaseURL, http.Header{}, c, q, chain, adapter, logger)

	agg := metrics.New(q, c, chain, 10*time.Second)
	prometheus.MustRegister(agg.Collectors()...)

	return &engine{runtime: rt, cache: c, queue: q, chain: chain, exec: exec, agg: agg}, nil
}
