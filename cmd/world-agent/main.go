// world-agent is the process that speaks Substrate's Agent API. Started
// normally it serves the HTTP/JSON + WebSocket surface over whatever
// transport.FromEnv resolves (or a listener inherited via systemd socket
// activation). Re-exec'd with argv[1] == world.WorldInitArg it instead
// runs as the namespaced child a LinuxBackend session spawns (see
// internal/world.RunWorldInit).
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/substrate-dev/substrate/internal/agentapi"
	"github.com/substrate-dev/substrate/internal/broker"
	"github.com/substrate-dev/substrate/internal/config"
	"github.com/substrate-dev/substrate/internal/policy"
	"github.com/substrate-dev/substrate/internal/ratelimit"
	"github.com/substrate-dev/substrate/internal/sdnotify"
	"github.com/substrate-dev/substrate/internal/trace"
	"github.com/substrate-dev/substrate/internal/transport"
	"github.com/substrate-dev/substrate/internal/world"
)

var (
	flagAddr      = flag.String("addr", "", "fallback bind address when no transport/activation listener is available (e.g. 127.0.0.1:17788)")
	flagPolicy    = flag.String("policy", "", "path to policy.yaml; defaults are used when unset")
	flagTrace     = flag.String("trace", os.ExpandEnv("$HOME/.substrate/trace.jsonl"), "trace spine output path")
	flagConfig    = flag.String("config", os.ExpandEnv("$HOME/.substrate/config.toml"), "global config.toml path")
	flagWorkspace = flag.String("workspace-config", ".substrate/workspace.yaml", "workspace.yaml path")
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == world.WorldInitArg {
		if len(os.Args) < 3 {
			log.Fatal("[world-agent] __substrate_world_init requires a session id argument")
		}
		os.Exit(world.RunWorldInit(os.Args[2]))
	}

	flag.Parse()
	log.SetFlags(log.LstdFlags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[world-agent] shutdown signal: %v", sig)
		cancel()
	}()

	ln, err := resolveListener()
	if err != nil {
		log.Fatalf("[world-agent] resolving listener: %v", err)
	}

	pol := policy.Default()
	if *flagPolicy != "" {
		pol, err = policy.LoadFile(*flagPolicy)
		if err != nil {
			log.Fatalf("[world-agent] loading policy: %v", err)
		}
	}

	backend := world.NewBackend()
	b := broker.New(pol, broker.WithWorldReadiness(backend))

	if eff, err := effectiveConfig(); err != nil {
		log.Printf("[world-agent] config: %v", err)
	} else if err := b.SetObserveOnly(eff.PolicyMode == config.PolicyModeObserve); err != nil {
		log.Printf("[world-agent] applying policy_mode: %v", err)
	}

	tc, err := trace.Init(*flagTrace)
	if err != nil {
		log.Printf("[world-agent] trace spine disabled: %v", err)
		tc = nil
	} else {
		defer tc.Close()
	}

	reg := prometheus.NewRegistry()
	limiter := ratelimit.New(rateLimitConfigFromEnv(), reg)

	cfg := agentapi.DefaultConfig()
	cfg.RequestTimeout = requestTimeoutFromEnv()
	cfg.RateLimit = rateLimitConfigFromEnv()
	srv := agentapi.NewServer(cfg, b, backend, tc, limiter)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe("127.0.0.1:9477", metricsMux); err != nil && err != http.ErrServerClosed {
			log.Printf("[world-agent] metrics server: %v", err)
		}
	}()

	log.Printf("[world-agent] listening on %s", ln.Addr())
	if err := sdnotify.Ready(); err != nil {
		log.Printf("[world-agent] sd_notify READY=1: %v", err)
	}

	if err := srv.Serve(ctx, ln); err != nil {
		log.Fatalf("[world-agent] serve: %v", err)
	}
	_ = sdnotify.Stopping()
}

// resolveListener prefers a systemd-activated socket, then
// transport.FromEnv, then -addr, in that order.
func resolveListener() (net.Listener, error) {
	activated, err := transport.ListenersFromEnvironment()
	if err == nil && len(activated) > 0 {
		return activated[0].Listener, nil
	}

	if t, err := transport.FromEnv(); err == nil {
		return listenTransport(t)
	}

	addr := *flagAddr
	if addr == "" {
		addr = "127.0.0.1:17788"
	}
	return net.Listen("tcp", addr)
}

func listenTransport(t transport.Transport) (net.Listener, error) {
	switch t.Mode {
	case transport.ModeUnixSocket:
		_ = os.Remove(t.Path)
		return net.Listen("unix", t.Path)
	case transport.ModeTCP:
		return net.Listen("tcp", t.Endpoint())
	default:
		return net.Listen("tcp", "127.0.0.1:17788")
	}
}

func rateLimitConfigFromEnv() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrent = n
		}
	}
	return cfg
}

func effectiveConfig() (config.Effective, error) {
	global, err := config.LoadGlobalConfig(*flagConfig)
	if err != nil {
		return config.Effective{}, err
	}
	workspace, err := config.LoadWorkspaceConfig(*flagWorkspace)
	if err != nil {
		return config.Effective{}, err
	}
	return config.Resolve(global, config.OverrideLayerFromEnv(), workspace), nil
}

func requestTimeoutFromEnv() time.Duration {
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return agentapi.DefaultConfig().RequestTimeout
}
