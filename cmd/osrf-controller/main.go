// Command osrf-controller is the forking service supervisor of spec §4.5.
// Started once per service, it pre-forks a worker pool, registers the
// service with its router, and re-execs itself into a worker child
// (-worker-child) whenever the pool needs a new drone. Flag parsing and
// signal-driven graceful shutdown follow the teacher's cmd/server/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/config"
	"github.com/opensrf-project/opensrf-go/internal/controller"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/registry"
	"github.com/opensrf-project/opensrf-go/internal/session"
	"github.com/opensrf-project/opensrf-go/internal/worker"
	"github.com/opensrf-project/opensrf-go/internal/xmpptransport"
)

func main() {
	var (
		configFile  = flag.String("f", "", "bootstrap config file (required)")
		contextName = flag.String("c", "config.opensrf", "bootstrap config context")
		service     = flag.String("s", "", "service name this controller manages (required)")
		metricsAddr = flag.String("metrics", "", "address to serve /metrics on, e.g. :9199 (disabled if empty)")
		minChildren = flag.Int("min-children", 3, "unix_config.min_children")
		maxChildren = flag.Int("max-children", 15, "unix_config.max_children")
		maxRequests = flag.Int("max-requests", 1000, "unix_config.max_requests")
		keepalive   = flag.Int("keepalive", 5, "seconds a CONNECTED drone waits idle before timing out")
		workerChild = flag.Bool("worker-child", false, "internal: run as a re-exec'd worker, not the supervisor")
	)
	flag.Parse()

	if *configFile == "" || *service == "" {
		fmt.Fprintln(os.Stderr, "usage: osrf-controller -f <config> -s <service> [-c <context>] [-metrics <addr>]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: read config: %v\n", err)
		os.Exit(1)
	}
	root, err := config.ParseBootstrap(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: %v\n", err)
		os.Exit(1)
	}
	boot, err := config.ResolveBootstrap(root, *contextName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: %v\n", err)
		os.Exit(1)
	}
	if d := os.Getenv("OPENSRF_DOMAIN_OVERRIDE"); d != "" {
		boot.Domain = d
	}

	var outputs []string
	if boot.LogFile != "" {
		outputs = []string{boot.LogFile}
	} else {
		outputs = []string{"stdout"}
	}
	log, err := obslog.NewProcess(boot.LogLevel, outputs, "osrf-controller."+*service, os.Getpid())
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *workerChild {
		runWorkerChild(*service, *maxRequests, time.Duration(*keepalive)*time.Second, boot, log)
		return
	}
	poolSpec := controller.Spec{
		MinChildren: *minChildren,
		MaxChildren: *maxChildren,
		MaxRequests: *maxRequests,
		Keepalive:   time.Duration(*keepalive) * time.Second,
	}
	runSupervisor(*configFile, *contextName, *service, boot, *metricsAddr, poolSpec, log)
}

// runSupervisor is the controller's own role: dial the bus, pre-fork the
// pool, register with the router, and serve until a shutdown signal
// arrives (spec §4.5 startup/main-loop/shutdown sequence). Pool sizing
// normally comes from opensrf.settings.host_config's unix_config block;
// that round trip needs a reachable settings service and is left to the
// deployer here, surfaced instead as CLI flags with the spec's defaults.
func runSupervisor(configFile, contextName, service string, boot config.Bootstrap, metricsAddr string, poolSpec controller.Spec, log *obslog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	jid := fmt.Sprintf("%s@%s/%s_controller", boot.Username, boot.Domain, service)
	tr, err := xmpptransport.Dial(ctx, xmpptransport.Config{JID: jid, Password: boot.Password}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: dial transport: %v\n", err)
		os.Exit(1)
	}
	defer tr.Disconnect()

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: resolve own executable: %v\n", err)
		os.Exit(1)
	}

	routerJID := boot.RouterName + "@" + boot.Domain
	spec := poolSpec
	spec.Service = service
	spec.RouterJID = routerJID
	spec.WorkerBin = exe
	spec.WorkerArgs = []string{
		"-worker-child",
		"-f", configFile,
		"-c", contextName,
		"-s", service,
		"-max-requests", fmt.Sprint(poolSpec.MaxRequests),
		"-keepalive", fmt.Sprint(int(poolSpec.Keepalive.Seconds())),
	}

	ctl := controller.New(spec, tr, log)
	if err := ctl.PreFork(); err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: pre-fork pool: %v\n", err)
		os.Exit(1)
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Warnf("metrics server stopped: %v", err)
			}
		}()
	}

	log.Infof("controller for %q listening (min=%d max=%d)", service, spec.MinChildren, spec.MaxChildren)
	if err := ctl.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "osrf-controller: run: %v\n", err)
		os.Exit(1)
	}
}

// runWorkerChild adopts fd 3 (data) and fd 4 (status) handed down by the
// supervisor's ExtraFiles and runs the worker main loop until it retires
// (spec §4.6).
func runWorkerChild(service string, maxRequests int, keepalive time.Duration, boot config.Bootstrap, log *obslog.Logger) {
	dataFile := os.NewFile(3, "opensrf-data")
	statusFile := os.NewFile(4, "opensrf-status")
	if dataFile == nil || statusFile == nil {
		fmt.Fprintln(os.Stderr, "osrf-worker-child: missing inherited fd 3/4")
		os.Exit(1)
	}
	dataConn, err := net.FileConn(dataFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-worker-child: adopt data fd: %v\n", err)
		os.Exit(1)
	}
	_ = dataFile.Close() // FileConn dup'd the descriptor

	jid := fmt.Sprintf("%s@%s/%s_drone", boot.Username, boot.Domain, service)
	reg := codec.NewRegistry()
	codec.RegisterOsrfClasses(reg)

	tr, err := xmpptransport.Dial(context.Background(), xmpptransport.Config{JID: jid, Password: boot.Password}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-worker-child: dial transport: %v\n", err)
		os.Exit(1)
	}
	defer tr.Disconnect()

	rt := session.NewRuntime(tr, reg, boot.RouterName, boot.Domain, log)
	rt.Dispatcher = registry.New(service)
	rt.Hooks = session.Hooks{
		Disconnect: func(_ context.Context, s *session.Session) {
			log.Debugf("drone %d: disconnect hook for thread %s", os.Getpid(), s.Thread())
		},
	}

	w := worker.New(rt, worker.Config{
		Service:     service,
		MaxRequests: maxRequests,
		Keepalive:   keepalive,
		ChildExit: func() {
			log.Infof("drone %d: child_exit hook running before retirement", os.Getpid())
		},
	}, dataConn, statusFile, log)
	if err := w.Run(os.Getpid()); err != nil {
		fmt.Fprintf(os.Stderr, "osrf-worker-child: %v\n", err)
		os.Exit(1)
	}
}
