// Command osrf-http-gateway serves the HTTP-to-bus translator of spec
// §4.7 behind an http.Server, following the teacher's cmd/server/main.go
// flag parsing and graceful-shutdown shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensrf-project/opensrf-go/internal/cache"
	"github.com/opensrf-project/opensrf-go/internal/codec"
	"github.com/opensrf-project/opensrf-go/internal/config"
	"github.com/opensrf-project/opensrf-go/internal/httpgateway"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/xmpptransport"
)

func main() {
	var (
		configFile    = flag.String("f", "", "bootstrap config file (required)")
		contextName   = flag.String("c", "config.opensrf", "bootstrap config context")
		listenAddr    = flag.String("http", ":7680", "address to serve the gateway on")
		cacheSize     = flag.Int("cache-size", 4096, "in-process affinity cache entries, used when -memcache-servers is empty")
		memcacheAddrs = flag.String("memcache-servers", "", "comma-separated host:port memcache servers for the shared affinity cache (cache.global.servers.server)")
	)
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "usage: osrf-http-gateway -f <config> [-c <context>] [-http <addr>]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: read config: %v\n", err)
		os.Exit(1)
	}
	root, err := config.ParseBootstrap(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: %v\n", err)
		os.Exit(1)
	}
	boot, err := config.ResolveBootstrap(root, *contextName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: %v\n", err)
		os.Exit(1)
	}

	var outputs []string
	if boot.LogFile != "" {
		outputs = []string{boot.LogFile}
	} else {
		outputs = []string{"stdout"}
	}
	log, err := obslog.NewProcess(boot.LogLevel, outputs, "osrf-http-gateway", os.Getpid())
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	jid := fmt.Sprintf("%s@%s/http_gateway", boot.Username, boot.Domain)
	tr, err := xmpptransport.Dial(ctx, xmpptransport.Config{JID: jid, Password: boot.Password}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: dial transport: %v\n", err)
		os.Exit(1)
	}
	defer tr.Disconnect()

	// cache.global.servers.server normally arrives via settings host
	// config post-connect (spec §6); -memcache-servers lets an operator
	// supply the same list directly when no settings service is reachable.
	var cacheStore cache.Cache
	if *memcacheAddrs != "" {
		cacheStore = cache.NewMemcache(strings.Split(*memcacheAddrs, ",")...)
	} else {
		inproc, err := cache.NewInProcess(*cacheSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "osrf-http-gateway: build cache: %v\n", err)
			os.Exit(1)
		}
		cacheStore = inproc
	}

	reg := codec.NewRegistry()
	codec.RegisterOsrfClasses(reg)

	gw := httpgateway.New(tr, reg, cacheStore, boot.RouterName, boot.Domain, log)

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: gw,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("http gateway listening on %s", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "osrf-http-gateway: serve: %v\n", err)
		os.Exit(1)
	}
}
