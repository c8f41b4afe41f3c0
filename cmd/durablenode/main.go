// Command durablenode runs a single durableflow cluster member: it opens
// a journal, starts the durable runtime, joins the gossip membership
// protocol, and serves workflow submissions over HTTP transport.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/durableflow/cluster"
	"github.com/dshills/durableflow/emit"
	"github.com/dshills/durableflow/runtime"
	"github.com/dshills/durableflow/transport"
)

func main() {
	var (
		nodeID      = flag.String("node-id", "", "stable identifier for this node (required)")
		bindAddr    = flag.String("bind", "127.0.0.1:7800", "address this node's RPC transport listens on")
		seeds       = flag.String("seeds", "", "comma-separated seed addresses to join on startup")
		metricsAddr = flag.String("metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
		journalPath = flag.String("journal-path", "", "path to a SQLite journal file; empty uses an in-memory journal")
		journalDSN  = flag.String("journal-mysql-dsn", "", "MySQL DSN for a journal shared across every node in the cluster; overrides -journal-path")
		verboseLog  = flag.Bool("verbose", false, "log every lifecycle event emitted by the runtime")
	)
	flag.Parse()

	if *nodeID == "" {
		log.Fatal("durablenode: -node-id is required")
	}

	registry := prometheus.NewRegistry()
	metrics := runtime.NewPrometheusMetrics(registry)

	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		log.Printf("metrics server listening on %s\n", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v\n", err)
		}
	}()

	t, err := transport.NewHTTPTransport(*bindAddr)
	if err != nil {
		log.Fatalf("durablenode: start transport: %v", err)
	}

	opts := []cluster.Option{
		cluster.WithNodeID(*nodeID),
		cluster.WithBindAddress(*bindAddr),
		cluster.WithMetrics(metrics),
		cluster.WithEmitter(emit.NewLogEmitter(os.Stdout, *verboseLog)),
	}
	if seedList := splitSeeds(*seeds); len(seedList) > 0 {
		opts = append(opts, cluster.WithSeeds(seedList...))
	}
	switch {
	case *journalDSN != "":
		opts = append(opts, cluster.WithMySQLJournal(*journalDSN))
	case *journalPath != "":
		opts = append(opts, cluster.WithPersistentJournal(*journalPath))
	default:
		opts = append(opts, cluster.WithMemoryJournal())
	}

	node, err := cluster.New(t, opts...)
	if err != nil {
		log.Fatalf("durablenode: construct node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := node.Start(ctx); err != nil {
		log.Fatalf("durablenode: start node: %v", err)
	}
	log.Printf("node %s listening on %s\n", node.NodeID(), *bindAddr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("durablenode: received shutdown signal, leaving cluster")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := node.Stop(stopCtx); err != nil {
		log.Printf("durablenode: stop node: %v\n", err)
	}
	if err := t.Close(); err != nil {
		log.Printf("durablenode: close transport: %v\n", err)
	}
}

func splitSeeds(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
