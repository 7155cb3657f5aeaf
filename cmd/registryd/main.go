// cmd/registryd is the main entrypoint for a registry node.
//
// Configuration is read from a JSON config file (overridable via
// REGISTRYD_-prefixed environment variables) so a single binary can serve
// any role in the cluster.
//
// Example — single node:
//
//	./registryd --config /etc/registryd/node1.json
//
// Example — 3-node cluster, config files differing only in self_address,
// hb_address, database, and bootstrap_primary:
//
//	./registryd --config /etc/registryd/node1.json
//	./registryd --config /etc/registryd/node2.json
//	./registryd --config /etc/registryd/node3.json
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kraklabs/registryd/internal/cluster"
	"github.com/kraklabs/registryd/internal/config"
	"github.com/kraklabs/registryd/internal/model"
	"github.com/kraklabs/registryd/internal/rpc"
	"github.com/kraklabs/registryd/internal/store"
)

// rpcTimeout bounds every outbound inter-node call (replication dispatch and
// election uptime probes).
const rpcTimeout = 2 * time.Second

// electInterval is how often the Elector re-ranks candidates.
const electInterval = 3 * time.Second

// snapshotInterval is how often SaveSnapshot runs as a belt-and-braces dump
// on top of the durable store's own write-through.
const snapshotInterval = 60 * time.Second

func main() {
	var configPath string
	var nodeID string

	root := &cobra.Command{
		Use:   "registryd",
		Short: "Distributed service registry node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, nodeID)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to node config file (required)")
	root.Flags().StringVar(&nodeID, "id", "", "node identifier (default: random uuid)")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, nodeID string) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	nodeCtx := model.NodeContext{NodeID: nodeID, StartTS: time.Now()}

	// ── Storage ────────────────────────────────────────────────────────────
	st, err := store.New(cfg.Database, nodeID, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// ── Cluster ────────────────────────────────────────────────────────────
	peers := cluster.NewPeers(cfg.Peers)
	replicator := cluster.NewReplicator(nodeID, peers, st, rpcTimeout, log)
	elector := cluster.NewElector(nodeCtx, peers, rpcTimeout, cfg.BootstrapPrimary, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go elector.Run(ctx, electInterval)
	go st.RunTTLSweeper(ctx, secondsToDuration(cfg.TTLSeconds), secondsToDuration(cfg.GCIntervalSecs))
	go runSnapshotLoop(ctx, st, log)

	// ── Business + admin plane ────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	bizRouter := gin.New()
	bizRouter.Use(rpc.Recovery(log), rpc.Logger(log), rpc.Bounded(10))

	rpc.NewBusinessHandler(st, replicator, elector, log).Register(bizRouter)
	rpc.NewAdminHandler(nodeCtx, elector, peers, replicator).Register(bizRouter)

	bizSrv := &http.Server{
		Addr:         cfg.SelfAddress,
		Handler:      bizRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Liveness plane ─────────────────────────────────────────────────────
	hbRouter := gin.New()
	hbRouter.Use(rpc.Recovery(log), rpc.Bounded(4))
	rpc.NewLivenessHandler(nodeCtx, elector).Register(hbRouter)

	hbSrv := &http.Server{
		Addr:         cfg.HBAddress,
		Handler:      hbRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.SelfAddress).Info("business plane listening")
		if err := bizSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("business plane server error")
		}
	}()
	go func() {
		log.WithField("addr", cfg.HBAddress).Info("liveness plane listening")
		if err := hbSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("liveness plane server error")
		}
	}()

	log.WithFields(logrus.Fields{
		"node_id":           nodeID,
		"bootstrap_primary": cfg.BootstrapPrimary,
		"peers":             len(cfg.Peers),
	}).Info("registryd started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel() // stop elector and ttl sweeper loops

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := st.SaveSnapshot(); err != nil {
		log.WithError(err).Warn("final snapshot failed")
	}
	if err := bizSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("business plane shutdown error")
	}
	if err := hbSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("liveness plane shutdown error")
	}
	return nil
}

func runSnapshotLoop(ctx context.Context, st *store.Store, log *logrus.Entry) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := st.SaveSnapshot(); err != nil {
				log.WithError(err).Warn("periodic snapshot failed")
			}
		}
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
