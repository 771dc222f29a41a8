// cmd/coordinatord is the main entrypoint for a single coordination-core
// node: it loads configuration, reconciles cluster invariants with a peer
// if one is visible, opens local storage, restores (or creates)
// membership state, and serves the client-facing and peer-facing HTTP API
// until signaled to shut down.
//
// Example, single node:
//
//	./coordinatord --id node1 --addr :8080 --config /etc/dynamokv/node1.json
//
// Example, 3-node cluster, each pointed at its peers:
//
//	./coordinatord --id a --addr :8080 --data-dir /tmp/a \
//	               --peers b=localhost:8081,c=localhost:8082
//	./coordinatord --id b --addr :8081 --data-dir /tmp/b \
//	               --peers a=localhost:8080,c=localhost:8082
//	./coordinatord --id c --addr :8082 --data-dir /tmp/c \
//	               --peers a=localhost:8080,b=localhost:8081
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dynamokv/internal/api"
	"dynamokv/internal/config"
	"dynamokv/internal/gossip"
	"dynamokv/internal/mediator"
	"dynamokv/internal/membership"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage/local"
	"dynamokv/internal/transport"
)

func main() {
	nodeID := flag.String("id", "node1", "unique node identifier")
	addr := flag.String("addr", ":8080", "listen address (host:port)")
	advertiseAddr := flag.String("advertise-addr", "", "address peers should use to reach this node; defaults to --addr")
	configPath := flag.String("config", "", "path to the JSON configuration file")
	dataDir := flag.String("data-dir", "", "override the configuration file's directory field")
	peersFlag := flag.String("peers", "", "comma-separated list of peer nodes: id=host:port")
	flag.Parse()

	log := logrus.New()
	nodeLog := log.WithFields(logrus.Fields{"node_id": *nodeID})

	peerAddrByNode, peerAddrs := parsePeers(*peersFlag)

	cfg, err := config.Load(*configPath)
	if err != nil {
		nodeLog.WithError(err).Fatal("failed to load configuration")
	}
	if *dataDir != "" {
		cfg.Directory = *dataDir
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg = config.NewBootstrapper().Reconcile(ctx, cfg, peerAddrs, nodeLog.WithField("component", "config"))
	if err := cfg.Validate(); err != nil {
		nodeLog.WithError(err).Fatal("invalid configuration")
	}

	nodeDir := fmt.Sprintf("%s/%s", cfg.Directory, *nodeID)
	engine, err := local.New(nodeDir)
	if err != nil {
		nodeLog.WithError(err).Fatal("failed to open local storage engine")
	}
	defer engine.Close()

	self := membership.NodeID(*nodeID)
	state, err := membership.Load(cfg.Directory, *nodeID, self)
	if err != nil {
		nodeLog.WithField("component", "membership").Info("no persisted membership state found, starting fresh")
		state = membership.New(self, cfg.Q)
		for peer := range peerAddrByNode {
			state = membership.Join(state, membership.NodeID(peer), self)
		}
	}

	notifier := func(oldMap, newMap *partition.Map) {
		nodeLog.WithFields(logrus.Fields{
			"component": "membership",
			"q":         newMap.Q(),
		}).Info("partition ownership changed, notifying storage layer")
	}

	actor := membership.NewActor(state, cfg.Directory, *nodeID, notifier, nodeLog.WithField("component", "membership"))
	go actor.Run(ctx)

	addrBook := transport.StaticAddrBook(peerAddrByNode)
	selfAddr := *advertiseAddr
	if selfAddr == "" {
		selfAddr = *addr
	}
	addrBook[*nodeID] = selfAddr

	remoteStorage := transport.NewRemoteEndpoint(*nodeID, engine, addrBook, 10*time.Second)
	med := mediator.New(actor, remoteStorage, partition.Murmur3Hasher{}, *nodeID,
		mediator.Quorum{N: cfg.N, R: cfg.R, W: cfg.W}, nodeLog.WithField("component", "mediator"))

	peerClient := gossip.NewPeerClient(5 * time.Second)
	gossiper := gossip.New(actor, peerClient, self, nodeLog.WithField("component", "gossip"))
	go gossiper.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	apiLog := nodeLog.WithField("component", "api")
	router.Use(api.Logger(apiLog), api.Recovery(apiLog))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := api.NewHandler(med, actor, gossiper, cfg, self, engine, apiLog)
	handler.Register(router)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		nodeLog.WithFields(logrus.Fields{
			"addr": *addr, "n": cfg.N, "r": cfg.R, "w": cfg.W, "q": cfg.Q,
		}).Info("coordinatord listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nodeLog.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	nodeLog.Info("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		nodeLog.WithError(err).Warn("server shutdown error")
	}
}

// parsePeers parses a --peers flag of the form "id=host:port,id2=host:port2"
// into both a node->address map (for the AddrBook and initial join set)
// and a flat address list (for configuration bootstrap, which only needs
// somewhere to dial, not the node identity behind it).
func parsePeers(flagVal string) (map[string]string, []string) {
	byNode := make(map[string]string)
	if flagVal == "" {
		return byNode, nil
	}

	addrs := make([]string, 0)
	for _, entry := range strings.Split(flagVal, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		byNode[parts[0]] = parts[1]
		addrs = append(addrs, parts[1])
	}
	return byNode, addrs
}
