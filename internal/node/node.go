// Package node wires lashd's services together: store, Electrum client,
// rate gate, payment service, relay publisher, pending event queue and the
// RPC server. It can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/lashd/config"
	"github.com/Klingon-tech/lashd/internal/directory"
	"github.com/Klingon-tech/lashd/internal/electrum"
	"github.com/Klingon-tech/lashd/internal/gate"
	klog "github.com/Klingon-tech/lashd/internal/log"
	"github.com/Klingon-tech/lashd/internal/payment"
	"github.com/Klingon-tech/lashd/internal/queue"
	"github.com/Klingon-tech/lashd/internal/relay"
	"github.com/Klingon-tech/lashd/internal/rpc"
	"github.com/Klingon-tech/lashd/internal/storage"
	"github.com/Klingon-tech/lashd/internal/store"
	"github.com/Klingon-tech/lashd/internal/store/kvstore"
	"github.com/Klingon-tech/lashd/internal/store/pgstore"
)

// Node is a fully-initialized lashd instance.
type Node struct {
	cfg    *config.Config
	params *config.NetworkParams
	logger zerolog.Logger

	// Persistence
	store store.Store

	// Chain backend and relays
	dir       *directory.Directory
	electrum  *electrum.Client
	publisher *relay.Publisher

	// Services
	gate     *gate.Gate
	payments *payment.Service
	queue    *queue.Queue
	sweeper  *queue.Sweeper

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped sync.Once
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, storage, chain backend, services, RPC) but does NOT start
// listeners or background jobs. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "lashd.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	params := cfg.Params()
	logger.Info().
		Str("network", string(cfg.Network)).
		Str("store", string(cfg.Store.Driver)).
		Bool("gate", cfg.Payments.GateEnabled).
		Msg("Starting lashd")

	// ── 2. Open storage ─────────────────────────────────────────────
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// ── 3. Server and relay directory ───────────────────────────────
	var src directory.Source = directory.Static{
		Relays:  cfg.RelayURLs(),
		Servers: cfg.ElectrumServers(),
	}
	if f := expandHome(cfg.Relays.DirectoryFile); f != "" {
		src = directory.File{Path: f}
		logger.Info().Str("file", f).Msg("Using directory file")
	}
	dir := directory.New(src, cfg.Relays.RefreshInterval, directory.Lists{
		Relays:  cfg.RelayURLs(),
		Servers: cfg.ElectrumServers(),
	})

	// ── 4. Electrum client ──────────────────────────────────────────
	client := electrum.New(&electrum.NetDialer{
		Timeout:     cfg.Electrum.DialTimeout,
		InsecureTLS: cfg.Electrum.InsecureTLS,
	}, electrum.Options{
		CallTimeout: cfg.Electrum.CallTimeout,
		Servers:     dir.Servers,
	})

	// ── 5. Rate gate and payments ───────────────────────────────────
	g := gate.New(client, st, gate.Options{
		HeightTimeout: cfg.Electrum.CallTimeout,
		Disabled:      !cfg.Payments.GateEnabled,
	})
	dust := cfg.Payments.DustLimit
	if dust < params.DustLimit {
		dust = params.DustLimit
	}
	sender := payment.NewSender(client, payment.SenderOptions{
		FeeRate:     cfg.Payments.FeeRate,
		EstimateFee: cfg.Payments.EstimateFee,
		MinFeeRate:  params.MinFeeRate,
		DustLimit:   dust,
		CoinType:    params.CoinType,
		Mainnet:     params.Mainnet,

		BroadcastTimeout: cfg.Electrum.CallTimeout,
	})
	payments := payment.NewService(sender, g, st)

	// ── 6. Relay publisher and pending event queue ──────────────────
	publisher := relay.NewPublisher(relay.NewWSTransport())
	q := queue.New(st, publisher, queue.Options{
		BatchSize:      cfg.Queue.BatchSize,
		MaxRetries:     cfg.Queue.MaxRetries,
		Concurrency:    cfg.Queue.Concurrency,
		Rate:           cfg.Queue.PublishRate,
		PublishTimeout: cfg.Relays.PublishTimeout,
		Relays:         dir.Relays,
	})
	sweeper, err := queue.NewSweeper(q, cfg.Queue.Schedule)
	if err != nil {
		st.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:       cfg,
		params:    params,
		logger:    logger,
		store:     st,
		dir:       dir,
		electrum:  client,
		publisher: publisher,
		gate:      g,
		payments:  payments,
		queue:     q,
		sweeper:   sweeper,
		ctx:       ctx,
		cancel:    cancel,
	}

	// ── 7. RPC server ───────────────────────────────────────────────
	if cfg.RPC.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		n.rpcServer = rpc.New(addr, rpc.Backend{
			Payments:    payments,
			Eligibility: g,
			Chain:       client,
			Events:      q,
		}, cfg.RPC, cfg.Metrics.Enabled)
	}

	return n, nil
}

// openStore opens the configured persistence backend.
func openStore(cfg *config.Config) (store.Store, error) {
	logger := klog.WithComponent("storage")
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn().Msg("Using in-memory store, state is lost on exit")
		return kvstore.New(storage.NewMemory()), nil
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pg, err := pgstore.Open(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info().Msg("PostgreSQL store opened")
		return pg, nil
	case config.StoreBadger, "":
		db, err := storage.NewBadger(cfg.StoreDir())
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", cfg.StoreDir(), err)
		}
		logger.Info().Str("path", cfg.StoreDir()).Msg("Database opened")
		return kvstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Start binds the RPC listener and starts the queue sweeper.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return err
		}
	}
	n.sweeper.Start()

	// First sweep right away so events left from a previous run go out
	// without waiting for the schedule.
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		report, err := n.queue.Sweep(n.ctx)
		if err != nil {
			n.logger.Warn().Err(err).Msg("Startup sweep failed")
			return
		}
		n.logger.Info().Int("attempted", report.Attempted).Int("published", report.Published).
			Int("pending", report.Pending).Msg("Startup sweep done")
	}()

	n.logger.Info().
		Str("rpc", n.RPCAddr()).
		Int("relays", len(n.dir.Relays())).
		Int("servers", len(n.dir.ServerList())).
		Str("schedule", n.cfg.Queue.Schedule).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.stopped.Do(func() {
		n.cancel()
		n.wg.Wait()

		if n.rpcServer != nil {
			n.rpcServer.Stop()
		}
		n.sweeper.Stop()
		if n.store != nil {
			n.store.Close()
		}

		n.logger.Info().Msg("Goodbye!")
	})
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Payments returns the payment service.
func (n *Node) Payments() *payment.Service { return n.payments }

// Queue returns the pending event queue.
func (n *Node) Queue() *queue.Queue { return n.queue }

// Params returns the network parameters.
func (n *Node) Params() *config.NetworkParams { return n.params }
