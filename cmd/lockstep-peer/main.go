// Command lockstep-peer runs one participant of a lockstep session to
// completion of the handshake plus a bounded number of ticks against a
// no-op CommandSink, for manual and integration testing of the wire
// protocol end to end without a real simulation attached.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/xiubinzheng/lockstep-core/internal/cmdlog"
	"github.com/xiubinzheng/lockstep-core/internal/metrics"
	"github.com/xiubinzheng/lockstep-core/pkg/config"
	"github.com/xiubinzheng/lockstep-core/pkg/handshake"
	"github.com/xiubinzheng/lockstep-core/pkg/lockstep"
	"github.com/xiubinzheng/lockstep-core/pkg/roster"
	"github.com/xiubinzheng/lockstep-core/pkg/transport"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "Path to a session config YAML file; defaults are used if omitted.",
	}
	serverFlag = cli.BoolFlag{
		Name:  "server, s",
		Usage: "Run as the handshake server, waiting for the rest of the roster to connect.",
	}
	connectFlag = cli.StringFlag{
		Name:  "connect",
		Usage: "Server address (\"host\" or \"host:port\") to join as a client.",
	}
	playersFlag = cli.IntFlag{
		Name:  "players, n",
		Usage: "Total participants in the session, overriding the config value if > 0.",
	}
	portFlag = cli.IntFlag{
		Name:  "port, p",
		Usage: "Local UDP port to bind, overriding the config value if > 0.",
	}
	ticksFlag = cli.IntFlag{
		Name:  "ticks",
		Value: 200,
		Usage: "Number of simulation ticks to run after the handshake completes.",
	}
	debugFlag = cli.BoolFlag{
		Name:  "debug",
		Usage: "Use development (console, debug-level) logging instead of production JSON.",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "lockstep-peer"
	app.Usage = "run one participant of a lockstep session against a no-op simulation"
	app.Flags = []cli.Flag{configFlag, serverFlag, connectFlag, playersFlag, portFlag, ticksFlag, debugFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	log, err := buildLogger(ctx.Bool("debug"))
	if err != nil {
		return fmt.Errorf("lockstep-peer: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log = log.With(zap.String("session", uuid.New().String()))
	log.Info("starting session", zap.Int("players", cfg.NetPlayers))

	trans, err := transport.NewUDPTransport(cfg.Port, log)
	if err != nil {
		return fmt.Errorf("lockstep-peer: %w", err)
	}
	defer trans.Close()

	params := handshake.Params{Lag: cfg.Quantized(), Updates: cfg.Updates}
	sealed, err := runHandshake(ctx, trans, log, cfg, params)
	if err != nil {
		return fmt.Errorf("lockstep-peer: handshake: %w", err)
	}

	registry := prometheus.NewRegistry()
	rec := metrics.New(registry)
	jlog := cmdlog.New(log)
	sim := newDemoSink(log, sealed.NumPlayers(), sealed.ThisPlayer())

	engine, err := lockstep.NewEngine(lockstep.Config{
		Roster:          sealed,
		Sink:            sim,
		Transport:       trans,
		Log:             log,
		CommandLog:      jlog,
		Metrics:         rec,
		Lag:             uint32(params.Lag),
		Updates:         uint32(params.Updates),
		InboxWindow:     cfg.InboxWindow,
		Networked:       true,
		QuitRetransmits: cfg.QuitRetransmits,
	})
	if err != nil {
		return fmt.Errorf("lockstep-peer: %w", err)
	}

	runTicks(engine, sim, ctx.Int("ticks"))
	log.Info("session complete", zap.Stringer("state", engine.State()))
	return nil
}

func loadConfig(ctx *cli.Context) (config.NetworkConfig, error) {
	cfg := config.Default()
	var err error
	if path := ctx.String("config"); path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return config.NetworkConfig{}, fmt.Errorf("lockstep-peer: %w", err)
		}
	}
	if n := ctx.Int("players"); n > 0 {
		cfg.NetPlayers = n
	}
	if p := ctx.Int("port"); p > 0 {
		cfg.Port = uint16(p)
	}
	return cfg, nil
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runHandshake(ctx *cli.Context, trans *transport.UDPTransport, log *zap.Logger, cfg config.NetworkConfig, params handshake.Params) (roster.Roster, error) {
	connect := ctx.String("connect")
	switch {
	case ctx.Bool("server"):
		srv, err := handshake.NewServer(trans, log, params, cfg.NetPlayers)
		if err != nil {
			return roster.Roster{}, err
		}
		humanSlots := make([]bool, cfg.NetPlayers)
		for i := range humanSlots {
			humanSlots[i] = true
		}
		return srv.Run(humanSlots)
	case connect != "":
		cl, err := handshake.NewClient(trans, log, params)
		if err != nil {
			return roster.Roster{}, err
		}
		return cl.Run(connect)
	default:
		return roster.Roster{}, fmt.Errorf("one of --server or --connect is required")
	}
}

// runTicks drives the per-tick sequence at a fixed cadence until ticks
// simulation frames have elapsed or the engine terminates (a local or
// remote Quit).
func runTicks(engine *lockstep.Engine, sim *demoSink, ticks int) {
	const frameInterval = 16 * time.Millisecond
	for i := 0; i < ticks; i++ {
		engine.DrainNetwork()
		sim.advance()
		engine.OnTick()
		engine.SyncCheck()
		if !engine.InSync() {
			engine.Recover()
		}
		if engine.State() == lockstep.StateTerminated {
			return
		}
		time.Sleep(frameInterval)
	}
}
