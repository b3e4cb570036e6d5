package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	clock "github.com/jonboulle/clockwork"
	bolt "go.etcd.io/bbolt"

	"github.com/fluxmarket/core/agreement"
	fluxlog "github.com/fluxmarket/core/common/log"
	"github.com/fluxmarket/core/facade"
	"github.com/fluxmarket/core/protocol"
	"github.com/fluxmarket/core/scheduler"
	"github.com/fluxmarket/core/store"
	"github.com/fluxmarket/core/telemetry"
)

var (
	configFlag = &cli.PathFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "path to the node's TOML configuration file",
		Required: true,
	}
	dataDirFlag = &cli.PathFlag{
		Name:  "data-dir",
		Usage: "overrides the config's DataDir",
	}
	grpcAddressFlag = &cli.StringFlag{
		Name:  "grpc-address",
		Usage: "overrides the config's GRPCAddress (host:port the market control surface listens on)",
	}
	metricsAddressFlag = &cli.StringFlag{
		Name:  "metrics-address",
		Usage: "overrides the config's MetricsAddress (host:port /metrics is served on)",
	}
	sweepIntervalFlag = &cli.DurationFlag{
		Name:  "sweep-interval",
		Usage: "how often to run the fallback expiration sweep alongside the scheduler",
		Value: time.Minute,
	}
	jsonLogsFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "emit logs as JSON instead of console-formatted",
	}
)

func main() {
	app := &cli.App{
		Name:  "fluxmarketd",
		Usage: "agreement negotiation node for the compute marketplace core",
		Commands: []*cli.Command{
			runCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("error: %+v\n", err)
		os.Exit(1)
	}
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "start the node and serve the market protocol until signalled to stop",
	Flags: []cli.Flag{
		configFlag,
		dataDirFlag,
		grpcAddressFlag,
		metricsAddressFlag,
		sweepIntervalFlag,
		jsonLogsFlag,
	},
	Action: runAction,
}

func runAction(c *cli.Context) error {
	cfg, err := LoadConfig(c.Path("config"))
	if err != nil {
		return err
	}
	if v := c.Path("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v := c.String("grpc-address"); v != "" {
		cfg.GRPCAddress = v
	}
	if v := c.String("metrics-address"); v != "" {
		cfg.MetricsAddress = v
	}

	log := fluxlog.New(nil, fluxlog.InfoLevel, c.Bool("json")).Named("fluxmarketd")

	db, err := store.Open(cfg.DataDir, log, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("opening store at %s: %w", cfg.DataDir, err)
	}
	defer db.Close()

	sched := scheduler.New(clock.NewRealClock())
	defer sched.Stop()

	adapter := protocol.NewAdapter(log.Named("adapter"), protocol.DefaultRetryPolicy(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	defer adapter.Close()

	resolver := NewAddressBookResolver(cfg.Peers)

	f := facade.New(db.Agreements, db.Proposals, sched, adapter, resolver, agreement.DefaultPolicy(), clock.NewRealClock(), log.Named("facade"))

	dispatcher, err := protocol.NewDedupDispatcher(f)
	if err != nil {
		return fmt.Errorf("building dedup dispatcher: %w", err)
	}

	srv := protocol.NewServer(dispatcher, log.Named("server"))
	grpcServer := protocol.NewGRPCServer(srv)
	lis, err := protocol.Listen(cfg.GRPCAddress, grpcServer)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.GRPCAddress, err)
	}
	log.Infow("serving market protocol", "address", lis.Addr().String())

	if cfg.MetricsAddress != "" {
		metricsLis, err := telemetry.Start(log.Named("telemetry"), cfg.MetricsAddress)
		if err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer metricsLis.Close()
		log.Infow("serving metrics", "address", metricsLis.Addr().String())
	}

	if err := f.ArmExpirations(time.Now().AddDate(100, 0, 0)); err != nil {
		return fmt.Errorf("arming expirations: %w", err)
	}

	stopSweep := make(chan struct{})
	go runSweepLoop(f, c.Duration("sweep-interval"), log.Named("sweep"), stopSweep)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	s := <-sigc
	log.Infow("received signal, shutting down", "signal", s.String())

	close(stopSweep)
	grpcServer.GracefulStop()
	return nil
}

func runSweepLoop(f *facade.Facade, interval time.Duration, log fluxlog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			n, err := f.Sweep(context.Background(), now)
			if err != nil {
				log.Errorw("sweep pass failed", "err", err)
				continue
			}
			if n > 0 {
				log.Infow("sweep expired stale agreements", "count", n)
			}
		}
	}
}
