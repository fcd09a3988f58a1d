// relayx is a transaction relayer for EVM chains: it fronts the native
// gas cost of wallet-contract calls, tracks each request to its terminal
// state and rebroadcasts stalled transactions with escalated gas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/etherspot/relayx/api"
	"github.com/etherspot/relayx/chain"
	"github.com/etherspot/relayx/config"
	"github.com/etherspot/relayx/relayer"
	"github.com/etherspot/relayx/storage"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the JSON config file",
		EnvVars: []string{config.EnvConfig},
	}
	dbPathFlag = &cli.StringFlag{
		Name:  "db.path",
		Usage: "Directory for the embedded request store",
	}
	httpAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "HTTP-RPC server listening interface",
	}
	httpPortFlag = &cli.IntFlag{
		Name:  "http.port",
		Usage: "HTTP-RPC server listening port",
	}
	httpCorsFlag = &cli.StringFlag{
		Name:  "http.corsdomain",
		Usage: "Comma separated list of origins to accept cross origin requests from (* for all)",
	}
	privateKeyFlag = &cli.StringFlag{
		Name:  "private-key",
		Usage: "Relayer signing key as hex (prefer " + config.EnvPrivateKey + ")",
	}
	feeCollectorFlag = &cli.StringFlag{
		Name:  "fee-collector",
		Usage: "Address receiving token-denominated fees",
	}
	defaultTokenFlag = &cli.StringFlag{
		Name:  "default-token",
		Usage: "Default payment token for fee quotes",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level (trace, debug, info, warn, error)",
	}
	disableSimulationFlag = &cli.BoolFlag{
		Name:  "disable-simulation",
		Usage: "Skip intake simulation and use a fixed gas default (smoke tests only)",
	}
	stubFlag = &cli.BoolFlag{
		Name:  "stub",
		Usage: "Bypass chain calls and fabricate broadcast hashes (test affordance)",
	}
)

func main() {
	app := &cli.App{
		Name:  "relayx",
		Usage: "EVM transaction relayer with JSON-RPC endpoints",
		Flags: []cli.Flag{
			configFlag, dbPathFlag, httpAddrFlag, httpPortFlag, httpCorsFlag,
			privateKeyFlag, feeCollectorFlag, defaultTokenFlag, logLevelFlag,
			disableSimulationFlag, stubFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(config.Overrides{
		ConfigPath:        ctx.String(configFlag.Name),
		PrivateKey:        ctx.String(privateKeyFlag.Name),
		FeeCollector:      ctx.String(feeCollectorFlag.Name),
		DefaultToken:      ctx.String(defaultTokenFlag.Name),
		DBPath:            ctx.String(dbPathFlag.Name),
		HTTPAddress:       ctx.String(httpAddrFlag.Name),
		HTTPPort:          ctx.Int(httpPortFlag.Name),
		HTTPCors:          ctx.String(httpCorsFlag.Name),
		LogLevel:          ctx.String(logLevelFlag.Name),
		DisableSimulation: ctx.Bool(disableSimulationFlag.Name),
		StubMode:          ctx.Bool(stubFlag.Name),
	})
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel())
	logger := log.New("component", "relayx")

	if !cfg.HasSignerKey() && !cfg.StubMode() {
		return fmt.Errorf("no signer key configured: set %s", config.EnvPrivateKey)
	}
	signerKey, keyErr := cfg.SignerKey()
	if keyErr != nil && !cfg.StubMode() {
		return fmt.Errorf("parse signer key: %w", keyErr)
	}

	store, err := storage.New(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	pool := chain.NewPool(cfg)
	submitter := relayer.NewSubmitter(pool, signerKey, cfg.StubMode())
	simulator := relayer.NewSimulator(pool, cfg.DisableSimulation())
	pricer := relayer.NewPricer(pool, cfg)
	coordinator := relayer.NewCoordinator(cfg, pool, simulator, pricer, submitter, store)
	monitor := relayer.NewMonitor(store, pool, submitter)

	server, err := api.NewServer(cfg, coordinator, pricer, store, nil)
	if err != nil {
		return err
	}
	if err := server.Start(cfg.HTTPAddress(), cfg.HTTPPort()); err != nil {
		return err
	}
	logger.Info("relayer started",
		"chains", cfg.ChainIDs(), "relayer", submitter.From(),
		"db", cfg.DBPath(), "stub", cfg.StubMode())

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	go monitor.Run(monitorCtx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancelMonitor()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func setupLogger(level string) {
	lvl := log.LevelInfo
	switch level {
	case "trace":
		lvl = log.LevelTrace
	case "debug":
		lvl = log.LevelDebug
	case "warn":
		lvl = log.LevelWarn
	case "error":
		lvl = log.LevelError
	}
	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, useColor)))
}
