package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"everstore"
	"everstore/internal/config"
	"everstore/internal/node"
	"everstore/internal/storage"
	"everstore/internal/telemetry"
)

const usage = `usage: everstore [-config path] [-verbose] <command> [args]

commands:
  set [-realtime] <key> <value>
                          write value into every active mechanism
  get [-realtime] <key>   read key and print the majority value
  mechanisms              list mechanisms and their state
  serve                   run a peer node (gRPC store + HTTP etag channel)
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("everstore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "everstore.toml", "path to TOML config file")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	enable := fs.String("enable", "", "comma-separated mechanisms or patterns to enable")
	disable := fs.String("disable", "", "comma-separated mechanisms or patterns to disable")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if *verbose {
		cfg.Logging.Verbose = true
	}
	cfg.Enable = append(cfg.Enable, config.ParseList(*enable)...)
	cfg.Disable = append(cfg.Disable, config.ParseList(*disable)...)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid configuration: %v\n", err)
		return 1
	}

	setupLogging(cfg, stderr)

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "set":
		return runSet(cfg, cmdArgs, stderr)
	case "get":
		return runGet(cfg, cmdArgs, stdout, stderr)
	case "mechanisms":
		return runMechanisms(cfg, stdout)
	case "serve":
		return runServe(cfg)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
}

func setupLogging(cfg config.Config, stderr io.Writer) {
	var writer io.Writer = zerolog.ConsoleWriter{Out: stderr}
	if cfg.Logging.Format == "json" {
		writer = stderr
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Logger()

	if cfg.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

func openStore(cfg config.Config) (*everstore.Store, error) {
	return everstore.New(cfg, everstore.WithLogger(log.Logger))
}

func runSet(cfg config.Config, args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(stderr)
	realtime := fs.Bool("realtime", false, "only write synchronous mechanisms")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		fmt.Fprint(stderr, "usage: everstore set [-realtime] <key> <value>\n")
		return 2
	}
	key, value := fs.Arg(0), fs.Arg(1)

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open store")
		return 1
	}
	defer s.Close()

	set := s.Set
	if *realtime {
		set = s.SetRealtime
	}

	if err := set(context.Background(), key, value); err != nil {
		log.Error().Err(err).Msg("Set failed")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DeferDelay+cfg.DeferredTimeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("Deferred writes did not finish")
	}
	return 0
}

func runGet(cfg config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(stderr)
	realtime := fs.Bool("realtime", false, "only consult synchronous mechanisms")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprint(stderr, "usage: everstore get [-realtime] <key>\n")
		return 2
	}
	key := fs.Arg(0)

	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open store")
		return 1
	}
	defer s.Close()

	ctx := context.Background()
	if *realtime {
		v, ok, err := s.GetRealtime(ctx, key)
		if err != nil {
			log.Error().Err(err).Msg("Get failed")
			return 1
		}
		if !ok {
			return 3
		}
		fmt.Fprintln(stdout, v)
		return 0
	}

	done := make(chan everstore.Result, 1)
	if err := s.Get(ctx, key, func(r everstore.Result) { done <- r }); err != nil {
		log.Error().Err(err).Msg("Get failed")
		return 1
	}

	select {
	case r := <-done:
		for _, c := range r.Candidates {
			log.Debug().Str("value", c.Value).Int("count", c.Count).Msg("Candidate")
		}
		if !r.Found {
			return 3
		}
		fmt.Fprintln(stdout, r.Value)
		return 0
	case <-time.After(cfg.WaitMax + cfg.DeferredTimeout):
		log.Error().Msg("Timed out waiting for mechanisms")
		return 1
	}
}

func runMechanisms(cfg config.Config, stdout io.Writer) int {
	s, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open store")
		return 1
	}
	defer s.Close()

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMODE\tACTIVE\tAVAILABLE")
	for _, m := range s.Describe() {
		mode := "deferred"
		if m.Synchronous {
			mode = "sync"
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\n", m.Name, mode, m.Active, m.Available)
	}
	_ = tw.Flush()
	return 0
}

func runServe(cfg config.Config) int {
	if cfg.Prometheus.Enabled {
		log.Debug().Msg("Initializing telemetry")
		telemetry.InitializeTelemetry()
	}

	store, err := storage.OpenLocalStore(filepath.Join(cfg.DataDir, "node"), nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open node store")
		return 1
	}
	defer store.Close()

	hostname, _ := os.Hostname()
	n := node.NewNode(hostname, cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, store, log.Logger)
	if err := n.Listen(); err != nil {
		log.Error().Err(err).Msg("Failed to listen")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("grpc", n.GRPCAddr()).
		Str("http", n.HTTPAddr()).
		Msg("everstore node running")

	if err := n.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("Node stopped with error")
		return 1
	}
	return 0
}
