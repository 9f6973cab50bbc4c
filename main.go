package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/abennett/destiny/pkg"
	"github.com/abennett/destiny/pkg/client"
	"github.com/abennett/destiny/pkg/server"
)

const envPrefix = "DESTINY"

var errNotationRequired = errors.New("a notation argument is required")

var rollCmd = func() *ffcli.Command {
	fs := flag.NewFlagSet("destiny roll", flag.ExitOnError)
	seed := fs.Int64("seed", 0, "seed for a reproducible roll, 0 rolls randomly")
	return &ffcli.Command{
		Name:       "roll",
		ShortUsage: "destiny roll [-seed N] <notation>",
		ShortHelp:  "roll a notation once",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec: func(_ context.Context, args []string) error {
			return runRoll(os.Stdout, *seed, args)
		},
	}
}()

func runRoll(w io.Writer, seed int64, args []string) error {
	if len(args) == 0 {
		return errNotationRequired
	}
	var opts []pkg.RollerOption
	if seed != 0 {
		opts = append(opts, pkg.WithSource(pkg.NewSource(seed)))
	}
	roll, err := pkg.NewRoller(opts...).Roll(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s => %s => %d\n", roll.Notation, roll.Expression, roll.Total)
	return err
}

type distOptions struct {
	workers       int
	maxComplexity int64
	skipFailures  bool
	remote        string
}

var distCmd = func() *ffcli.Command {
	fs := flag.NewFlagSet("destiny dist", flag.ExitOnError)
	var opts distOptions
	fs.IntVar(&opts.workers, "workers", 0, "evaluation workers, 0 uses every CPU")
	fs.Int64Var(&opts.maxComplexity, "max-complexity", 10_000_000, "refuse notations with more combinations, 0 disables")
	fs.BoolVar(&opts.skipFailures, "skip-failures", false, "drop combinations that fail to evaluate instead of aborting")
	fs.StringVar(&opts.remote, "remote", "", "ask a destiny server at this URL instead of computing locally")
	return &ffcli.Command{
		Name:       "dist",
		ShortUsage: "destiny dist [flags] <notation>",
		ShortHelp:  "print the exact outcome distribution of a notation",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec: func(ctx context.Context, args []string) error {
			return runDist(ctx, os.Stdout, opts, args)
		},
	}
}()

func runDist(ctx context.Context, w io.Writer, opts distOptions, args []string) error {
	if len(args) == 0 {
		return errNotationRequired
	}
	notation := args[0]

	if opts.remote != "" {
		resp, err := client.NewAPI(opts.remote).Distribution(ctx, notation)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, renderDistribution(resp))
		return err
	}

	c, err := pkg.Complexity(notation)
	if err != nil {
		return err
	}
	if opts.maxComplexity > 0 && c > opts.maxComplexity {
		return fmt.Errorf("%w: %d combinations, limit %d", server.ErrTooComplex, c, opts.maxComplexity)
	}
	slog.Debug("building distribution", "notation", notation, "combinations", c)

	policy := pkg.FailFast
	if opts.skipFailures {
		policy = pkg.SkipFailures
	}
	d, err := pkg.NewBuilder(
		pkg.WithWorkers(opts.workers),
		pkg.WithPolicy(policy),
		pkg.WithLogger(slog.Default()),
	).Build(ctx, notation)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, renderDistribution(server.DistributionResponse(d)))
	return err
}

var complexityCmd = &ffcli.Command{
	Name:       "complexity",
	ShortUsage: "destiny complexity <notation>",
	ShortHelp:  "print how many dice combinations a notation has",
	Exec: func(_ context.Context, args []string) error {
		return runComplexity(os.Stdout, args)
	},
}

func runComplexity(w io.Writer, args []string) error {
	if len(args) == 0 {
		return errNotationRequired
	}
	c, err := pkg.Complexity(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strconv.FormatInt(c, 10))
	return err
}

var serveCmd = func() *ffcli.Command {
	fs := flag.NewFlagSet("destiny serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address, overrides DESTINY_ADDR")
	return &ffcli.Command{
		Name:       "serve",
		ShortUsage: "destiny serve [-addr :8080]",
		ShortHelp:  "serve the HTTP API and websocket rooms",
		FlagSet:    fs,
		Exec: func(ctx context.Context, _ []string) error {
			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}
			if *addr != "" {
				cfg.Addr = *addr
			}
			return serve(ctx, cfg)
		},
	}
}()

func serve(ctx context.Context, cfg server.Config) error {
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewMux(server.NewServer(cfg)),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	slog.Info("serving", "addr", cfg.Addr, "max_complexity", cfg.MaxComplexity, "default_dice", cfg.DefaultDice)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

var rollRemoteCmd = &ffcli.Command{
	Name:       "roll_remote",
	ShortUsage: "destiny roll_remote <http://host:port> <room> <username> [notation]",
	ShortHelp:  "join a room and roll together",
	Exec:       rollRemote,
}

func setupLogger(debug bool) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
	slog.SetDefault(slog.New(logger))
}

func main() {
	fs := flag.NewFlagSet("destiny", flag.ExitOnError)
	debug := fs.Bool("debug", false, "log at debug level")

	root := &ffcli.Command{
		ShortUsage: "destiny [-debug] <subcommand>",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Subcommands: []*ffcli.Command{
			rollCmd,
			distCmd,
			complexityCmd,
			serveCmd,
			rollRemoteCmd,
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.Parse(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
	setupLogger(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := root.Run(ctx)
	if errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(os.Stderr, ffcli.DefaultUsageFunc(root))
		return
	}
	if err != nil {
		log.Fatal(err)
	}
}
