package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	// database/sql drivers selectable via the driver config field.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"pgbenchmark"
	"pgbenchmark/conn"
	"pgbenchmark/live"
	"pgbenchmark/types"
)

var (
	configFile  string
	sqlFlag     string
	runsFlag    int
	workersFlag int
	driverFlag  string
	dsnFlag     string
	liveFlag    bool
	listenFlag  string
	verbose     bool

	durationFlag int
	rampFlag     int
	qpsFlag      int
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "pgbenchmark",
	Short: "Benchmark a SQL statement against your database",
	Long: `pgbenchmark executes one SQL statement over and over, measures every
execution, and reports min/max/avg latency. With live mode enabled,
each measurement is also streamed to dashboard clients over WebSocket
while the benchmark runs.

pgbenchmark will always look for a pgbenchmark.json file in the
current working directory by default and use it. You can specify a
different file location using the --config/-c flag; files ending in
.yml or .yaml are parsed as YAML. Command line flags override the
config file.`,

	Run: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)

		cfg, err := pgbenchmark.LoadConfig(configFile)
		if err != nil && !(os.IsNotExist(err) && !cmd.Flags().Changed("config")) {
			zlog.Fatal().Err(err).Msg("loading config")
		}

		if sqlFlag != "" {
			cfg.SQL = sqlFlag
		}
		if cmd.Flags().Changed("runs") {
			cfg.Runs = runsFlag
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workersFlag
		}
		if driverFlag != "" {
			cfg.Database.Driver = driverFlag
		}
		if dsnFlag != "" {
			cfg.Database.DSN = dsnFlag
		}
		if cmd.Flags().Changed("duration") {
			cfg.Stress.DurationSeconds = durationFlag
		}
		if cmd.Flags().Changed("ramp") {
			cfg.Stress.RampSeconds = rampFlag
		}
		if cmd.Flags().Changed("target-qps") {
			cfg.Stress.TargetQPS = qpsFlag
		}
		if liveFlag {
			cfg.Live.Enabled = true
		}
		if listenFlag != "" {
			cfg.Live.Listen = listenFlag
		}
		if cfg.SQL == "" {
			zlog.Fatal().Msg("no sql configured; use --sql or the config file")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		driver, dsn, err := cfg.Database.DriverDSN()
		if err != nil {
			zlog.Fatal().Err(err).Msg("resolving database target")
		}

		// Live telemetry, if requested. The tracker behind /api/summary
		// is fed through the sink so it works for parallel runs too.
		var (
			sink    pgbenchmark.Sink
			tracker types.Tracker
			bridge  *live.Bridge
			srv     *live.Server
		)
		if cfg.Live.Enabled {
			bridge = live.NewBridge(cfg.Live.Buffer)
			srv = live.NewServer(cfg.Live.Listen, bridge, tracker.Summary, zlog.Logger)
			srv.SQL = cfg.SQL
			srv.Runs = cfg.Runs
			srv.RefreshMS = cfg.Live.RefreshMS
			if err := srv.Start(); err != nil {
				zlog.Fatal().Err(err).Msg("starting telemetry server")
			}
			fmt.Printf("[ http://%s ] Click to view live benchmark timeseries\n", srv.Addr())
			sink = teeSink{tracker: &tracker, next: bridge}
		}

		var stats types.Stats
		var runErr error

		switch {
		case cfg.Stress.DurationSeconds > 0:
			stats, runErr = runStress(ctx, cfg, driver, dsn, sink)
		case cfg.Workers > 1:
			stats, runErr = runParallel(ctx, cfg, driver, dsn, sink)
		default:
			stats, runErr = runSingle(ctx, cfg, driver, dsn, sink)
		}

		if bridge != nil {
			bridge.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			srv.Shutdown(shutdownCtx)
			cancel()
		}

		fmt.Print(stats)

		if runErr != nil {
			zlog.Fatal().Err(runErr).Msg("benchmark failed")
		}

		notifiers, err := cfg.BuildNotifiers()
		if err != nil {
			zlog.Fatal().Err(err).Msg("configuring notifiers")
		}
		for _, n := range notifiers {
			if err := n.Notify(stats); err != nil {
				zlog.Error().Err(err).Str("notifier", n.Type()).Msg("notification failed")
			}
		}
	},
}

func runSingle(ctx context.Context, cfg pgbenchmark.Config, driver, dsn string, sink pgbenchmark.Sink) (types.Stats, error) {
	ex, closer, err := conn.Open(ctx, driver, dsn)
	if err != nil {
		zlog.Fatal().Err(err).Msg("connecting to database")
	}
	defer closer()

	b := pgbenchmark.New(ex)
	if err := b.SetSQL(cfg.SQL); err != nil {
		zlog.Fatal().Err(err).Msg("configuring statement")
	}
	if err := b.SetRuns(cfg.Runs); err != nil {
		zlog.Fatal().Err(err).Msg("configuring run count")
	}
	if sink != nil {
		b.SetSink(sink)
	}

	for b.Next(ctx) {
		if verbose {
			fmt.Println(b.Result())
		}
	}
	return b.Summary(), b.Err()
}

func runParallel(ctx context.Context, cfg pgbenchmark.Config, driver, dsn string, sink pgbenchmark.Sink) (types.Stats, error) {
	factory, cleanup := executorFactory(driver, dsn)
	defer cleanup()

	p := pgbenchmark.ParallelBenchmark{
		NewExecutor: factory,
		SQL:         cfg.SQL,
		Runs:        cfg.Runs,
		Workers:     cfg.Workers,
		Sink:        sink,
	}
	return p.Run(ctx)
}

func runStress(ctx context.Context, cfg pgbenchmark.Config, driver, dsn string, sink pgbenchmark.Sink) (types.Stats, error) {
	factory, cleanup := executorFactory(driver, dsn)
	defer cleanup()

	s := pgbenchmark.StressBenchmark{
		NewExecutor: factory,
		SQL:         cfg.SQL,
		Duration:    time.Duration(cfg.Stress.DurationSeconds) * time.Second,
		Workers:     cfg.Workers,
		Ramp:        time.Duration(cfg.Stress.RampSeconds) * time.Second,
		TargetQPS:   cfg.Stress.TargetQPS,
		Sink:        sink,
	}
	return s.Run(ctx)
}

// executorFactory opens one connection per call and closes them all
// through the returned cleanup.
func executorFactory(driver, dsn string) (func(context.Context) (conn.Executor, error), func()) {
	var mu sync.Mutex
	var closers []func() error

	factory := func(ctx context.Context) (conn.Executor, error) {
		ex, closer, err := conn.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		closers = append(closers, closer)
		mu.Unlock()
		return ex, nil
	}
	cleanup := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range closers {
			c()
		}
	}
	return factory, cleanup
}

// teeSink feeds the live summary tracker before handing the result to
// the bridge.
type teeSink struct {
	tracker *types.Tracker
	next    pgbenchmark.Sink
}

func (s teeSink) Offer(r types.RunResult) {
	s.tracker.Observe(r)
	s.next.Offer(r)
}

// setupLogging prepares zerolog's global logger.
func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "pgbenchmark.json", "JSON or YAML config file")
	RootCmd.Flags().StringVar(&sqlFlag, "sql", "", "SQL statement or path to a .sql file")
	RootCmd.Flags().IntVarP(&runsFlag, "runs", "n", 100, "How many times to execute the statement")
	RootCmd.Flags().IntVar(&workersFlag, "workers", 1, "Concurrent workers, each with its own connection")
	RootCmd.Flags().StringVar(&driverFlag, "driver", "", "Database driver: pgx, postgres, mysql, sqlite3")
	RootCmd.Flags().StringVar(&dsnFlag, "dsn", "", "Connection string (overrides database config fields)")
	RootCmd.Flags().BoolVar(&liveFlag, "live", false, "Stream each run to the live dashboard")
	RootCmd.Flags().StringVar(&listenFlag, "listen", "", "Live dashboard listen address (default "+pgbenchmark.DefaultListenAddr+")")
	RootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every run as it completes")
	RootCmd.Flags().IntVar(&durationFlag, "duration", 0, "Stress mode: sustain load for this many seconds instead of a fixed run count")
	RootCmd.Flags().IntVar(&rampFlag, "ramp", 0, "Stress mode: stagger worker starts over this many seconds")
	RootCmd.Flags().IntVar(&qpsFlag, "target-qps", 0, "Stress mode: cap the combined query rate")
}
