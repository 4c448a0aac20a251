package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/harpi/internal/config"
	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/engine"
	"github.com/roach88/harpi/internal/gateway"
	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/journal"
	"github.com/roach88/harpi/internal/metrics"
	"github.com/roach88/harpi/internal/rules"
	"github.com/roach88/harpi/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Input       string // "-" for stdin
	Output      string // "-" for stdout
	Journal     string
	MetricsAddr string

	// IDs overrides the generation ID generator (for testing).
	IDs rules.IDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [config-dir]",
		Short: "Run the rule engine against a frame stream",
		Long: `Load the configuration directory and run the rule engine.

Frames are read as 24 hex digits per line from --input and frames the
engine sends are written the same way to --output. The directory is
polled for changes and reloaded; a configuration that fails to load
leaves the previous one running.

The directory argument overrides config_dir from --config.

Example:
  harpi run /etc/harpi < /dev/ttyUSB0 > /dev/ttyUSB0
  harpi run --config harpi.yaml --journal ./journal.db --metrics-addr :9464`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "frame input file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "-", "frame output file (- for stdout)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "journal database path (overrides config)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides config)")

	return cmd
}

func runGateway(opts *RunOptions, args []string, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if len(args) == 1 {
		cfg.ConfigDir = args[0]
	}
	if cmd.Flags().Changed("journal") {
		cfg.Journal = opts.Journal
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	in, closeIn, err := openInput(opts.Input, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input", err)
	}
	defer closeIn()
	out, closeOut, err := openOutput(opts.Output, cmd.OutOrStdout())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open output", err)
	}
	defer closeOut()

	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return WrapExitError(ExitFailure, "failed to register metrics", err)
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gwOpts := gateway.Options{
		Sender:        cfg.Gateway.HAPCAN(),
		QueueCapacity: cfg.QueueCapacity,
		StatusRate:    rate.Limit(cfg.StatusRequestRate),
		StatusBurst:   cfg.StatusRequestBurst,
		IDs:           opts.IDs,
		Metrics:       m,
	}
	if cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		gwOpts.Journal = j
	}

	gw := gateway.New(transport.NewWriter(out), gwOpts)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := csvconfig.NewWatcher(cfg.ConfigDir)
	if _, err := watcher.Changed(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read config dir", err)
	}
	if _, err := gw.ReloadDir(ctx, cfg.ConfigDir); err != nil {
		return WrapExitError(ExitFailure, "initial configuration rejected", err)
	}

	slog.Info("gateway starting",
		"config_dir", cfg.ConfigDir,
		"queue_capacity", cfg.QueueCapacity,
		"journal", cfg.Journal,
		"metrics_addr", cfg.MetricsAddr,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The reader is not part of the group: a read blocked on a terminal
	// or pipe cannot be interrupted, and the process exits around it.
	go func() {
		err := transport.NewReader(in).Run(ctx, func(f hapcan.Frame, ts time.Time) { gw.OnFrame(f, ts) })
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("frame input failed", "error", err)
		} else {
			slog.Info("frame input closed")
		}
		gw.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := gw.Run(gctx)
		if errors.Is(err, engine.ErrStopped) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return every(gctx, cfg.TickInterval, func() { gw.Periodic() })
	})

	g.Go(func() error {
		gw.PollStatus()
		return every(gctx, cfg.StatusPollInterval, func() { gw.PollStatus() })
	})

	g.Go(func() error {
		return every(gctx, cfg.ConfigPollInterval, func() {
			changed, err := watcher.Changed()
			if err != nil {
				slog.Warn("config dir poll failed", "dir", cfg.ConfigDir, "error", err)
				return
			}
			if !changed {
				return
			}
			// A rejected reload keeps the previous generation; the
			// gateway has logged and counted it.
			_, _ = gw.ReloadDir(gctx, cfg.ConfigDir)
		})
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "gateway error", err)
	}

	slog.Info("gateway stopped gracefully")
	return nil
}

// every calls fn once per interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "-" || path == "" {
		return stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
