package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/llxisdsh/parlab/demo"
	"github.com/llxisdsh/parlab/diag"
)

type options struct {
	configPath      string
	threads         int
	iterations      int
	threadLimit     int
	maxActiveLevels int
	procBind        string
	logLevel        string
	metrics         bool
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.IntVarP(&o.threads, "threads", "t", 0, "team size (0 means GOMAXPROCS)")
	fs.IntVarP(&o.iterations, "iterations", "n", 0, "problem size of every demo")
	fs.IntVar(&o.threadLimit, "thread-limit", 0, "cap on live workers across nested teams")
	fs.IntVar(&o.maxActiveLevels, "max-active-levels", 1, "nested teams allowed more than one worker")
	fs.StringVar(&o.procBind, "proc-bind", "none", "worker placement: none, close or spread")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
}

// config loads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func (o *options) config(fs *pflag.FlagSet) (demo.Config, error) {
	cfg := demo.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = demo.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "threads":
			cfg.Threads = o.threads
		case "iterations":
			cfg.Iterations = o.iterations
		case "thread-limit":
			cfg.ThreadLimit = o.threadLimit
		case "max-active-levels":
			cfg.MaxActiveLevels = o.maxActiveLevels
		case "proc-bind":
			cfg.ProcBind = o.procBind
		case "log-level":
			cfg.LogLevel = o.logLevel
		}
	})
	return cfg, cfg.Validate()
}

func newLogger(cfg demo.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	zc.DisableStacktrace = true
	return zc.Build()
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "parlab",
		Short:         "Run parallel-programming demos on teams of workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.register(root.PersistentFlags())
	root.AddCommand(newListCmd(), newRunCmd(opts))
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the demos by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printCatalogue(cmd.OutOrStdout())
		},
	}
}

func printCatalogue(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range demo.Categories() {
		fmt.Fprintf(tw, "%s\n", c)
		for _, d := range demo.ByCategory(c) {
			fmt.Fprintf(tw, "  %s\t%s\n", d.Name, d.Summary)
		}
	}
	return tw.Flush()
}

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [demo...]",
		Short: "Run demos, all of them when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Demos = args
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg := prometheus.NewRegistry()
			env := cfg.Env(logger)
			env.Metrics = diag.NewMetrics(reg)

			results, err := demo.Run(cmd.Context(), env, cfg.Demos...)
			printResults(cmd.OutOrStdout(), results)
			if err != nil {
				return err
			}
			if opts.metrics {
				return writeMetrics(cmd.OutOrStdout(), reg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "print collected metrics in Prometheus text format")
	return cmd
}

func printResults(out io.Writer, results []demo.Result) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%v\n", r.Demo, r.Elapsed)
		for _, m := range r.Metrics {
			fmt.Fprintf(tw, "  %s\t%s\n", m.Name, strings.TrimSpace(fmt.Sprintf("%.6g %s", m.Value, m.Unit)))
		}
	}
	_ = tw.Flush()
}

func writeMetrics(out io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(out, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
