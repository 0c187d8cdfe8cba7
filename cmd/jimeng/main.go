package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"visualgen/internal/infra"
)

// globalOptions are the persistent flags; set ones override the environment.
type globalOptions struct {
	transport string
	proxyURL  string
	locale    string
	interval  time.Duration
	maxPolls  int
	jsonOut   bool
	verbose   bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:          "jimeng",
		Short:        "Generate images and videos with the Volcengine Jimeng visual API",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.transport, "transport", "", "transport strategy: direct or proxy (default from TRANSPORT)")
	pf.StringVar(&opts.proxyURL, "proxy-url", "", "signing proxy base URL (default from PROXY_BASE_URL)")
	pf.StringVar(&opts.locale, "locale", "", "status message locale: en or zh (default from LOCALE)")
	pf.DurationVar(&opts.interval, "interval", 0, "delay between status queries (default from POLL_INTERVAL)")
	pf.IntVar(&opts.maxPolls, "max-polls", 0, "give up after this many status queries, 0 for no limit")
	pf.BoolVar(&opts.jsonOut, "json", false, "print the outcome as JSON")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(generateCommands(opts)...)
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newCredentialsCmd(opts))
	return root
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*infra.Config, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		switch opts.transport {
		case "direct", "proxy":
			cfg.Transport = opts.transport
		default:
			return nil, fmt.Errorf("unknown transport %q", opts.transport)
		}
	}
	if flags.Changed("proxy-url") {
		cfg.ProxyBaseURL = opts.proxyURL
	}
	if flags.Changed("locale") {
		cfg.Locale = opts.locale
	}
	if flags.Changed("interval") {
		if opts.interval <= 0 {
			return nil, fmt.Errorf("--interval must be positive")
		}
		cfg.PollInterval = opts.interval
	}
	if flags.Changed("max-polls") {
		if opts.maxPolls < 0 {
			return nil, fmt.Errorf("--max-polls must not be negative")
		}
		cfg.MaxPolls = opts.maxPolls
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *infra.Config, opts *globalOptions) infra.Logger {
	logger := infra.NewLoggerTo(cmd.ErrOrStderr(), cfg.AppEnv)
	if !opts.verbose {
		logger = logger.Level(zerolog.WarnLevel)
	}
	return logger
}
