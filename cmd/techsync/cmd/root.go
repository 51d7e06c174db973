package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/jmcleod/techsync/internal/config"
	"github.com/jmcleod/techsync/internal/logging"
)

// options holds the persistent flags and what they resolve to.
type options struct {
	envFile   string
	target    string
	apiURL    string
	timeout   time.Duration
	dataDir   string
	logLevel  string
	logFormat string

	cfg   *config.Config
	clock clockwork.Clock
}

func newRootCmd(clock clockwork.Clock) *cobra.Command {
	o := &options{clock: clock}

	root := &cobra.Command{
		Use:   "techsync",
		Short: "TechSync field technician client",
		Long: `Sign in to TechSync and manage your work orders from the terminal.
The session is kept between runs in the data directory.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.load(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			printBanner(cmd.OutOrStdout())
			cmd.Help()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.envFile, "env-file", "", "Dotenv file to load (default .env)")
	f.StringVar(&o.target, "target", "", "Deployment target: ios-simulator, android-emulator or production")
	f.StringVar(&o.apiURL, "api-url", "", "API base URL, overrides --target")
	f.DurationVar(&o.timeout, "timeout", config.DefaultTimeout, "Per-request timeout")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory for the persisted session")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&o.logFormat, "log-format", "", "Log format: text or json")

	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(o),
		newRegisterCmd(o),
		newLogoutCmd(o),
		newWhoamiCmd(o),
		newOrdersCmd(o),
	)
	return root
}

// load resolves configuration with flags taking priority over the
// environment and installs the logger.
func (o *options) load(cmd *cobra.Command) error {
	var files []string
	if o.envFile != "" {
		files = append(files, o.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.Target = o.target
	}
	if flags.Changed("api-url") {
		cfg.APIURL = o.apiURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = o.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Init(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	o.cfg = cfg
	return nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := newRootCmd(clockwork.NewRealClock()).Execute(); err != nil {
		memguard.Purge()
		os.Exit(1)
	}
}
