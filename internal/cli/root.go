package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"budgetwise/internal/config"
	applog "budgetwise/internal/log"
)

var (
	// Version will be set via ldflags during build.
	Version = "dev"
	// Commit will be set via ldflags during build.
	Commit = "none"
)

// Options wires the command tree to its environment.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// LoadConfig defaults to LoadAndValidateConfig.
	LoadConfig func() (*config.Config, error)
	Bootstrap  BootstrapOptions
	Now        func() time.Time
}

type runner struct {
	opts   Options
	app    *App
	logger *applog.Logger
	lines  *bufio.Reader
}

// Run executes the budgetwise command line with args and releases the App
// afterwards, whether or not the command succeeded.
func Run(ctx context.Context, opts Options, args []string) error {
	r := newRunner(opts)
	root := r.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := r.close(); err == nil {
		err = cerr
	}
	return err
}

func newRunner(opts Options) *runner {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = LoadAndValidateConfig
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &runner{opts: opts}
}

// rootCommand builds the command tree. Subcommands that need the session
// open the App in PersistentPreRunE.
func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "budgetwise",
		Short:   "Categorize expenses and track a 50/30/20 budget",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:      true,
		PersistentPreRunE: r.open,
	}
	root.SetIn(r.opts.Stdin)
	root.SetOut(r.opts.Stdout)
	root.SetErr(r.opts.Stderr)

	root.AddCommand(
		r.signupCommand(),
		r.loginCommand(),
		r.logoutCommand(),
		r.whoamiCommand(),
		r.profileCommand(),
		r.expenseCommand(),
		r.analyticsCommand(),
		r.exportCommand(),
		r.eventsCommand(),
	)
	return root
}

func (r *runner) open(cmd *cobra.Command, _ []string) error {
	if r.app != nil || cmd.Annotations[annotationNoApp] == "true" {
		return nil
	}
	cfg, err := r.opts.LoadConfig()
	if err != nil {
		return err
	}
	r.logger = SetupLogger(cfg.LogLevel, r.opts.Stderr)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout*2)
	defer cancel()
	app, err := Bootstrap(ctx, cfg, r.logger, r.opts.Bootstrap)
	if err != nil {
		return err
	}
	r.app = app
	return nil
}

func (r *runner) close() error {
	if r.app == nil {
		return nil
	}
	err := r.app.Close()
	r.app = nil
	return err
}

// Commands carrying this annotation manage their own connections.
const annotationNoApp = "budgetwise/no-app"

func (r *runner) out() io.Writer {
	return r.opts.Stdout
}
