package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"libcal-booker/client"
)

// Exit codes.
const (
	exitOK         = 0
	exitMissingEnv = 1
	exitRunFailed  = 2
)

const (
	defaultEnvFile  = ".env"
	defaultStepWait = client.DefaultStepTimeout
)

type options struct {
	dryRun      bool
	printPlan   bool
	headful     bool
	timezone    string
	stepTimeout time.Duration
	userAgent   string
	proxy       string
	envFile     string
	logFile     string

	// envFileSet is true when --env-file was given explicitly. Only the
	// default file may be absent.
	envFileSet bool
}

// openerFunc builds the browser opener from the parsed flags.
type openerFunc func(opts options) client.Opener

func chromeOpener(opts options) client.Opener {
	return func(ctx context.Context) (client.Page, error) {
		s, err := client.NewSession(ctx, client.SessionOptions{
			Headless:    !opts.headful,
			UserAgent:   opts.userAgent,
			ProxyURL:    opts.proxy,
			StepTimeout: opts.stepTimeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func newRootCmd(newOpener openerFunc, now func() time.Time) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "libcal-booker",
		Short:         "Book the three early-morning Mudd 2153 slots seven days ahead on Northwestern LibCal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.envFileSet = cmd.Flags().Changed("env-file")
			return run(cmd.Context(), cmd.OutOrStdout(), opts, newOpener(opts), now)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "fill every form but never click 'Submit my Booking'")
	f.BoolVar(&opts.printPlan, "print-plan", false, "print the computed labels and values, then exit without a browser")
	f.BoolVar(&opts.headful, "headful", false, "show the browser window")
	f.StringVar(&opts.timezone, "timezone", "", "IANA timezone used for 'today' (default: process local time)")
	f.DurationVar(&opts.stepTimeout, "step-timeout", defaultStepWait, "how long each page interaction may wait for its element")
	f.StringVar(&opts.userAgent, "user-agent", client.DefaultUserAgent, "browser user agent")
	f.StringVar(&opts.proxy, "proxy", "", "proxy server passed to Chrome, e.g. socks5://127.0.0.1:1080")
	f.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file with FIRST_NAME, LAST_NAME, NETID, EMAIL_1..3 (the default may be absent)")
	f.StringVar(&opts.logFile, "log-file", "", "append a JSON line describing the run to this file")
	return cmd
}

func run(ctx context.Context, out io.Writer, opts options, open client.Opener, now func() time.Time) error {
	if opts.envFile != "" {
		err := godotenv.Load(opts.envFile)
		if err != nil && (opts.envFileSet || !errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("error loading %s: %w", opts.envFile, err)
		}
	}

	cfg, err := client.LoadReservationConfig(os.LookupEnv)
	if err != nil {
		return err
	}
	if opts.timezone != "" {
		loc, err := time.LoadLocation(opts.timezone)
		if err != nil {
			return fmt.Errorf("invalid --timezone: %w", err)
		}
		cfg.Location = loc
	}

	plan := client.NewPlan(cfg, now())
	if opts.printPlan {
		printPlan(out, plan)
		return nil
	}

	mode := "headless"
	if opts.headful {
		mode = "headful"
	}
	if opts.dryRun {
		mode += ", dry run"
	}

	entry, runErr := client.Run(ctx, cfg, plan, open, client.RunOptions{
		RunID:  uuid.NewString(),
		Mode:   mode,
		DryRun: opts.dryRun,
		Now:    now,
	})
	client.PrintExecutionLog(out, entry)
	if opts.logFile != "" {
		if err := client.WriteStructuredLog(entry, opts.logFile); err != nil {
			log.Error().Err(err).Str("file", opts.logFile).Msg("Failed to write structured log")
		}
	}
	return runErr
}

func printPlan(w io.Writer, p client.Plan) {
	fmt.Fprintf(w, "Target date : %s (%s)\n", p.DateLabel, p.DateValue)
	fmt.Fprintf(w, "Next clicks : %d\n", p.PageForwards)
	for _, s := range p.Slots {
		fmt.Fprintf(w, "\n%s\n", s.Name())
		fmt.Fprintf(w, "  click    : %s\n", s.ClickLabel)
		fmt.Fprintf(w, "  dropdown : %s\n", s.DropdownLabel)
		fmt.Fprintf(w, "  value    : %s\n", s.DropdownValue)
		fmt.Fprintf(w, "  email    : %s\n", s.Email)
	}
}

func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var envErr *client.MissingEnvError
	if errors.As(err, &envErr) {
		return exitMissingEnv
	}
	return exitRunFailed
}

func main() {
	setupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(chromeOpener, time.Now).ExecuteContext(ctx)
	if err != nil {
		var envErr *client.MissingEnvError
		if errors.As(err, &envErr) {
			fmt.Fprintln(os.Stderr, envErr.Remediation())
		} else {
			log.Error().Err(err).Msg("Booking run failed")
		}
	}
	stop()
	os.Exit(exitCode(err))
}
